package models

import (
	"net/http"

	"github.com/goccy/go-json"
)

type BusinessError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *BusinessError) Error() string { return e.Message }

func BizError(code, msg string) *BusinessError { return &BusinessError{Code: code, Message: msg} }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteBizErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, status, BizError(code, msg))
}

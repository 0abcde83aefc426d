package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"service-rates/internal"
	"service-rates/internal/models"
)

const APIKeyHeader = "X-API-Key"

type APIKeyValidator interface {
	Validate(ctx context.Context, rawKey string) (internal.APIKeyStatus, error)
}

// APIKeyAuth lets requests with an active key through to next. Rejections are
// answered here and written to audit.
func APIKeyAuth(validator APIKeyValidator, audit internal.RequestAuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if key == "" {
				reject(w, r, audit, http.StatusUnauthorized, "api_key_missing", "missing "+APIKeyHeader)
				return
			}

			status, err := validator.Validate(r.Context(), key)
			if err != nil {
				log.Printf("api key validation: %v", err)
				reject(w, r, audit, http.StatusInternalServerError, "internal_error", "internal error")
				return
			}
			switch status {
			case internal.APIKeyActive:
				next.ServeHTTP(w, r)
			case internal.APIKeyRevoked:
				reject(w, r, audit, http.StatusForbidden, "api_key_revoked", "api key is revoked")
			default:
				reject(w, r, audit, http.StatusUnauthorized, "invalid_api_key", "invalid api key")
			}
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, audit internal.RequestAuditLogger, status int, code, msg string) {
	models.WriteBizErr(w, status, code, msg)

	// ccy is only recorded when it is a valid code
	base, _ := internal.NewCurrencyCode(r.URL.Query().Get("ccy"))
	if err := audit.LogRequest(r.Context(), r.URL.Path, status, base); err != nil {
		log.Printf("request log: %v", err)
	}
}

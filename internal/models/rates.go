package models

import "time"

type RateRow struct {
	Code  string `json:"code"`
	Rate  string `json:"rate"`
	Value string `json:"value"`
}

// RatesResponse is the body of GET /api/v1/rates.
type RatesResponse struct {
	Base      string    `json:"base"`
	FetchedAt time.Time `json:"fetched_at"`
	Amount    string    `json:"amount"`
	Rates     []RateRow `json:"rates"`
}

type JobResponse struct {
	Base   string `json:"base"`
	URL    string `json:"url"`
	Period string `json:"period"`
}

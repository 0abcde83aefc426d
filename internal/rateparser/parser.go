// Package rateparser turns a rates API body into a RateSnapshot.
//
// The accepted shape is {"rates": {"<CODE>": "<decimal>", ...}}; every other
// top-level field is ignored. Values are parsed as exact decimals and never
// pass through float64.
package rateparser

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"service-rates/internal"
)

// maxRateDigits bounds both the coefficient length and the exponent of a rate.
const maxRateDigits = 38

type envelope struct {
	Rates json.RawMessage `json:"rates"`
}

var null = []byte("null")

// Parse is pure: equal bodies give equal snapshots. The returned snapshot has
// no base or fetch time; the poller stamps those.
func Parse(body []byte) (internal.RateSnapshot, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return internal.RateSnapshot{}, malformed(errors.New("empty body"))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return internal.RateSnapshot{}, malformed(fmt.Errorf("decode body: %w", err))
	}

	raw := bytes.TrimSpace(env.Rates)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		return internal.RateSnapshot{}, nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return internal.RateSnapshot{}, malformed(fmt.Errorf("decode rates: %w", err))
	}

	rates := make(map[internal.CurrencyCode]decimal.Decimal, len(entries))
	for key, value := range entries {
		code, err := internal.ParseCurrencyCode(key)
		if err != nil {
			return internal.RateSnapshot{}, &internal.ParseError{Kind: internal.ParseInvalidCurrencyCode, Code: key, Err: err}
		}

		rate, err := parseRate(value)
		if err != nil {
			return internal.RateSnapshot{}, &internal.ParseError{Kind: internal.ParseMalformedRateValue, Code: key, Err: err}
		}
		rates[code] = rate
	}

	return internal.NewRateSnapshot("", time.Time{}, rates), nil
}

func parseRate(value json.RawMessage) (decimal.Decimal, error) {
	v := bytes.TrimSpace(value)
	if len(v) == 0 {
		return decimal.Decimal{}, errors.New("empty value")
	}

	var text string
	switch c := v[0]; {
	case c == '"':
		if err := json.Unmarshal(v, &text); err != nil {
			return decimal.Decimal{}, fmt.Errorf("decode string: %w", err)
		}
	case c == '-' || (c >= '0' && c <= '9'):
		text = string(v)
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected value %s", v)
	}

	rate, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a decimal %q: %w", text, err)
	}
	if rate.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative rate %s", rate)
	}
	if exp := rate.Exponent(); exp > maxRateDigits || exp < -maxRateDigits {
		return decimal.Decimal{}, fmt.Errorf("rate %q out of range", text)
	}
	if len(rate.Coefficient().String()) > maxRateDigits {
		return decimal.Decimal{}, fmt.Errorf("rate %q has too many digits", text)
	}
	return rate, nil
}

func malformed(err error) error {
	return &internal.ParseError{Kind: internal.ParseMalformedJSON, Err: err}
}

package internal

import (
	"errors"
	"fmt"
)

type FetchErrorKind int

const (
	FetchNetwork FetchErrorKind = iota + 1
	FetchTimeout
	FetchNonSuccessStatus
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchNetwork:
		return "network"
	case FetchTimeout:
		return "timeout"
	case FetchNonSuccessStatus:
		return "non_success_status"
	default:
		return "unknown"
	}
}

// FetchError is returned by a rate source when no body could be obtained.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchNonSuccessStatus {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

type ParseErrorKind int

const (
	ParseMalformedJSON ParseErrorKind = iota + 1
	ParseMalformedRateValue
	ParseInvalidCurrencyCode
)

func (k ParseErrorKind) String() string {
	switch k {
	case ParseMalformedJSON:
		return "malformed_json"
	case ParseMalformedRateValue:
		return "malformed_rate_value"
	case ParseInvalidCurrencyCode:
		return "invalid_currency_code"
	default:
		return "unknown"
	}
}

// ParseError means the whole body was rejected; no partial snapshot exists.
type ParseError struct {
	Kind ParseErrorKind
	// Code is the offending rates key, empty for structural errors.
	Code string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("parse rates: %s for %q: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("parse rates: %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FetchErrorKindOf reports the kind of the first FetchError in err's chain.
func FetchErrorKindOf(err error) (FetchErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// ParseErrorKindOf reports the kind of the first ParseError in err's chain.
func ParseErrorKindOf(err error) (ParseErrorKind, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

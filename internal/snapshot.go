package internal

import (
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// displayDecimals is the number of fraction digits shown for any rate.
const displayDecimals = 2

// RateSnapshot is one immutable, fully valid set of rates produced by a single
// successful fetch. The zero value is an empty snapshot.
type RateSnapshot struct {
	base      CurrencyCode
	fetchedAt time.Time
	rates     map[CurrencyCode]decimal.Decimal
}

// NewRateSnapshot copies rates; later changes to the argument are not observed.
func NewRateSnapshot(base CurrencyCode, fetchedAt time.Time, rates map[CurrencyCode]decimal.Decimal) RateSnapshot {
	cp := make(map[CurrencyCode]decimal.Decimal, len(rates))
	for code, rate := range rates {
		cp[code] = rate
	}
	return RateSnapshot{base: base, fetchedAt: fetchedAt, rates: cp}
}

// Stamp returns a copy labelled with base and fetch time. The rate map is shared,
// which is safe because it is never written after construction.
func (s RateSnapshot) Stamp(base CurrencyCode, at time.Time) RateSnapshot {
	return RateSnapshot{base: base, fetchedAt: at, rates: s.rates}
}

func (s RateSnapshot) Base() CurrencyCode   { return s.base }
func (s RateSnapshot) FetchedAt() time.Time { return s.fetchedAt }
func (s RateSnapshot) Len() int             { return len(s.rates) }
func (s RateSnapshot) IsEmpty() bool        { return len(s.rates) == 0 }

func (s RateSnapshot) Rate(code CurrencyCode) (decimal.Decimal, bool) {
	r, ok := s.rates[code]
	return r, ok
}

// Codes returns the quoted currencies in lexical order.
func (s RateSnapshot) Codes() []CurrencyCode {
	out := make([]CurrencyCode, 0, len(s.rates))
	for code := range s.rates {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rates returns a copy of the underlying mapping.
func (s RateSnapshot) Rates() map[CurrencyCode]decimal.Decimal {
	cp := make(map[CurrencyCode]decimal.Decimal, len(s.rates))
	for code, rate := range s.rates {
		cp[code] = rate
	}
	return cp
}

// Equal compares the rate mappings only; base and fetch time are ignored.
func (s RateSnapshot) Equal(other RateSnapshot) bool {
	if len(s.rates) != len(other.rates) {
		return false
	}
	for code, rate := range s.rates {
		o, ok := other.rates[code]
		if !ok || !rate.Equal(o) {
			return false
		}
	}
	return true
}

type snapshotJSON struct {
	Base      CurrencyCode               `json:"base,omitempty"`
	FetchedAt *time.Time                 `json:"fetched_at,omitempty"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

func (s RateSnapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{Base: s.base, Rates: make(map[string]decimal.Decimal, len(s.rates))}
	if !s.fetchedAt.IsZero() {
		at := s.fetchedAt.UTC()
		out.FetchedAt = &at
	}
	for code, rate := range s.rates {
		out.Rates[string(code)] = rate
	}
	return json.Marshal(out)
}

// FormatRate renders a rate with exactly two fraction digits, rounding half up.
func FormatRate(d decimal.Decimal) string {
	return d.StringFixed(displayDecimals)
}

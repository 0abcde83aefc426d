package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNoSnapshot       = errors.New("no rates fetched yet")
	ErrRateNotAvailable = errors.New("rate not available")
	ErrSameCurrency     = errors.New("base and quote must be different")
	ErrInvalidAmount    = errors.New("amount must be a positive decimal")
)

// SnapshotSource yields the most recently delivered snapshot.
type SnapshotSource interface {
	Latest() (RateSnapshot, bool)
}

// LatestStore keeps the last snapshot handed to it. Safe for concurrent use.
type LatestStore struct {
	v atomic.Pointer[RateSnapshot]
}

func NewLatestStore() *LatestStore { return &LatestStore{} }

// Store has the signature of a bus handler.
func (l *LatestStore) Store(_ context.Context, s RateSnapshot) error {
	l.v.Store(&s)
	return nil
}

func (l *LatestStore) Latest() (RateSnapshot, bool) {
	p := l.v.Load()
	if p == nil {
		return RateSnapshot{}, false
	}
	return *p, true
}

type PairRate struct {
	Base      CurrencyCode    `json:"base"`
	Quote     CurrencyCode    `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

type RateConverter struct {
	source SnapshotSource
}

func NewRateConverter(source SnapshotSource) *RateConverter { return &RateConverter{source: source} }

func (s *RateConverter) GetPairRate(base, quote CurrencyCode) (PairRate, error) {
	if !base.IsValid() || !quote.IsValid() {
		return PairRate{}, errors.New("invalid currency code")
	}
	if base == quote {
		return PairRate{}, ErrSameCurrency
	}

	snap, ok := s.source.Latest()
	if !ok {
		return PairRate{}, ErrNoSnapshot
	}
	pivot := snap.Base()

	// 1) pivot -> any
	if base == pivot {
		r, err := rateOf(snap, quote)
		if err != nil {
			return PairRate{}, err
		}
		return PairRate{Base: base, Quote: quote, Rate: r, FetchedAt: snap.FetchedAt()}, nil
	}

	// 2) any -> pivot
	if quote == pivot {
		r, err := rateOf(snap, base)
		if err != nil {
			return PairRate{}, err
		}
		if r.IsZero() {
			return PairRate{}, fmt.Errorf("rate %s/%s is zero, cannot invert", pivot, base)
		}
		inv := decimal.NewFromInt(1).Div(r)
		return PairRate{Base: base, Quote: quote, Rate: inv, FetchedAt: snap.FetchedAt()}, nil
	}

	// 3) any -> any through the pivot
	rBase, err := rateOf(snap, base)
	if err != nil {
		return PairRate{}, err
	}
	rQuote, err := rateOf(snap, quote)
	if err != nil {
		return PairRate{}, err
	}
	if rBase.IsZero() {
		return PairRate{}, fmt.Errorf("rate %s/%s is zero, cannot divide", pivot, base)
	}
	cross := rQuote.Div(rBase)
	return PairRate{Base: base, Quote: quote, Rate: cross, FetchedAt: snap.FetchedAt()}, nil
}

func rateOf(snap RateSnapshot, code CurrencyCode) (decimal.Decimal, error) {
	r, ok := snap.Rate(code)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", ErrRateNotAvailable, snap.Base(), code)
	}
	return r, nil
}

// ParseMultiplier reads a strictly positive amount. Empty input means 1.
func ParseMultiplier(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NewFromInt(1), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

type ConvertedRate struct {
	Code  CurrencyCode
	Rate  decimal.Decimal
	Value decimal.Decimal
}

// Convert multiplies every rate in snap by amount, ordered by currency code.
func Convert(snap RateSnapshot, amount decimal.Decimal) []ConvertedRate {
	out := make([]ConvertedRate, 0, snap.Len())
	for code, rate := range snap.rates {
		out = append(out, ConvertedRate{Code: code, Rate: rate, Value: rate.Mul(amount)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

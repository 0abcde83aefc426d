package internal_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-rates/internal"
)

func TestParseCurrencyCode(t *testing.T) {
	for _, ok := range []string{"USD", "EUR", "XAU"} {
		code, err := internal.ParseCurrencyCode(ok)
		require.NoError(t, err, ok)
		assert.Equal(t, ok, code.String())
	}
	for _, bad := range []string{"", "usd", "US", "USDT", "U1D", " EUR"} {
		_, err := internal.ParseCurrencyCode(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewCurrencyCode_Normalizes(t *testing.T) {
	code, err := internal.NewCurrencyCode("  gbp ")
	require.NoError(t, err)
	assert.Equal(t, internal.CurrencyCode("GBP"), code)
}

func TestCurrencyCode_JSON(t *testing.T) {
	var v struct {
		Code internal.CurrencyCode `json:"code"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"code":"jpy"}`), &v))
	assert.Equal(t, internal.CurrencyCode("JPY"), v.Code)

	assert.Error(t, json.Unmarshal([]byte(`{"code":"yen!"}`), &v))
}

func TestFetchJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     internal.FetchJob
		wantErr bool
	}{
		{name: "https", job: internal.FetchJob{URL: "https://api.example.com/latest?base=EUR", Base: "EUR", Period: time.Second}},
		{name: "blank sentinel", job: internal.FetchJob{URL: internal.BlankURL, Period: time.Second}},
		{name: "zero period", job: internal.FetchJob{URL: "https://api.example.com", Period: 0}, wantErr: true},
		{name: "ftp", job: internal.FetchJob{URL: "ftp://api.example.com", Period: time.Second}, wantErr: true},
		{name: "relative", job: internal.FetchJob{URL: "/latest", Period: time.Second}, wantErr: true},
		{name: "empty", job: internal.FetchJob{Period: time.Second}, wantErr: true},
		{name: "bad base", job: internal.FetchJob{URL: internal.BlankURL, Base: "eu", Period: time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJobTemplate_For(t *testing.T) {
	tmpl := internal.JobTemplate{BaseURL: "https://api.example.com/latest?base=", Period: 500 * time.Millisecond}

	job := tmpl.For("USD")

	assert.Equal(t, "https://api.example.com/latest?base=USD", job.URL)
	assert.Equal(t, internal.CurrencyCode("USD"), job.Base)
	assert.Equal(t, 500*time.Millisecond, job.Period)

	blank := internal.JobTemplate{}.For("EUR")
	assert.Equal(t, internal.BlankURL, blank.URL)
	assert.Equal(t, internal.DefaultPeriod, blank.Period)
}

func TestErrorKinds(t *testing.T) {
	fe := &internal.FetchError{Kind: internal.FetchNonSuccessStatus, URL: "https://x", StatusCode: 502}
	kind, ok := internal.FetchErrorKindOf(wrap(fe))
	require.True(t, ok)
	assert.Equal(t, internal.FetchNonSuccessStatus, kind)
	assert.Contains(t, fe.Error(), "502")

	pe := &internal.ParseError{Kind: internal.ParseMalformedRateValue, Code: "USD", Err: assert.AnError}
	pkind, ok := internal.ParseErrorKindOf(wrap(pe))
	require.True(t, ok)
	assert.Equal(t, internal.ParseMalformedRateValue, pkind)
	assert.ErrorIs(t, pe, assert.AnError)

	_, ok = internal.FetchErrorKindOf(pe)
	assert.False(t, ok)
}

type wrapped struct{ err error }

func (w wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w wrapped) Unwrap() error { return w.err }

func wrap(err error) error { return wrapped{err: err} }

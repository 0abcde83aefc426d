package internal

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// BlankURL is the fail-safe job target. Fetching it always fails without I/O.
const BlankURL = "about:blank"

// DefaultPeriod is the reference polling period.
const DefaultPeriod = time.Second

// FetchJob is the polling target of a running poller. It is never mutated:
// switching the base currency means building a new FetchJob.
type FetchJob struct {
	URL    string
	Base   CurrencyCode
	Period time.Duration
}

func (j FetchJob) Validate() error {
	if j.Period <= 0 {
		return fmt.Errorf("period must be positive, got %s", j.Period)
	}
	if j.Base != "" && !j.Base.IsValid() {
		return fmt.Errorf("invalid base %q", j.Base)
	}
	return ValidateURL(j.URL)
}

// ValidateURL accepts the blank sentinel or an absolute http(s) URL with a host.
func ValidateURL(raw string) error {
	if raw == BlankURL {
		return nil
	}
	if raw == "" {
		return errors.New("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// JobTemplate builds jobs for a rates API addressed as BaseURL+<CODE>,
// e.g. "https://example.com/latest?base=" + "EUR".
type JobTemplate struct {
	BaseURL string
	Period  time.Duration
}

func (t JobTemplate) For(base CurrencyCode) FetchJob {
	period := t.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	target := BlankURL
	if t.BaseURL != "" {
		target = t.BaseURL + url.QueryEscape(base.String())
	}
	return FetchJob{URL: target, Base: base, Period: period}
}

package poller

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// fixedPeriod fires once immediately, then every period after the previous
// activation. Unlike cron.Every it keeps sub-second periods.
type fixedPeriod struct {
	period time.Duration
	fired  atomic.Bool
}

var _ cron.Schedule = (*fixedPeriod)(nil)

func newFixedPeriod(period time.Duration) *fixedPeriod {
	return &fixedPeriod{period: period}
}

func (s *fixedPeriod) Next(t time.Time) time.Time {
	if s.fired.CompareAndSwap(false, true) {
		return t
	}
	return t.Add(s.period)
}

// OverlapPolicy decides what happens when a tick is due while the previous
// tick of the same job is still running.
type OverlapPolicy int

const (
	// OverlapConcurrent starts every tick on time regardless of earlier ones.
	OverlapConcurrent OverlapPolicy = iota
	// OverlapSkip drops a tick if the previous one has not returned.
	OverlapSkip
	// OverlapDelay queues a tick until the previous one has returned.
	OverlapDelay
)

func (p OverlapPolicy) String() string {
	switch p {
	case OverlapConcurrent:
		return "concurrent"
	case OverlapSkip:
		return "skip"
	case OverlapDelay:
		return "delay"
	default:
		return fmt.Sprintf("OverlapPolicy(%d)", int(p))
	}
}

func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "concurrent":
		return OverlapConcurrent, nil
	case "skip":
		return OverlapSkip, nil
	case "delay":
		return OverlapDelay, nil
	default:
		return 0, fmt.Errorf("unknown overlap policy %q", s)
	}
}

func (p OverlapPolicy) wrapper(logger cron.Logger) (cron.JobWrapper, bool) {
	switch p {
	case OverlapSkip:
		return cron.SkipIfStillRunning(logger), true
	case OverlapDelay:
		return cron.DelayIfStillRunning(logger), true
	default:
		return nil, false
	}
}

// Package poller runs the periodic fetch, parse and publish cycle for a
// single FetchJob at a time.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"service-rates/internal"
	"service-rates/internal/metrics"
)

var (
	ErrNotStarted     = errors.New("poller not started")
	ErrAlreadyStarted = errors.New("poller already started")
	ErrStopped        = errors.New("poller stopped")
	ErrInvalidJob     = errors.New("invalid fetch job")
)

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type ParseFunc func(body []byte) (internal.RateSnapshot, error)

// Publisher receives every accepted snapshot, one call at a time. It must not
// call back into the Poller.
type Publisher interface {
	Publish(ctx context.Context, snap internal.RateSnapshot) error
}

type Options struct {
	Overlap OverlapPolicy
	Metrics *metrics.RateMetrics
	Logger  *log.Logger
	// Now stamps snapshots. Defaults to time.Now.
	Now func() time.Time
}

// generation is one scheduled FetchJob. Ticks keep the generation they were
// scheduled for, so a job swap never changes the URL of a running tick.
type generation struct {
	job     internal.FetchJob
	ctx     context.Context
	cancel  context.CancelFunc
	entryID cron.EntryID
}

type Poller struct {
	source  Source
	parse   ParseFunc
	pub     Publisher
	opts    Options
	logger  *log.Logger
	cron    *cron.Cron
	current atomic.Pointer[generation]
	state   atomic.Int32
	seq     atomic.Uint64

	// mu serializes Start, ChangeJob and Stop.
	mu      sync.Mutex
	stopCtx context.Context

	// pubMu guards the publish gate. Held across a Publish call.
	pubMu         sync.Mutex
	lastPublished uint64
}

func New(source Source, parse ParseFunc, pub Publisher, opts Options) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cronLogger := cron.PrintfLogger(logger)
	chain := []cron.JobWrapper{cron.Recover(cronLogger)}
	if w, ok := opts.Overlap.wrapper(cronLogger); ok {
		chain = append(chain, w)
	}

	return &Poller{
		source: source,
		parse:  parse,
		pub:    pub,
		opts:   opts,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(chain...),
		),
	}
}

func (p *Poller) State() State { return State(p.state.Load()) }

// Job returns the active job. ok is false unless the poller is running.
func (p *Poller) Job() (job internal.FetchJob, ok bool) {
	gen := p.current.Load()
	if gen == nil {
		return internal.FetchJob{}, false
	}
	return gen.job, true
}

// Start schedules job with its first tick fired immediately.
func (p *Poller) Start(job internal.FetchJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case Running:
		return ErrAlreadyStarted
	case Stopped:
		return ErrStopped
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	gen := p.newGeneration(job)
	p.current.Store(gen)
	gen.entryID = p.cron.Schedule(newFixedPeriod(job.Period), p.tickFunc(gen))
	p.cron.Start()
	p.state.Store(int32(Running))

	p.logger.Printf("poller started: url=%s period=%s overlap=%s", job.URL, job.Period, p.opts.Overlap)
	return nil
}

// ChangeJob replaces the active job. In-flight ticks of the old job are
// cancelled and their results discarded; the new job ticks immediately.
func (p *Poller) ChangeJob(job internal.FetchJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case Idle:
		return ErrNotStarted
	case Stopped:
		return ErrStopped
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	next := p.newGeneration(job)

	p.pubMu.Lock()
	prev := p.current.Swap(next)
	p.pubMu.Unlock()

	p.cron.Remove(prev.entryID)
	prev.cancel()
	next.entryID = p.cron.Schedule(newFixedPeriod(job.Period), p.tickFunc(next))
	p.opts.Metrics.IncJobChange()

	p.logger.Printf("poller job changed: %s -> %s", prev.job.URL, job.URL)
	return nil
}

// Stop cancels the schedule. No publish starts after Stop returns; results of
// ticks still running are discarded. Stopped is terminal.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case Idle:
		return ErrNotStarted
	case Stopped:
		return ErrStopped
	}

	p.pubMu.Lock()
	gen := p.current.Swap(nil)
	p.state.Store(int32(Stopped))
	p.pubMu.Unlock()

	if gen != nil {
		gen.cancel()
	}
	p.stopCtx = p.cron.Stop()

	p.logger.Printf("poller stopped")
	return nil
}

// Wait blocks until all ticks running at Stop have returned, or ctx is done.
func (p *Poller) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.stopCtx
	p.mu.Unlock()

	if done == nil {
		if p.State() == Idle {
			return ErrNotStarted
		}
		return errors.New("poller still running")
	}
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) newGeneration(job internal.FetchJob) *generation {
	ctx, cancel := context.WithCancel(context.Background())
	return &generation{job: job, ctx: ctx, cancel: cancel}
}

func (p *Poller) tickFunc(gen *generation) cron.FuncJob {
	return func() { p.tick(gen) }
}

func (p *Poller) tick(gen *generation) {
	seq := p.seq.Add(1)

	if !p.live(gen) {
		p.opts.Metrics.ObserveTick(metrics.TickDiscarded)
		return
	}

	start := time.Now()
	body, err := p.source.Fetch(gen.ctx, gen.job.URL)
	if err != nil {
		kind := "unknown"
		if k, ok := internal.FetchErrorKindOf(err); ok {
			kind = k.String()
		}
		p.opts.Metrics.ObserveFetch(time.Since(start), kind)
		if !p.live(gen) {
			p.opts.Metrics.ObserveTick(metrics.TickDiscarded)
			return
		}
		p.opts.Metrics.ObserveTick(metrics.TickFetchError)
		p.logger.Printf("tick failed: %v", err)
		return
	}
	p.opts.Metrics.ObserveFetch(time.Since(start), "")

	snap, err := p.parse(body)
	if err != nil {
		p.opts.Metrics.ObserveTick(metrics.TickParseError)
		p.logger.Printf("tick failed: %s: %v", gen.job.URL, err)
		return
	}

	p.publish(gen, seq, snap.Stamp(gen.job.Base, p.opts.Now()))
}

func (p *Poller) live(gen *generation) bool {
	return p.current.Load() == gen && gen.ctx.Err() == nil
}

func (p *Poller) publish(gen *generation, seq uint64, snap internal.RateSnapshot) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	if p.current.Load() != gen || seq < p.lastPublished {
		p.opts.Metrics.ObserveTick(metrics.TickDiscarded)
		return
	}
	p.lastPublished = seq

	if err := p.pub.Publish(gen.ctx, snap); err != nil {
		p.logger.Printf("publish %s: %v", gen.job.URL, err)
	}
	p.opts.Metrics.ObserveTick(metrics.TickPublished)
}

package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mstgnz/paygate/infra/logger"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"
)

const (
	defaultProbeInterval   = 60 * time.Second
	defaultProbeTimeout    = 5 * time.Second
	defaultProbeMaxBackoff = 10 * time.Minute
	defaultProbeWorkers    = 8
)

// ProberConfig controls how often gateways are health checked
type ProberConfig struct {
	// Interval between probes of a healthy gateway
	Interval time.Duration
	// Timeout bounds a single health check; always shorter than Interval
	Timeout time.Duration
	// MaxBackoff caps the delay before re-probing a failing gateway
	MaxBackoff time.Duration
	// Concurrency limits the number of health checks in flight
	Concurrency int
	// Intervals overrides Interval per gateway name. Overrides are clamped
	// into (Timeout, MaxBackoff].
	Intervals map[string]time.Duration
}

func (c ProberConfig) withDefaults() ProberConfig {
	cfg := c
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if cfg.Timeout >= cfg.Interval {
		cfg.Timeout = cfg.Interval / 2
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = max(defaultProbeMaxBackoff, cfg.Interval)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultProbeWorkers
	}
	cfg.Intervals = cfg.clampedIntervals()
	return cfg
}

func (c ProberConfig) clampedIntervals() map[string]time.Duration {
	if len(c.Intervals) == 0 {
		return nil
	}

	out := make(map[string]time.Duration, len(c.Intervals))
	for name, d := range c.Intervals {
		if d <= 0 {
			continue
		}
		clamped := d
		if clamped <= c.Timeout {
			clamped = min(2*c.Timeout, c.MaxBackoff)
		}
		if clamped > c.MaxBackoff {
			clamped = c.MaxBackoff
		}
		if clamped != d {
			logger.Warn("probe interval override adjusted", logger.LogContext{
				Provider: name,
				Fields: map[string]any{
					"requested": d.String(),
					"effective": clamped.String(),
				},
			})
		}
		out[name] = clamped
	}
	return out
}

type probeState struct {
	failures    int
	nextProbeAt time.Time
	inFlight    bool
}

// Prober keeps the registry's availability records fresh by periodically
// calling each enabled gateway's health check.
type Prober struct {
	registry *Registry
	config   ProberConfig
	clock    clockz.Clock

	mu     sync.Mutex
	states map[string]*probeState
}

// ProberOption configures a Prober
type ProberOption func(*Prober)

// WithProberClock sets the clock used for scheduling
func WithProberClock(clock clockz.Clock) ProberOption {
	return func(p *Prober) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewProber creates a prober for the given registry
func NewProber(registry *Registry, config ProberConfig, opts ...ProberOption) *Prober {
	p := &Prober{
		registry: registry,
		config:   config.withDefaults(),
		clock:    clockz.RealClock,
		states:   make(map[string]*probeState),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration after defaults
func (p *Prober) Config() ProberConfig {
	return p.config
}

// Run probes due gateways until ctx is cancelled
func (p *Prober) Run(ctx context.Context) error {
	logger.Info("availability prober started", logger.LogContext{
		Fields: map[string]any{
			"interval":    p.config.Interval.String(),
			"timeout":     p.config.Timeout.String(),
			"max_backoff": p.config.MaxBackoff.String(),
		},
	})

	for {
		p.ProbeDue(ctx)

		select {
		case <-ctx.Done():
			logger.Info("availability prober stopped")
			return ctx.Err()
		case <-p.clock.After(p.untilNextDue()):
		}
	}
}

// ProbeAll checks every enabled gateway regardless of its schedule. It is used
// for the initial pass before the manager starts serving. Gateways whose probe
// did not finish before ctx expired stay unavailable.
func (p *Prober) ProbeAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("initial probe pass skipped: %w", err)
	}
	p.probe(ctx, p.enabledGateways(false))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("initial probe pass incomplete: %w", err)
	}
	return nil
}

// ProbeDue checks every enabled gateway whose next probe time has passed
func (p *Prober) ProbeDue(ctx context.Context) {
	p.probe(ctx, p.enabledGateways(true))
}

// ReportFailure records a failure observed outside the prober, such as a
// transient charge error, and pushes the next probe out by the backoff delay.
func (p *Prober) ReportFailure(name string, cause error) {
	if err := p.registry.SetAvailability(name, false, cause); err != nil {
		logger.Warn("failure reported for unknown gateway", logger.LogContext{Provider: name})
		return
	}
	p.recordFailure(name)
}

// NextProbeAt returns when the gateway will next be probed
func (p *Prober) NextProbeAt(name string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.states[name]
	if !ok {
		return time.Time{}, false
	}
	return state.nextProbeAt, true
}

// Failures returns the number of consecutive failures recorded for a gateway
func (p *Prober) Failures(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.states[name]; ok {
		return state.failures
	}
	return 0
}

// Backoff returns the delay before the next probe after the given number of
// consecutive failures: min(interval * 2^failures, MaxBackoff).
func (p *Prober) Backoff(name string, failures int) time.Duration {
	interval := p.intervalFor(name)
	if failures <= 0 {
		return interval
	}

	delay := interval
	for range failures {
		delay *= 2
		if delay >= p.config.MaxBackoff || delay <= 0 {
			return p.config.MaxBackoff
		}
	}
	return delay
}

func (p *Prober) intervalFor(name string) time.Duration {
	if d, ok := p.config.Intervals[name]; ok && d > 0 {
		return d
	}
	return p.config.Interval
}

// enabledGateways claims the gateways to probe in this pass. Gateways with a
// health check still running from an earlier pass are skipped.
func (p *Prober) enabledGateways(dueOnly bool) []Candidate {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	var claimed []Candidate
	for descriptor := range p.registry.All() {
		if !descriptor.Enabled {
			continue
		}
		state := p.stateLocked(descriptor.Name)
		if state.inFlight {
			continue
		}
		if dueOnly && now.Before(state.nextProbeAt) {
			continue
		}
		gw, err := p.registry.Gateway(descriptor.Name)
		if err != nil {
			continue
		}
		state.inFlight = true
		claimed = append(claimed, Candidate{Descriptor: descriptor, Gateway: gw})
	}
	return claimed
}

func (p *Prober) probe(ctx context.Context, candidates []Candidate) {
	if len(candidates) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(p.config.Concurrency)

	for _, c := range candidates {
		g.Go(func() error {
			p.probeOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
}

// probeOne runs a single bounded health check. A hung adapter is abandoned
// once the timeout fires; its goroutine releases the in-flight claim only when
// the call eventually returns.
func (p *Prober) probeOne(ctx context.Context, c Candidate) {
	name := c.Descriptor.Name
	probeCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)

	done := make(chan error, 1)
	go func() {
		err := safeHealthCheck(probeCtx, c.Gateway)
		p.release(name)
		done <- err
		cancel()
	}()

	var err error
	select {
	case err = <-done:
	case <-probeCtx.Done():
		select {
		case err = <-done:
		default:
			if ctx.Err() != nil {
				// shutdown or startup deadline, leave state untouched
				return
			}
			err = fmt.Errorf("health check timed out after %s", p.config.Timeout)
		}
	}

	if err != nil {
		_ = p.registry.SetAvailability(name, false, err)
		delay := p.recordFailure(name)
		logger.Warn("gateway health check failed", logger.LogContext{
			Provider: name,
			Fields: map[string]any{
				"error":      err.Error(),
				"next_probe": delay.String(),
			},
		})
		return
	}

	wasAvailable := false
	if availability, lookupErr := p.registry.Availability(name); lookupErr == nil {
		wasAvailable = availability.Available
	}
	_ = p.registry.SetAvailability(name, true, nil)
	p.recordSuccess(name)
	if !wasAvailable {
		logger.Info("gateway is available", logger.LogContext{Provider: name})
	}
}

func safeHealthCheck(ctx context.Context, gw Gateway) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health check panicked: %v", r)
		}
	}()
	return gw.HealthCheck(ctx)
}

func (p *Prober) recordFailure(name string) time.Duration {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.stateLocked(name)
	state.failures++
	delay := p.Backoff(name, state.failures)
	state.nextProbeAt = now.Add(delay)
	return delay
}

func (p *Prober) recordSuccess(name string) {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.stateLocked(name)
	state.failures = 0
	state.nextProbeAt = now.Add(p.intervalFor(name))
}

func (p *Prober) release(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.states[name]; ok {
		state.inFlight = false
	}
}

func (p *Prober) stateLocked(name string) *probeState {
	state, ok := p.states[name]
	if !ok {
		state = &probeState{}
		p.states[name] = state
	}
	return state
}

// untilNextDue returns the wait before the earliest scheduled probe, bounded
// by the base interval. Gateways with a health check still running are
// ignored since they cannot be claimed anyway.
func (p *Prober) untilNextDue() time.Duration {
	now := p.clock.Now()
	wait := p.config.Interval

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range p.states {
		if state.nextProbeAt.IsZero() || state.inFlight {
			continue
		}
		if d := state.nextProbeAt.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

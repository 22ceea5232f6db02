// Package circuit guards the document backends the cache loads from. Each
// backend gets a breaker that stops fetches after repeated failures and
// lets a few probes through once the cool-down has passed.
package circuit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// State represents the breaker state
type State int

const (
	// StateClosed lets every fetch through
	StateClosed State = iota
	// StateOpen rejects fetches until the cool-down expires
	StateOpen
	// StateHalfOpen lets a limited number of probe fetches through
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrOpenState is returned while the breaker rejects fetches
	ErrOpenState = errors.New("circuit breaker is open")

	// ErrTooManyProbes is returned when the half-open probe budget is used up
	ErrTooManyProbes = errors.New("too many probes in half-open state")
)

// Config contains breaker tuning
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// HalfOpenProbes is the number of fetches allowed while half-open
	HalfOpenProbes uint32 `yaml:"half_open_probes"`

	// Interval resets the closed-state counts periodically. Zero keeps
	// counting until a state change.
	Interval time.Duration `yaml:"interval"`

	// IsFailure decides whether an error counts against the backend
	IsFailure func(err error) bool `yaml:"-"`

	// OnStateChange is called with the breaker lock held; it must not
	// call back into the breaker.
	OnStateChange func(name string, from, to State) `yaml:"-"`

	// Now replaces the time source
	Now func() time.Time `yaml:"-"`
}

// DefaultConfig returns the stock breaker tuning
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenProbes:   1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.HalfOpenProbes == 0 {
		c.HalfOpenProbes = d.HalfOpenProbes
	}
	if c.IsFailure == nil {
		c.IsFailure = defaultIsFailure
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// defaultIsFailure ignores cancellations by the caller; those say nothing
// about the backend.
func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Counts holds the request tallies of the current state
type Counts struct {
	Requests             uint32    `json:"requests"`
	TotalSuccesses       uint32    `json:"total_successes"`
	TotalFailures        uint32    `json:"total_failures"`
	ConsecutiveSuccesses uint32    `json:"consecutive_successes"`
	ConsecutiveFailures  uint32    `json:"consecutive_failures"`
	LastActivity         time.Time `json:"last_activity"`
}

func (c *Counts) onRequest(now time.Time) {
	c.Requests++
	c.LastActivity = now
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker guards one backend
type Breaker struct {
	name   string
	config Config

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, config Config) *Breaker {
	config = config.withDefaults()
	b := &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
	if config.Interval > 0 {
		b.expiry = config.Now().Add(config.Interval)
	}
	return b
}

// Execute runs fn if the breaker allows it and records the outcome.
// Rejected calls return ErrOpenState or ErrTooManyProbes without running fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterRequest(err)
	return err
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.config.Now()
	switch b.currentState(now) {
	case StateOpen:
		return ErrOpenState
	case StateHalfOpen:
		if b.counts.Requests >= b.config.HalfOpenProbes {
			return ErrTooManyProbes
		}
	}

	b.counts.onRequest(now)
	return nil
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.config.Now()
	state := b.currentState(now)

	if !b.config.IsFailure(err) {
		b.counts.onSuccess()
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.config.HalfOpenProbes {
			b.setState(StateClosed, now)
		}
		return
	}

	b.counts.onFailure()
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.FailureThreshold {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

// currentState advances time-based transitions. Callers hold b.mu.
func (b *Breaker) currentState(now time.Time) State {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.counts = Counts{}
			b.expiry = now.Add(b.config.Interval)
		}
	case StateOpen:
		if !now.Before(b.expiry) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state
}

func (b *Breaker) setState(state State, now time.Time) {
	prev := b.state
	if prev == state {
		return
	}

	b.state = state
	b.counts = Counts{}

	switch state {
	case StateClosed:
		b.expiry = time.Time{}
		if b.config.Interval > 0 {
			b.expiry = now.Add(b.config.Interval)
		}
	case StateOpen:
		b.expiry = now.Add(b.config.OpenTimeout)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, prev, state)
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(b.config.Now())
}

// Counts returns a copy of the current tallies
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset closes the breaker and clears its tallies
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed, b.config.Now())
	b.counts = Counts{}
}

// Name returns the backend name
func (b *Breaker) Name() string {
	return b.name
}

// Stats is a point-in-time view of one breaker
type Stats struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Counts Counts `json:"counts"`
}

// Group hands out one breaker per backend name, created on first use
type Group struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewGroup creates a group whose breakers share config
func NewGroup(config Config) *Group {
	return &Group{
		breakers: make(map[string]*Breaker),
		config:   config,
	}
}

// Get returns the breaker for name, creating it if needed
func (g *Group) Get(name string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, g.config)
	g.breakers[name] = b
	return b
}

func (g *Group) snapshot() []*Breaker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Stats returns a view of every breaker, ordered by name
func (g *Group) Stats() []Stats {
	breakers := g.snapshot()
	out := make([]Stats, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, Stats{Name: b.name, State: b.State().String(), Counts: b.Counts()})
	}
	return out
}

// Open returns the names of breakers currently rejecting fetches
func (g *Group) Open() []string {
	var open []string
	for _, b := range g.snapshot() {
		if b.State() == StateOpen {
			open = append(open, b.name)
		}
	}
	return open
}

// ResetAll closes every breaker
func (g *Group) ResetAll() {
	for _, b := range g.snapshot() {
		b.Reset()
	}
}

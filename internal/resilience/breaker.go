// Package resilience keeps a failing model backend from stalling every chat
// request.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [Group] tries a primary and its fallbacks in order, each behind its own
// breaker. [LLMGroup] and [EmbeddingsGroup] expose a Group as a regular
// provider so the generator never sees which backend answered.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] while the breaker rejects
// calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout has passed.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero values select the defaults.
type BreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string `yaml:"-"`

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the number of successful probes needed to close.
	// Default: 3.
	HalfOpenMax int `yaml:"half_open_max"`

	// OnStateChange is called after every transition, with the breaker
	// lock released.
	OnStateChange func(name string, from, to State) `yaml:"-"`

	// Now is the time source. Default: time.Now.
	Now func() time.Time `yaml:"-"`
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	cfg BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCalls int
	halfOpenOK    int
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Execute runs fn unless the breaker is open. Errors caused by the caller's
// context ending are returned but not counted as backend failures.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	probe, change, err := b.admit()
	b.notify(change)
	if err != nil {
		return err
	}

	err = fn()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.release(probe)
		return err
	}

	b.mu.Lock()
	if err != nil {
		change = b.fail(probe)
	} else {
		change = b.succeed(probe)
	}
	b.mu.Unlock()
	b.notify(change)
	return err
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	change := b.moveTo(StateClosed)
	b.mu.Unlock()
	b.notify(change)
}

type transition struct {
	from, to State
	changed  bool
}

// admit decides whether a call may proceed and reports whether it is a
// half-open probe.
func (b *Breaker) admit() (probe bool, change transition, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, transition{}, ErrCircuitOpen
		}
		change = b.moveTo(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.halfOpenCalls >= b.cfg.HalfOpenMax {
			return false, change, ErrCircuitOpen
		}
		b.halfOpenCalls++
		return true, change, nil
	}
	return false, change, nil
}

// release gives back a probe slot for a call that did not reach a verdict.
func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
}

// fail records a failure. b.mu must be held.
func (b *Breaker) fail(probe bool) transition {
	if probe {
		if b.state != StateHalfOpen {
			return transition{}
		}
		return b.moveTo(StateOpen)
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
		return b.moveTo(StateOpen)
	}
	return transition{}
}

// succeed records a success. b.mu must be held.
func (b *Breaker) succeed(probe bool) transition {
	if !probe {
		if b.state == StateClosed {
			b.failures = 0
		}
		return transition{}
	}
	if b.state != StateHalfOpen {
		return transition{}
	}
	b.halfOpenOK++
	if b.halfOpenOK >= b.cfg.HalfOpenMax {
		return b.moveTo(StateClosed)
	}
	return transition{}
}

// moveTo switches state and resets the counters of the new state. b.mu must
// be held.
func (b *Breaker) moveTo(s State) transition {
	from := b.state
	b.state = s
	switch s {
	case StateOpen:
		b.openedAt = b.cfg.Now()
	case StateHalfOpen:
		b.halfOpenCalls, b.halfOpenOK = 0, 0
	case StateClosed:
		b.failures, b.halfOpenCalls, b.halfOpenOK = 0, 0, 0
	}
	return transition{from: from, to: s, changed: from != s}
}

func (b *Breaker) notify(t transition) {
	if !t.changed {
		return
	}
	level := slog.LevelInfo
	if t.to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"name", b.cfg.Name, "from", t.from.String(), "to", t.to.String())
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, t.from, t.to)
	}
}

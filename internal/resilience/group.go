package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] failed or was
// skipped because its breaker is open.
var ErrAllFailed = errors.New("resilience: all providers failed")

// member pairs a backend with its breaker.
type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds a primary backend and fallbacks of the same type, each behind
// its own [Breaker]. Fallbacks must be added before the group is shared
// between goroutines.
type Group[T any] struct {
	members []member[T]
	cfg     BreakerConfig
}

// NewGroup creates a Group with primary as its first member. cfg is copied
// for every member's breaker, with the member name filled in.
func NewGroup[T any](name string, primary T, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a fallback, tried after all earlier members.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Primary returns the first member.
func (g *Group[T]) Primary() T {
	return g.members[0].value
}

// States reports the breaker state of every member by name.
func (g *Group[T]) States() map[string]State {
	out := make(map[string]State, len(g.members))
	for _, m := range g.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Available reports per member whether its breaker lets calls through.
func (g *Group[T]) Available() map[string]bool {
	out := make(map[string]bool, len(g.members))
	for _, m := range g.members {
		out[m.name] = m.breaker.State() != StateOpen
	}
	return out
}

// Do calls fn with each member in order until one succeeds. A cancelled
// context stops the walk immediately.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.members {
		m := &g.members[i]
		var res R
		err := m.breaker.Execute(ctx, func() error {
			var err error
			res, err = fn(m.value)
			return err
		})
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "provider", m.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

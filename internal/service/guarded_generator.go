package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fadilmartias/climate-tracker/internal/extraction"
)

// GuardedGenerator wraps a TextGenerator in a circuit breaker. After
// MaxFailures consecutive backend failures calls fail fast until Cooldown
// has passed. Requests are never retried; a retry would bill the document
// a second time.
type GuardedGenerator struct {
	next    extraction.TextGenerator
	breaker *gobreaker.CircuitBreaker[extraction.Usage]
}

type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	Cooldown    time.Duration
}

func NewGuardedGenerator(next extraction.TextGenerator, s BreakerSettings, logger *slog.Logger) *GuardedGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = time.Minute
	}
	if s.Name == "" {
		s.Name = "llm"
	}

	breaker := gobreaker.NewCircuitBreaker[extraction.Usage](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_change", "backend", name, "from", from.String(), "to", to.String())
		},
	})
	return &GuardedGenerator{next: next, breaker: breaker}
}

func (g *GuardedGenerator) StreamGenerate(ctx context.Context, req extraction.GenerateRequest, onChunk func(string)) (extraction.Usage, error) {
	var usage extraction.Usage
	_, err := g.breaker.Execute(func() (extraction.Usage, error) {
		u, err := g.next.StreamGenerate(ctx, req, onChunk)
		usage = u
		return u, err
	})
	if IsCircuitOpen(err) {
		return usage, fmt.Errorf("language model backend temporarily disabled after repeated failures: %w", err)
	}
	return usage, err
}

func (g *GuardedGenerator) State() gobreaker.State {
	return g.breaker.State()
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

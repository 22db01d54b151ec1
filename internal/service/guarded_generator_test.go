package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fadilmartias/climate-tracker/internal/extraction"
)

type scriptedGenerator struct {
	calls int
	errs  []error
}

func (s *scriptedGenerator) StreamGenerate(_ context.Context, _ extraction.GenerateRequest, onChunk func(string)) (extraction.Usage, error) {
	s.calls++
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	if err == nil {
		onChunk("{}")
	}
	return extraction.Usage{InputTokens: 3, OutputTokens: 1}, err
}

func TestGuardedGeneratorPassesThrough(t *testing.T) {
	next := &scriptedGenerator{}
	g := NewGuardedGenerator(next, BreakerSettings{MaxFailures: 2, Cooldown: time.Minute}, nil)

	var got string
	usage, err := g.StreamGenerate(context.Background(), extraction.GenerateRequest{Model: "m"}, func(s string) { got += s })
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
	assert.Equal(t, int64(4), usage.Total())
}

func TestGuardedGeneratorOpensWithoutRetrying(t *testing.T) {
	boom := errors.New("503 overloaded")
	next := &scriptedGenerator{errs: []error{boom, boom, boom}}
	g := NewGuardedGenerator(next, BreakerSettings{MaxFailures: 2, Cooldown: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		usage, err := g.StreamGenerate(context.Background(), extraction.GenerateRequest{}, func(string) {})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int64(3), usage.InputTokens, "usage is kept on failure")
	}
	assert.Equal(t, 2, next.calls, "each request reaches the backend exactly once")
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.StreamGenerate(context.Background(), extraction.GenerateRequest{}, func(string) {})
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, 2, next.calls, "open circuit must not call the backend")
}

func TestGuardedGeneratorIgnoresCallerCancellation(t *testing.T) {
	next := &scriptedGenerator{errs: []error{context.Canceled, context.Canceled, context.Canceled}}
	g := NewGuardedGenerator(next, BreakerSettings{MaxFailures: 2}, nil)

	for i := 0; i < 3; i++ {
		_, err := g.StreamGenerate(context.Background(), extraction.GenerateRequest{}, func(string) {})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

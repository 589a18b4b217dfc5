// Package score wraps the external toxicity scoring collaborator. The
// chain decides what a failure means (fail-open vs fail-closed); this
// package only reports it.
package score

import (
	"context"
	"errors"
)

// ErrServiceUnavailable is returned when the scoring backend cannot be
// reached or answers with a server error.
var ErrServiceUnavailable = errors.New("score: service unavailable")

// Scorer rates a text's toxicity in [0, 1].
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

type mockScorer struct {
	value float64
}

// NewMockScorer always returns a fixed score. Useful for development and
// for wiring the pipeline without a model.
func NewMockScorer(value float64) Scorer {
	return &mockScorer{value: value}
}

func (m *mockScorer) Score(context.Context, string) (float64, error) {
	return m.value, nil
}

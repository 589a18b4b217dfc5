// Package translate wraps the external translation collaborator.
// Translation failures are fail-open at the chain level: a message is
// still worth speaking untranslated.
package translate

import (
	"context"
	"errors"
)

// ErrServiceUnavailable is returned when the translation backend cannot
// be reached or answers with a server error.
var ErrServiceUnavailable = errors.New("translate: service unavailable")

// Translator renders text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

type mockTranslator struct{}

// NewMockTranslator echoes the input unchanged.
func NewMockTranslator() Translator {
	return &mockTranslator{}
}

func (mockTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

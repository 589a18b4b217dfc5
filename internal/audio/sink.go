package audio

import (
	"context"
	"sync"
	"time"

	"github.com/fjlabs/fjchat-core/internal/synth"
)

// Sink plays one clip to completion. Play blocks until the clip has
// been delivered or ctx is cancelled; the engine relies on this to keep
// utterances from overlapping.
type Sink interface {
	Play(ctx context.Context, name string, clip synth.Clip) error
	Close() error
}

// MockSink simulates playback by sleeping for the clip duration. It
// records what it played for inspection in tests.
type MockSink struct {
	// Realtime makes Play sleep for the clip's duration. Off by
	// default so tests run fast.
	Realtime bool

	mu     sync.Mutex
	played []string
}

func (m *MockSink) Play(ctx context.Context, name string, clip synth.Clip) error {
	if m.Realtime {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(clip.Duration()):
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.played = append(m.played, name)
	m.mu.Unlock()
	return nil
}

// Played returns the names passed to Play, in order.
func (m *MockSink) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.played...)
}

func (m *MockSink) Close() error { return nil }

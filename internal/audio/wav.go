package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fjlabs/fjchat-core/internal/synth"
)

const wavBitDepth = 16

// WAVSink writes each clip to its own WAV file under dir. Useful for
// headless hosts and for archiving what was spoken.
type WAVSink struct {
	dir string
}

// NewWAVSink creates dir if needed and returns a sink writing into it.
func NewWAVSink(dir string) (*WAVSink, error) {
	if dir == "" {
		dir = "./data/audio"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &WAVSink{dir: dir}, nil
}

func (w *WAVSink) Play(ctx context.Context, name string, clip synth.Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(w.dir, sanitizeName(name)+".wav")
	return writeWAV(path, clip)
}

func (w *WAVSink) Close() error { return nil }

func sanitizeName(name string) string {
	if name == "" {
		return "utterance"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

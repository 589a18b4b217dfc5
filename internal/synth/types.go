// Package synth turns utterance text into PCM audio. Providers follow
// the same shape: a mock for tests and development, and an exec
// provider that drives an external synthesis process over stdio.
package synth

import (
	"context"
	"time"
)

// Clip is mono or interleaved PCM at a fixed sample rate.
type Clip struct {
	PCM        []int
	SampleRate int
	Channels   int
}

// Duration reports the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	channels := c.Channels
	if channels < 1 {
		channels = 1
	}
	frames := len(c.PCM) / channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Request carries one synthesis job.
type Request struct {
	Text     string
	Profile  string
	Language string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Clip, error)
	Close() error
}

package synth

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// MockSynthesizer produces a short sine tone whose length scales with
// the input text. Deterministic, no external process.
type MockSynthesizer struct {
	sampleRate int
	channels   int
}

// NewMock returns a mock synthesizer emitting PCM at the given rate.
func NewMock(sampleRate, channels int) *MockSynthesizer {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if channels < 1 {
		channels = 1
	}
	return &MockSynthesizer{sampleRate: sampleRate, channels: channels}
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, req Request) (Clip, error) {
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Clip{}, fmt.Errorf("synth: empty text")
	}

	dur := 40 * time.Millisecond * time.Duration(len([]rune(text)))
	if dur < 200*time.Millisecond {
		dur = 200 * time.Millisecond
	}
	if dur > 3*time.Second {
		dur = 3 * time.Second
	}

	frames := int(dur.Seconds() * float64(m.sampleRate))
	pcm := make([]int, frames*m.channels)
	freq := 220.0 + float64(len(text)%12)*20.0
	for i := 0; i < frames; i++ {
		sample := int(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(m.sampleRate)))
		for ch := 0; ch < m.channels; ch++ {
			pcm[i*m.channels+ch] = sample
		}
	}
	return Clip{PCM: pcm, SampleRate: m.sampleRate, Channels: m.channels}, nil
}

func (m *MockSynthesizer) Close() error { return nil }

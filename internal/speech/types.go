// Package speech holds the bounded utterance queue and the playback
// engine that drains it. One engine consumes one queue; producers are
// the per-source filter workers.
package speech

import "time"

// Voice is the synthesis profile applied to a single utterance. It is
// snapshotted at enqueue time so a live voice change never mutates
// items already waiting in the queue.
type Voice struct {
	Profile  string
	Language string
	Volume   float64
	Speed    float64
}

// Clamp bounds the numeric fields to the ranges the audio stage
// accepts. Zero values are replaced with the neutral setting.
func (v Voice) Clamp() Voice {
	if v.Volume <= 0 {
		v.Volume = 1.0
	} else if v.Volume > 1.0 {
		v.Volume = 1.0
	}
	if v.Speed == 0 {
		v.Speed = 1.0
	} else if v.Speed < 0.5 {
		v.Speed = 0.5
	} else if v.Speed > 2.0 {
		v.Speed = 2.0
	}
	return v
}

// Utterance is a chat message that survived the filter chain and is
// ready for synthesis.
type Utterance struct {
	ID         string
	Source     string
	Author     string
	Text       string
	Voice      Voice
	EnqueuedAt time.Time
}

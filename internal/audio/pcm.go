// Package audio applies per-utterance volume and speed adjustments and
// delivers the resulting PCM to an output sink.
package audio

import "github.com/fjlabs/fjchat-core/internal/synth"

const (
	sampleMax = 32767
	sampleMin = -32768
)

// ApplyVolume scales every sample by volume in [0,1]. Out-of-range
// values are clamped; 1.0 returns the clip untouched.
func ApplyVolume(clip synth.Clip, volume float64) synth.Clip {
	if volume >= 1.0 {
		return clip
	}
	if volume < 0 {
		volume = 0
	}
	out := make([]int, len(clip.PCM))
	for i, s := range clip.PCM {
		v := int(float64(s) * volume)
		if v > sampleMax {
			v = sampleMax
		} else if v < sampleMin {
			v = sampleMin
		}
		out[i] = v
	}
	clip.PCM = out
	return clip
}

// Resample stretches or compresses the clip in time by linear
// interpolation. speed > 1 shortens playback, speed < 1 lengthens it.
// The sample rate is unchanged.
func Resample(clip synth.Clip, speed float64) synth.Clip {
	if speed == 1.0 || speed <= 0 {
		return clip
	}
	channels := clip.Channels
	if channels < 1 {
		channels = 1
	}
	frames := len(clip.PCM) / channels
	if frames < 2 {
		return clip
	}
	outFrames := int(float64(frames) / speed)
	if outFrames < 1 {
		outFrames = 1
	}
	out := make([]int, outFrames*channels)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * speed
		idx := int(pos)
		if idx >= frames-1 {
			idx = frames - 2
		}
		frac := pos - float64(idx)
		for ch := 0; ch < channels; ch++ {
			a := float64(clip.PCM[idx*channels+ch])
			b := float64(clip.PCM[(idx+1)*channels+ch])
			out[i*channels+ch] = int(a + (b-a)*frac)
		}
	}
	clip.PCM = out
	return clip
}

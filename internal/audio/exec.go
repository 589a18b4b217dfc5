package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"github.com/fjlabs/fjchat-core/internal/synth"
)

// ExecSink plays each clip by writing a temporary WAV file and handing
// its path to an external player command (aplay, afplay, ffplay). Play
// blocks until the player exits.
type ExecSink struct {
	cmd []string
}

// NewExecSink parses the player command line. The WAV path is appended
// as the final argument on each invocation.
func NewExecSink(command string) (*ExecSink, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command empty")
	}
	return &ExecSink{cmd: args}, nil
}

func (e *ExecSink) Play(ctx context.Context, name string, clip synth.Clip) error {
	path := filepath.Join(os.TempDir(), sanitizeName(name)+".wav")
	if err := writeWAV(path, clip); err != nil {
		return err
	}
	defer os.Remove(path)

	args := append(append([]string{}, e.cmd[1:]...), path)
	cmd := exec.CommandContext(ctx, e.cmd[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback command: %w: %s", err, out)
	}
	return nil
}

func (e *ExecSink) Close() error { return nil }

func writeWAV(path string, clip synth.Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	channels := clip.Channels
	if channels < 1 {
		channels = 1
	}
	enc := wav.NewEncoder(f, clip.SampleRate, wavBitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: clip.SampleRate},
		Data:           clip.PCM,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}

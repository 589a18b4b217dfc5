package synth

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExec builds a synthesizer that spawns the given command per
// request. The process reads one JSON request on stdin and replies with
// newline-delimited JSON chunks of base64 16-bit little-endian PCM.
func NewExec(command string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if channels < 1 {
		channels = 1
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      req.Profile,
		Language:   req.Language,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return Clip{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Clip{}, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Clip{}, err
	}
	if err := cmd.Start(); err != nil {
		return Clip{}, fmt.Errorf("start synth command: %w", err)
	}

	if _, err := stdin.Write(payload); err != nil {
		cmd.Wait()
		return Clip{}, err
	}
	stdin.Close()

	var pcm []int
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return Clip{}, fmt.Errorf("decode synth response: %w", err)
		}
		raw, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			cmd.Wait()
			return Clip{}, fmt.Errorf("decode synth pcm: %w", err)
		}
		pcm = appendSamples(pcm, raw)
		if resp.Final {
			break
		}
	}
	if err := cmd.Wait(); err != nil {
		return Clip{}, fmt.Errorf("synth command: %w", err)
	}
	if err := scanner.Err(); err != nil {
		return Clip{}, err
	}
	if len(pcm) == 0 {
		return Clip{}, fmt.Errorf("synth command produced no audio")
	}
	return Clip{PCM: pcm, SampleRate: e.sampleRate, Channels: e.channels}, nil
}

func (e *execSynth) Close() error { return nil }

func appendSamples(dst []int, raw []byte) []int {
	for i := 0; i+1 < len(raw); i += 2 {
		dst = append(dst, int(int16(binary.LittleEndian.Uint16(raw[i:]))))
	}
	return dst
}

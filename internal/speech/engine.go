package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjlabs/fjchat-core/internal/audio"
	"github.com/fjlabs/fjchat-core/internal/synth"
)

// Engine states, visible through State().
const (
	EngineIdle         = "idle"
	EngineSynthesizing = "synthesizing"
	EnginePlaying      = "playing"
	EngineStopped      = "stopped"
)

// Engine drains the queue with a single worker: dequeue, synthesize,
// adjust, play, repeat. One utterance is in flight at a time, which is
// what keeps speech output from overlapping.
type Engine struct {
	queue  *Queue
	synth  synth.Synthesizer
	sink   audio.Sink
	logger *slog.Logger

	state atomic.Value

	mu            sync.Mutex
	cancelCurrent context.CancelFunc

	spoken  atomic.Uint64
	skipped atomic.Uint64

	onSpoken  func(u Utterance, playtime time.Duration)
	onSkipped func(u Utterance, err error)

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEngine wires a queue to a synthesizer and sink. The callbacks are
// optional; they fire from the worker goroutine after each utterance.
func NewEngine(queue *Queue, syn synth.Synthesizer, sink audio.Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		queue:  queue,
		synth:  syn,
		sink:   sink,
		logger: logger.With("component", "speech"),
		done:   make(chan struct{}),
	}
	e.state.Store(EngineIdle)
	return e
}

// OnSpoken registers a callback invoked after an utterance finished
// playing. Must be called before Start.
func (e *Engine) OnSpoken(fn func(u Utterance, playtime time.Duration)) { e.onSpoken = fn }

// OnSkipped registers a callback invoked when an utterance was dequeued
// but never fully played. Must be called before Start.
func (e *Engine) OnSkipped(fn func(u Utterance, err error)) { e.onSkipped = fn }

// Start launches the playback worker. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		ctx, e.cancel = context.WithCancel(ctx)
		go e.run(ctx)
	})
}

// Stop cancels any in-flight utterance and waits for the worker to
// exit. Items still queued are not drained.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	e.state.Store(EngineStopped)
}

// State reports what the worker is doing right now.
func (e *Engine) State() string {
	return e.state.Load().(string)
}

// Spoken reports how many utterances played to completion.
func (e *Engine) Spoken() uint64 { return e.spoken.Load() }

// Skipped reports how many utterances were dequeued but not played.
func (e *Engine) Skipped() uint64 { return e.skipped.Load() }

// CancelCurrent aborts the utterance being synthesized or played, if
// any. Queued items are untouched and the worker moves on to the next.
func (e *Engine) CancelCurrent() {
	e.mu.Lock()
	cancel := e.cancelCurrent
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for {
		u, err := e.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrQueueClosed) {
				e.logger.Error("dequeue failed", "error", err)
			}
			e.state.Store(EngineStopped)
			return
		}
		e.speak(ctx, u)
	}
}

func (e *Engine) speak(ctx context.Context, u Utterance) {
	playCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelCurrent = cancel
	e.mu.Unlock()
	defer func() {
		cancel()
		e.mu.Lock()
		e.cancelCurrent = nil
		e.mu.Unlock()
		e.state.Store(EngineIdle)
	}()

	e.state.Store(EngineSynthesizing)
	clip, err := e.synth.Synthesize(playCtx, synth.Request{
		Text:     u.Text,
		Profile:  u.Voice.Profile,
		Language: u.Voice.Language,
	})
	if err != nil {
		e.skip(u, err, "synthesis failed")
		return
	}

	clip = audio.ApplyVolume(clip, u.Voice.Volume)
	clip = audio.Resample(clip, u.Voice.Speed)

	e.state.Store(EnginePlaying)
	started := time.Now()
	if err := e.sink.Play(playCtx, u.ID, clip); err != nil {
		e.skip(u, err, "playback interrupted")
		return
	}

	e.spoken.Add(1)
	e.logger.Debug("utterance spoken",
		"id", u.ID,
		"source", u.Source,
		"duration", clip.Duration())
	if e.onSpoken != nil {
		e.onSpoken(u, time.Since(started))
	}
}

func (e *Engine) skip(u Utterance, err error, msg string) {
	e.skipped.Add(1)
	if errors.Is(err, context.Canceled) {
		e.logger.Info("utterance cancelled", "id", u.ID)
	} else {
		e.logger.Warn(msg, "id", u.ID, "error", err)
	}
	if e.onSkipped != nil {
		e.onSkipped(u, err)
	}
}

package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fjlabs/fjchat-core/internal/audio"
	"github.com/fjlabs/fjchat-core/internal/chat"
	"github.com/fjlabs/fjchat-core/internal/config"
	"github.com/fjlabs/fjchat-core/internal/filter"
	"github.com/fjlabs/fjchat-core/internal/speech"
	"github.com/fjlabs/fjchat-core/internal/synth"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSource feeds canned events through the pipeline.
type fakeSource struct {
	events  chan chat.Event
	changes chan chat.StateChange
	stopped chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events:  make(chan chat.Event, 16),
		changes: make(chan chat.StateChange, 16),
		stopped: make(chan struct{}),
	}
}

func (f *fakeSource) Kind() chat.SourceKind                 { return chat.KindTwitch }
func (f *fakeSource) Start(ctx context.Context) error       { return nil }
func (f *fakeSource) Events() <-chan chat.Event             { return f.events }
func (f *fakeSource) State() chat.ConnectionState           { return chat.StateLive }
func (f *fakeSource) StateChanges() <-chan chat.StateChange { return f.changes }

func (f *fakeSource) Stop() {
	select {
	case <-f.stopped:
	default:
		close(f.stopped)
		close(f.events)
		close(f.changes)
	}
}

func newTestOrchestrator(t *testing.T, cfg config.Config) (*Orchestrator, *audio.MockSink) {
	t.Helper()
	rules := filter.RulesFromConfig(cfg.Filters, cfg.Toxicity, cfg.Translation)
	chain, err := filter.NewChain(rules, nil, nil, newLogger())
	if err != nil {
		t.Fatal(err)
	}
	queue := speech.NewQueue(cfg.Queue.Capacity)
	sink := &audio.MockSink{}
	engine := speech.NewEngine(queue, synth.NewMock(8000, 1), sink, newLogger())

	o, err := New(cfg, chain, queue, engine, nil, nil, newLogger())
	if err != nil {
		t.Fatal(err)
	}
	return o, sink
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestPipelineSpeaksMessages(t *testing.T) {
	cfg := config.Default()
	o, sink := newTestOrchestrator(t, cfg)
	if err := o.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	src := newFakeSource()
	id, err := o.attach(src, "test-channel")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty source id")
	}

	src.events <- chat.Event{ID: "m1", Author: "alice", Text: "hello world"}
	waitFor(t, func() bool { return len(sink.Played()) == 1 })

	statuses := o.Sources()
	if len(statuses) != 1 || statuses[0].Label != "test-channel" {
		t.Fatalf("sources = %+v", statuses)
	}
}

func TestPipelineRejectsStopWords(t *testing.T) {
	cfg := config.Default()
	cfg.Filters.StopWords = []string{"blocked"}
	o, sink := newTestOrchestrator(t, cfg)
	if err := o.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	src := newFakeSource()
	if _, err := o.attach(src, "chan"); err != nil {
		t.Fatal(err)
	}

	src.events <- chat.Event{ID: "m1", Author: "alice", Text: "this is blocked content"}
	src.events <- chat.Event{ID: "m2", Author: "bob", Text: "this is fine"}

	waitFor(t, func() bool { return len(sink.Played()) == 1 })
	if got := sink.Played(); got[0] != "m2" {
		t.Fatalf("played %v, want [m2]", got)
	}
}

func TestRemoveSource(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.Default())
	if err := o.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	src := newFakeSource()
	id, err := o.attach(src, "chan")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.RemoveSource(id); err != nil {
		t.Fatal(err)
	}
	if err := o.RemoveSource(id); err == nil {
		t.Fatal("expected error removing twice")
	}
	if len(o.Sources()) != 0 {
		t.Fatal("source still listed")
	}
}

func TestSetVoiceAppliesToNewUtterances(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.Default())
	o.SetVoice(speech.Voice{Profile: "ru_0", Language: "ru", Volume: 0.3, Speed: 1.5})
	v := o.Voice()
	if v.Profile != "ru_0" || v.Volume != 0.3 || v.Speed != 1.5 {
		t.Fatalf("voice = %+v", v)
	}

	// Out-of-range values are clamped, not rejected.
	o.SetVoice(speech.Voice{Volume: 5, Speed: 9})
	v = o.Voice()
	if v.Volume != 1.0 || v.Speed != 2.0 {
		t.Fatalf("clamped voice = %+v", v)
	}
}

func TestSetQueueCapacity(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.Default())
	o.SetQueueCapacity(3)
	if got := o.queue.Capacity(); got != 3 {
		t.Fatalf("capacity = %d, want 3", got)
	}
}

func TestBuildSourceValidation(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.Default())

	if _, _, err := o.buildSource(config.SourceConfig{Kind: "youtube"}); err == nil {
		t.Fatal("expected error for youtube without credentials")
	}
	if _, _, err := o.buildSource(config.SourceConfig{Kind: "twitch"}); err == nil {
		t.Fatal("expected error for twitch without channel")
	}
	if _, _, err := o.buildSource(config.SourceConfig{Kind: "discord"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if src, label, err := o.buildSource(config.SourceConfig{Kind: "twitch", Channel: "#FJ_Stream"}); err != nil {
		t.Fatal(err)
	} else {
		if src.Kind() != chat.KindTwitch {
			t.Fatalf("kind = %s", src.Kind())
		}
		if label != "#FJ_Stream" {
			t.Fatalf("label = %s", label)
		}
	}
}

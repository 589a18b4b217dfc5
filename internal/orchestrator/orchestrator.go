// Package orchestrator owns the live pipeline: it attaches chat
// sources, runs their events through normalization and the filter
// chain into the speech queue, and applies runtime control changes.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fjlabs/fjchat-core/internal/bus"
	"github.com/fjlabs/fjchat-core/internal/chat"
	"github.com/fjlabs/fjchat-core/internal/chat/twitch"
	"github.com/fjlabs/fjchat-core/internal/chat/youtube"
	"github.com/fjlabs/fjchat-core/internal/config"
	"github.com/fjlabs/fjchat-core/internal/filter"
	"github.com/fjlabs/fjchat-core/internal/protocol"
	"github.com/fjlabs/fjchat-core/internal/speech"
	"github.com/fjlabs/fjchat-core/internal/transcript"
)

const statsInterval = 5 * time.Second

// SourceStatus is a point-in-time view of one attached source.
type SourceStatus struct {
	ID    string
	Kind  chat.SourceKind
	Label string
	State chat.ConnectionState
}

type sourceHandle struct {
	id    string
	label string
	src   chat.Source
	norm  *chat.Normalizer
}

// Orchestrator wires sources to the speech pipeline and exposes the
// runtime control operations.
type Orchestrator struct {
	logger *slog.Logger
	chain  *filter.Chain
	queue  *speech.Queue
	engine *speech.Engine
	store  *transcript.Store
	bus    *bus.Client

	normOpts chat.NormalizeOptions

	mu      sync.Mutex
	sources map[string]*sourceHandle
	voice   speech.Voice

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   []*nats.Subscription

	meter         metric.Meter
	receivedCount metric.Int64Counter
	spokenCount   metric.Int64Counter
	droppedCount  metric.Int64Counter
}

// New builds an orchestrator around an already-constructed filter
// chain, queue, engine and transcript store. The bus client may be nil.
func New(cfg config.Config, chain *filter.Chain, queue *speech.Queue, engine *speech.Engine, store *transcript.Store, busClient *bus.Client, logger *slog.Logger) (*Orchestrator, error) {
	o := &Orchestrator{
		logger:  logger.With(slog.String("component", "orchestrator")),
		chain:   chain,
		queue:   queue,
		engine:  engine,
		store:   store,
		bus:     busClient,
		sources: make(map[string]*sourceHandle),
		voice: speech.Voice{
			Profile:  cfg.Voice.Profile,
			Language: cfg.Voice.Language,
			Volume:   cfg.Voice.Volume,
			Speed:    cfg.Voice.Speed,
		}.Clamp(),
		normOpts: chat.NormalizeOptions{
			StripLinks:   cfg.Filters.StripLinks,
			StripEmotes:  cfg.Filters.StripEmotes,
			MinLength:    cfg.Filters.MinLength,
			MaxLength:    cfg.Filters.MaxLength,
			IgnoreSystem: true,
			MembersOnly:  cfg.Filters.MembersOnly,
		},
		meter: otel.Meter("github.com/fjlabs/fjchat-core/runtime"),
	}

	if err := o.initMetrics(); err != nil {
		return nil, err
	}

	engine.OnSpoken(o.handleSpoken)
	engine.OnSkipped(o.handleSkipped)
	return o, nil
}

func (o *Orchestrator) initMetrics() error {
	var err error
	if o.receivedCount, err = o.meter.Int64Counter("fjchat.messages.received",
		metric.WithDescription("Chat messages accepted by normalization")); err != nil {
		return err
	}
	if o.spokenCount, err = o.meter.Int64Counter("fjchat.utterances.spoken",
		metric.WithDescription("Utterances played to completion")); err != nil {
		return err
	}
	if o.droppedCount, err = o.meter.Int64Counter("fjchat.utterances.dropped",
		metric.WithDescription("Utterances dropped or rejected before playback")); err != nil {
		return err
	}

	depthGauge, err := o.meter.Int64ObservableGauge("fjchat.queue.depth",
		metric.WithDescription("Current speech queue depth"))
	if err != nil {
		return err
	}
	sourceGauge, err := o.meter.Int64ObservableGauge("fjchat.sources.attached",
		metric.WithDescription("Number of attached chat sources"))
	if err != nil {
		return err
	}
	_, err = o.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(depthGauge, int64(o.queue.Len()))
		o.mu.Lock()
		n := len(o.sources)
		o.mu.Unlock()
		obs.ObserveInt64(sourceGauge, int64(n))
		return nil
	}, depthGauge, sourceGauge)
	return err
}

// Start launches the playback engine, the stats publisher and the
// control subscriptions, then attaches the sources from config.
func (o *Orchestrator) Start(ctx context.Context, sources []config.SourceConfig) error {
	o.ctx, o.cancel = context.WithCancel(ctx)

	o.engine.Start(o.ctx)

	if err := o.subscribeControls(); err != nil {
		return err
	}

	o.wg.Add(1)
	go o.statsLoop()

	for _, sc := range sources {
		if _, err := o.AddSource(sc); err != nil {
			return fmt.Errorf("attach %s source: %w", sc.Kind, err)
		}
	}
	return nil
}

// Stop detaches every source, closes the queue so the engine drains,
// and waits for all workers.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	handles := make([]*sourceHandle, 0, len(o.sources))
	for _, h := range o.sources {
		handles = append(handles, h)
	}
	o.mu.Unlock()
	for _, h := range handles {
		h.src.Stop()
	}

	if o.cancel != nil {
		o.cancel()
	}
	for _, sub := range o.subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	o.wg.Wait()

	o.queue.Close()
	o.engine.Stop()
}

// AddSource builds, starts and attaches the source described by sc. It
// returns the handle id used for RemoveSource.
func (o *Orchestrator) AddSource(sc config.SourceConfig) (string, error) {
	src, label, err := o.buildSource(sc)
	if err != nil {
		return "", err
	}
	return o.attach(src, label)
}

func (o *Orchestrator) attach(src chat.Source, label string) (string, error) {
	h := &sourceHandle{
		id:    uuid.NewString(),
		label: label,
		src:   src,
		norm:  chat.NewNormalizer(src.Kind(), o.normOpts),
	}

	if err := src.Start(o.ctx); err != nil {
		return "", fmt.Errorf("start source: %w", err)
	}

	o.mu.Lock()
	o.sources[h.id] = h
	o.mu.Unlock()

	o.wg.Add(2)
	go o.pumpEvents(h)
	go o.pumpStateChanges(h)

	o.logger.Info("source attached",
		slog.String("source_id", h.id),
		slog.String("kind", string(src.Kind())),
		slog.String("label", label))
	return h.id, nil
}

// RemoveSource stops and detaches the source with the given id.
func (o *Orchestrator) RemoveSource(id string) error {
	o.mu.Lock()
	h, ok := o.sources[id]
	if ok {
		delete(o.sources, id)
	}
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown source %q", id)
	}
	h.src.Stop()
	o.logger.Info("source detached", slog.String("source_id", id))
	return nil
}

// Sources lists the attached sources and their connection states.
func (o *Orchestrator) Sources() []SourceStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SourceStatus, 0, len(o.sources))
	for _, h := range o.sources {
		out = append(out, SourceStatus{
			ID:    h.id,
			Kind:  h.src.Kind(),
			Label: h.label,
			State: h.src.State(),
		})
	}
	return out
}

// SetFilterRules swaps the filter rule set.
func (o *Orchestrator) SetFilterRules(rules filter.Rules) error {
	if err := o.chain.SetRules(rules); err != nil {
		return err
	}
	o.logger.Info("filter rules updated")
	return nil
}

// SetVoice installs a new voice for utterances enqueued from now on.
// Items already queued keep the voice they were enqueued with.
func (o *Orchestrator) SetVoice(v speech.Voice) {
	v = v.Clamp()
	o.mu.Lock()
	o.voice = v
	o.mu.Unlock()
	o.logger.Info("voice updated",
		slog.String("profile", v.Profile),
		slog.Float64("volume", v.Volume),
		slog.Float64("speed", v.Speed))
}

// Voice returns the voice applied to newly enqueued utterances.
func (o *Orchestrator) Voice() speech.Voice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.voice
}

// SetQueueCapacity resizes the speech queue.
func (o *Orchestrator) SetQueueCapacity(n int) {
	o.queue.SetCapacity(n)
	o.logger.Info("queue capacity updated", slog.Int("capacity", o.queue.Capacity()))
	o.publishStats()
}

// CancelCurrent aborts the utterance being spoken, if any.
func (o *Orchestrator) CancelCurrent() {
	o.engine.CancelCurrent()
}

func (o *Orchestrator) buildSource(sc config.SourceConfig) (chat.Source, string, error) {
	switch chat.SourceKind(sc.Kind) {
	case chat.KindYouTube:
		if sc.APIKey == "" || sc.VideoID == "" {
			return nil, "", fmt.Errorf("youtube source requires api_key and video_id")
		}
		client := youtube.NewClient(sc.APIKey)
		return youtube.NewSource(sc.VideoID, client, o.logger), sc.VideoID, nil
	case chat.KindTwitch:
		if sc.Channel == "" {
			return nil, "", fmt.Errorf("twitch source requires channel")
		}
		return twitch.NewSource(sc.Channel, sc.Username, sc.OAuth, o.logger), sc.Channel, nil
	default:
		return nil, "", fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

func (o *Orchestrator) pumpEvents(h *sourceHandle) {
	defer o.wg.Done()
	for ev := range h.src.Events() {
		msg, ok := h.norm.Normalize(ev)
		if !ok {
			continue
		}
		o.receivedCount.Add(o.ctx, 1)

		u, rej := o.chain.Process(o.ctx, msg, o.Voice())
		if rej != nil {
			o.droppedCount.Add(o.ctx, 1)
			o.record(transcript.Entry{
				MessageID:   msg.ID,
				Source:      h.id,
				Author:      msg.Author,
				Text:        msg.Text,
				Disposition: transcript.DispositionRejected,
				Reason:      rej.String(),
			})
			continue
		}
		u.Source = h.id

		if !o.queue.Enqueue(u) {
			o.droppedCount.Add(o.ctx, 1)
			o.record(transcript.Entry{
				MessageID:   u.ID,
				Source:      h.id,
				Author:      u.Author,
				Text:        u.Text,
				Disposition: transcript.DispositionDropped,
				Reason:      "queue full",
			})
			o.publish(protocol.SubjectUtteranceDropped, protocol.UtteranceEvent{
				MessageID: u.ID,
				SourceID:  h.id,
				Author:    u.Author,
				Text:      u.Text,
				Reason:    "queue full",
				At:        time.Now().UTC(),
			})
		}
	}
}

func (o *Orchestrator) pumpStateChanges(h *sourceHandle) {
	defer o.wg.Done()
	for sc := range h.src.StateChanges() {
		msg := protocol.SourceState{
			SourceID: h.id,
			Kind:     string(h.src.Kind()),
			State:    string(sc.State),
			At:       sc.At,
		}
		if sc.Err != nil {
			msg.Error = sc.Err.Error()
		}
		o.logger.Info("source state changed",
			slog.String("source_id", h.id),
			slog.String("state", string(sc.State)))
		o.publish(protocol.SubjectSourceState, msg)
	}
}

func (o *Orchestrator) handleSpoken(u speech.Utterance, playtime time.Duration) {
	o.spokenCount.Add(context.Background(), 1)
	o.record(transcript.Entry{
		MessageID:   u.ID,
		Source:      u.Source,
		Author:      u.Author,
		Text:        u.Text,
		Disposition: transcript.DispositionSpoken,
	})
	o.publish(protocol.SubjectUtteranceSpoken, protocol.UtteranceEvent{
		MessageID: u.ID,
		SourceID:  u.Source,
		Author:    u.Author,
		Text:      u.Text,
		At:        time.Now().UTC(),
	})
	o.logger.Debug("utterance spoken",
		slog.String("id", u.ID),
		slog.Duration("playtime", playtime))
}

func (o *Orchestrator) handleSkipped(u speech.Utterance, err error) {
	o.droppedCount.Add(context.Background(), 1)
	o.record(transcript.Entry{
		MessageID:   u.ID,
		Source:      u.Source,
		Author:      u.Author,
		Text:        u.Text,
		Disposition: transcript.DispositionSkipped,
		Reason:      err.Error(),
	})
	o.publish(protocol.SubjectUtteranceDropped, protocol.UtteranceEvent{
		MessageID: u.ID,
		SourceID:  u.Source,
		Author:    u.Author,
		Text:      u.Text,
		Reason:    err.Error(),
		At:        time.Now().UTC(),
	})
}

func (o *Orchestrator) subscribeControls() error {
	if o.bus == nil {
		return nil
	}
	sub, err := bus.SubscribeJSON(o.bus, protocol.SubjectControlFilter, o.applyFilterControl)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectControlFilter, err)
	}
	o.subs = append(o.subs, sub)

	sub, err = bus.SubscribeJSON(o.bus, protocol.SubjectControlVoice, o.applyVoiceControl)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectControlVoice, err)
	}
	o.subs = append(o.subs, sub)
	return nil
}

func (o *Orchestrator) applyFilterControl(ctl protocol.FilterControl) {
	rules := o.chain.Rules()
	if ctl.StopWords != nil {
		rules.StopWords = ctl.StopWords
	}
	if ctl.StopPatterns != nil {
		rules.StopPatterns = ctl.StopPatterns
	}
	if ctl.ReadAuthorNames != nil {
		rules.ReadAuthorNames = *ctl.ReadAuthorNames
	}
	if ctl.ExpandNumbers != nil {
		rules.ExpandNumbers = *ctl.ExpandNumbers
	}
	if ctl.TargetLanguage != nil {
		rules.TargetLanguage = *ctl.TargetLanguage
	}
	if err := o.SetFilterRules(rules); err != nil {
		o.logger.Warn("rejecting filter control", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) applyVoiceControl(ctl protocol.VoiceControl) {
	v := o.Voice()
	if ctl.Profile != nil {
		v.Profile = *ctl.Profile
	}
	if ctl.Language != nil {
		v.Language = *ctl.Language
	}
	if ctl.Volume != nil {
		v.Volume = *ctl.Volume
	}
	if ctl.Speed != nil {
		v.Speed = *ctl.Speed
	}
	o.SetVoice(v)
}

func (o *Orchestrator) statsLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.publishStats()
		}
	}
}

func (o *Orchestrator) publishStats() {
	o.publish(protocol.SubjectQueueStats, protocol.QueueStats{
		Depth:    o.queue.Len(),
		Capacity: o.queue.Capacity(),
		Dropped:  o.queue.Dropped(),
		Spoken:   o.engine.Spoken(),
		Skipped:  o.engine.Skipped(),
		Rejected: o.chain.Rejected(),
		Engine:   o.engine.State(),
		At:       time.Now().UTC(),
	})
}

func (o *Orchestrator) publish(subject string, v any) {
	if err := o.bus.PublishJSON(subject, v); err != nil {
		o.logger.Warn("bus publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) record(e transcript.Entry) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.store.Append(ctx, e); err != nil {
		o.logger.Warn("transcript append failed", slog.String("error", err.Error()))
	}
}

// Package runtime assembles the daemon: telemetry, bus, transcript
// store, filter chain, speech pipeline and the orchestrator on top,
// plus the health endpoints.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjlabs/fjchat-core/internal/audio"
	"github.com/fjlabs/fjchat-core/internal/bus"
	"github.com/fjlabs/fjchat-core/internal/config"
	"github.com/fjlabs/fjchat-core/internal/filter"
	"github.com/fjlabs/fjchat-core/internal/natsserver"
	"github.com/fjlabs/fjchat-core/internal/orchestrator"
	"github.com/fjlabs/fjchat-core/internal/score"
	"github.com/fjlabs/fjchat-core/internal/speech"
	"github.com/fjlabs/fjchat-core/internal/synth"
	"github.com/fjlabs/fjchat-core/internal/transcript"
	"github.com/fjlabs/fjchat-core/internal/translate"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the whole pipeline up and blocks until ctx is cancelled,
// then tears everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		r.logger.Warn("running without bus", slog.String("error", err.Error()))
		busClient = nil
	}

	store, err := transcript.Open(ctx, r.cfg.Transcript, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}

	chain, err := r.buildChain()
	if err != nil {
		return err
	}

	queue := speech.NewQueue(r.cfg.Queue.Capacity)

	synthesizer, err := r.buildSynthesizer()
	if err != nil {
		return err
	}
	sink, err := r.buildSink()
	if err != nil {
		return err
	}

	engine := speech.NewEngine(queue, synthesizer, sink, r.logger)

	orch, err := orchestrator.New(r.cfg, chain, queue, engine, store, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}
	if err := orch.Start(ctx, r.cfg.Sources); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.Int("sources", len(r.cfg.Sources)))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	orch.Stop()
	if err := synthesizer.Close(); err != nil {
		r.logger.Error("synthesizer close error", slog.String("error", err.Error()))
	}
	if err := sink.Close(); err != nil {
		r.logger.Error("sink close error", slog.String("error", err.Error()))
	}
	if err := store.Close(); err != nil {
		r.logger.Error("transcript close error", slog.String("error", err.Error()))
	}
	busClient.Close()
	embedded.Shutdown()

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
	return nil
}

func (r *Runtime) buildChain() (*filter.Chain, error) {
	var scorer score.Scorer
	if r.cfg.Toxicity.Enabled {
		switch r.cfg.Toxicity.Mode {
		case "http":
			scorer = score.NewHTTPScorer(r.cfg.Toxicity.Endpoint)
		default:
			scorer = score.NewMockScorer(0)
		}
	}

	var translator translate.Translator
	if r.cfg.Translation.Enabled {
		switch r.cfg.Translation.Mode {
		case "http":
			translator = translate.NewHTTPTranslator(r.cfg.Translation.Endpoint)
		default:
			translator = translate.NewMockTranslator()
		}
	}

	rules := filter.RulesFromConfig(r.cfg.Filters, r.cfg.Toxicity, r.cfg.Translation)
	chain, err := filter.NewChain(rules, scorer, translator, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter chain: %w", err)
	}
	return chain, nil
}

func (r *Runtime) buildSynthesizer() (synth.Synthesizer, error) {
	switch r.cfg.Synth.Mode {
	case "exec":
		s, err := synth.NewExec(r.cfg.Synth.Command, r.cfg.Synth.SampleRate, r.cfg.Synth.Channels)
		if err != nil {
			return nil, fmt.Errorf("failed to build synthesizer: %w", err)
		}
		return s, nil
	default:
		return synth.NewMock(r.cfg.Synth.SampleRate, r.cfg.Synth.Channels), nil
	}
}

func (r *Runtime) buildSink() (audio.Sink, error) {
	switch r.cfg.Playback.Sink {
	case "wav":
		s, err := audio.NewWAVSink(r.cfg.Playback.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to build playback sink: %w", err)
		}
		return s, nil
	case "exec":
		s, err := audio.NewExecSink(r.cfg.Playback.Command)
		if err != nil {
			return nil, fmt.Errorf("failed to build playback sink: %w", err)
		}
		return s, nil
	default:
		return &audio.MockSink{Realtime: true}, nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

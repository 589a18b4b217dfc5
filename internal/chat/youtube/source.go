package youtube

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fjlabs/fjchat-core/internal/chat"
)

const (
	minPollInterval = 1 * time.Second
	maxBackoff      = 60 * time.Second
	maxRetries      = 8
)

// Source polls a YouTube live chat. At-least-once: a transient error
// retries the same continuation token, so duplicates across the retry
// boundary are possible and are removed downstream by message id.
type Source struct {
	videoID string
	fetcher PageFetcher
	logger  *slog.Logger

	tracker *chat.StateTracker
	events  chan chat.Event

	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSource(videoID string, fetcher PageFetcher, logger *slog.Logger) *Source {
	return &Source{
		videoID: videoID,
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "youtube-source"), slog.String("video_id", videoID)),
		tracker: chat.NewStateTracker(),
		events:  make(chan chat.Event, 64),
		done:    make(chan struct{}),
	}
}

func (s *Source) Kind() chat.SourceKind                 { return chat.KindYouTube }
func (s *Source) Events() <-chan chat.Event             { return s.events }
func (s *Source) State() chat.ConnectionState           { return s.tracker.State() }
func (s *Source) StateChanges() <-chan chat.StateChange { return s.tracker.StateChanges() }

func (s *Source) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started.Store(true)
	go s.run(ctx)
	return nil
}

// Stop is safe to call whether or not Start ran; it only waits for the
// poll loop when one was launched.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	if !s.started.Load() {
		return
	}
	<-s.done
}

func (s *Source) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)
	defer s.tracker.Close()

	s.tracker.Set(chat.StateConnecting, nil)

	chatID, err := s.fetcher.LiveChatID(ctx, s.videoID)
	if err != nil {
		if ctx.Err() != nil {
			s.tracker.Set(chat.StateStopped, nil)
			return
		}
		s.logger.Error("failed to resolve live chat id", slog.String("error", err.Error()))
		s.tracker.Set(chat.StateFailed, err)
		return
	}

	s.tracker.Set(chat.StateLive, nil)
	s.logger.Info("connected to live chat", slog.String("chat_id", chatID))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = maxBackoff
	bo.Multiplier = 2

	pageToken := ""
	retries := 0

	for {
		page, err := s.fetcher.FetchPage(ctx, chatID, pageToken)
		switch {
		case err == nil:
			retries = 0
			bo.Reset()
			if s.tracker.State() != chat.StateLive {
				s.tracker.Set(chat.StateLive, nil)
			}
			for _, ev := range page.Events {
				select {
				case s.events <- ev:
				case <-ctx.Done():
					s.tracker.Set(chat.StateStopped, nil)
					return
				}
			}
			// the response's continuation token carries forward so no
			// messages are skipped between polls
			pageToken = page.NextToken
			interval := page.Interval
			if interval < minPollInterval {
				interval = minPollInterval
			}
			if !s.sleep(ctx, interval) {
				s.tracker.Set(chat.StateStopped, nil)
				return
			}

		case errors.Is(err, ErrQuotaExceeded):
			// terminal for this handle: quota resets on a daily boundary
			// outside our control, so report instead of hammering the API
			s.logger.Warn("api quota exhausted, stopping source")
			s.tracker.Set(chat.StateQuotaExhausted, err)
			return

		case ctx.Err() != nil:
			s.tracker.Set(chat.StateStopped, nil)
			return

		default:
			retries++
			if retries > maxRetries {
				s.logger.Error("giving up after repeated fetch errors", slog.String("error", err.Error()))
				s.tracker.Set(chat.StateFailed, err)
				return
			}
			wait := bo.NextBackOff()
			s.logger.Warn("fetch failed, retrying with same token",
				slog.String("error", err.Error()),
				slog.Duration("backoff", wait),
				slog.Int("attempt", retries))
			s.tracker.Set(chat.StateReconnecting, err)
			if !s.sleep(ctx, wait) {
				s.tracker.Set(chat.StateStopped, nil)
				return
			}
		}
	}
}

func (s *Source) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

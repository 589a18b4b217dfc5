package twitch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	irc "github.com/gempir/go-twitch-irc/v4"

	"github.com/fjlabs/fjchat-core/internal/chat"
)

const (
	backoffBase   = 1 * time.Second
	backoffCap    = 60 * time.Second
	backoffFactor = 2
	// a connection held this long counts as stable and resets the backoff
	stablePeriod = 60 * time.Second
)

// Conn is the slice of the IRC client the reconnect loop needs. A Conn is
// single-use: Run blocks until the connection drops or Close is called.
type Conn interface {
	OnMessage(func(chat.Event))
	OnConnect(func())
	Join(channel string)
	Run() error
	Close() error
}

// Dialer builds a fresh Conn per connection attempt.
type Dialer func() Conn

// Source maintains one long-lived IRC connection to a Twitch channel,
// resubscribing with jittered exponential backoff after unexpected
// disconnects. Messages lost in a disconnect window are gone; Twitch
// offers no replay.
type Source struct {
	channel string
	dial    Dialer
	logger  *slog.Logger

	tracker *chat.StateTracker
	events  chan chat.Event

	mu       sync.Mutex
	conn     Conn
	stopping bool

	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSource connects anonymously when username is empty, which is enough
// for read-only chat consumption.
func NewSource(channel, username, oauth string, logger *slog.Logger) *Source {
	dial := func() Conn {
		if username == "" {
			return &gempirConn{client: irc.NewAnonymousClient()}
		}
		return &gempirConn{client: irc.NewClient(username, oauth)}
	}
	return newSource(channel, dial, logger)
}

func newSource(channel string, dial Dialer, logger *slog.Logger) *Source {
	channel = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(channel)), "#")
	return &Source{
		channel: channel,
		dial:    dial,
		logger:  logger.With(slog.String("component", "twitch-source"), slog.String("channel", channel)),
		tracker: chat.NewStateTracker(),
		events:  make(chan chat.Event, 64),
		done:    make(chan struct{}),
	}
}

func (s *Source) Kind() chat.SourceKind                 { return chat.KindTwitch }
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
// reconnect loop when one was launched.
func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
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

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffBase
	bo.Multiplier = backoffFactor
	bo.MaxInterval = backoffCap
	bo.RandomizationFactor = 0.5

	first := true
	for {
		if ctx.Err() != nil || s.isStopping() {
			s.tracker.Set(chat.StateStopped, nil)
			return
		}
		if first {
			s.tracker.Set(chat.StateConnecting, nil)
			first = false
		}

		connectedAt, err := s.connectOnce(ctx)
		if ctx.Err() != nil || s.isStopping() {
			s.tracker.Set(chat.StateStopped, nil)
			return
		}

		if !connectedAt.IsZero() && time.Since(connectedAt) >= stablePeriod {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		s.logger.Warn("disconnected, will resubscribe",
			slog.String("error", errString(err)),
			slog.Duration("backoff", wait))
		s.tracker.Set(chat.StateReconnecting, err)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.tracker.Set(chat.StateStopped, nil)
			return
		}
	}
}

// connectOnce dials, joins the channel, and blocks until the connection
// ends. Returns the time the connection went live (zero if it never did).
// The IRC client fires OnConnect from its own goroutine, so the Live
// transition is routed through a channel and applied here, keeping the
// tracker single-writer. A callback that straggles in after the
// connection already dropped is discarded instead of flipping the state
// back to Live mid-backoff.
func (s *Source) connectOnce(ctx context.Context) (time.Time, error) {
	conn := s.dial()

	live := make(chan time.Time, 1)
	conn.OnConnect(func() {
		select {
		case live <- time.Now():
		default:
		}
	})
	conn.OnMessage(func(ev chat.Event) {
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	})
	conn.Join(s.channel)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = conn.Close()
		return time.Time{}, nil
	}
	s.conn = conn
	s.mu.Unlock()

	runDone := make(chan error, 1)
	go func() { runDone <- conn.Run() }()

	var liveAt time.Time
	var err error
loop:
	for {
		select {
		case t := <-live:
			liveAt = t
			s.tracker.Set(chat.StateLive, nil)
			s.logger.Info("joined channel")
		case err = <-runDone:
			// keep liveAt for the stable-period check even when the
			// connect notification lost the race with the disconnect
			select {
			case t := <-live:
				if liveAt.IsZero() {
					liveAt = t
				}
			default:
			}
			break loop
		}
	}

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	return liveAt, err
}

func (s *Source) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}

// gempirConn adapts the go-twitch-irc client to the Conn seam.
type gempirConn struct {
	client *irc.Client
}

func (g *gempirConn) OnMessage(fn func(chat.Event)) {
	g.client.OnPrivateMessage(func(msg irc.PrivateMessage) {
		_, subscriber := msg.User.Badges["subscriber"]
		_, moderator := msg.User.Badges["moderator"]
		_, broadcaster := msg.User.Badges["broadcaster"]
		author := msg.User.DisplayName
		if author == "" {
			author = msg.User.Name
		}
		fn(chat.Event{
			ID:         msg.ID,
			Author:     author,
			Text:       msg.Message,
			Member:     subscriber || moderator || broadcaster,
			ReceivedAt: msg.Time.UTC(),
		})
	})
}

func (g *gempirConn) OnConnect(fn func()) { g.client.OnConnect(fn) }
func (g *gempirConn) Join(channel string) { g.client.Join(channel) }
func (g *gempirConn) Run() error          { return g.client.Connect() }
func (g *gempirConn) Close() error        { return g.client.Disconnect() }

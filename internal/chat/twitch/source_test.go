package twitch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fjlabs/fjchat-core/internal/chat"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeConn simulates one IRC connection attempt. silent suppresses the
// connect callback; lateConnect fires it from a separate goroutine only
// after Run has already returned, the way a slow IRC client thread can.
type fakeConn struct {
	mu        sync.Mutex
	onMessage func(chat.Event)
	onConnect func()
	joined    string

	silent      bool
	lateConnect bool

	runErr  error
	release chan struct{}
	closed  chan struct{}
}

func newFakeConn(runErr error) *fakeConn {
	return &fakeConn{
		runErr:  runErr,
		release: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) OnMessage(fn func(chat.Event)) { f.mu.Lock(); f.onMessage = fn; f.mu.Unlock() }
func (f *fakeConn) OnConnect(fn func())           { f.mu.Lock(); f.onConnect = fn; f.mu.Unlock() }
func (f *fakeConn) Join(channel string)           { f.mu.Lock(); f.joined = channel; f.mu.Unlock() }

func (f *fakeConn) Run() error {
	f.mu.Lock()
	connect := f.onConnect
	f.mu.Unlock()
	if connect != nil && !f.silent && !f.lateConnect {
		connect()
	}
	select {
	case <-f.release:
	case <-f.closed:
	}
	if connect != nil && f.lateConnect {
		go func() {
			time.Sleep(30 * time.Millisecond)
			connect()
		}()
	}
	return f.runErr
}

func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeConn) deliver(ev chat.Event) {
	f.mu.Lock()
	fn := f.onMessage
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// drop ends the connection as if the network failed.
func (f *fakeConn) drop() {
	select {
	case <-f.release:
	default:
		close(f.release)
	}
}

func waitState(t *testing.T, src *Source, want chat.ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if src.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", src.State(), want)
}

func TestSourceDeliversMessages(t *testing.T) {
	conn := newFakeConn(nil)
	src := newSource("#FJ_Channel", func() Conn { return conn }, newLogger())
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer src.Stop()

	waitState(t, src, chat.StateLive)
	conn.mu.Lock()
	joined := conn.joined
	conn.mu.Unlock()
	if joined != "fj_channel" {
		t.Fatalf("joined %q, want normalized channel name", joined)
	}

	conn.deliver(chat.Event{ID: "m1", Author: "alice", Text: "hello"})
	select {
	case ev := <-src.Events():
		if ev.ID != "m1" {
			t.Fatalf("event id = %s", ev.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSourceReconnectsAfterDisconnect(t *testing.T) {
	first := newFakeConn(errors.New("read tcp: connection reset"))
	second := newFakeConn(nil)

	var mu sync.Mutex
	dials := 0
	dial := func() Conn {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return first
		}
		return second
	}

	src := newSource("somechannel", dial, newLogger())
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer src.Stop()

	waitState(t, src, chat.StateLive)
	first.drop()
	waitState(t, src, chat.StateReconnecting)
	waitState(t, src, chat.StateLive)

	mu.Lock()
	n := dials
	mu.Unlock()
	if n != 2 {
		t.Fatalf("dials = %d, want 2", n)
	}

	// The replacement connection still delivers messages.
	second.deliver(chat.Event{ID: "m2", Author: "bob", Text: "back"})
	select {
	case ev := <-src.Events():
		if ev.ID != "m2" {
			t.Fatalf("event id = %s", ev.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}
}

func TestSourceLateConnectDoesNotResurrectLive(t *testing.T) {
	// The first connection drops instantly; its connect callback arrives
	// from the client goroutine only after the run loop has moved on.
	first := newFakeConn(errors.New("read tcp: connection reset"))
	first.lateConnect = true
	first.drop()
	second := newFakeConn(nil)
	second.silent = true

	var mu sync.Mutex
	dials := 0
	dial := func() Conn {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return first
		}
		return second
	}

	src := newSource("somechannel", dial, newLogger())
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer src.Stop()

	waitState(t, src, chat.StateReconnecting)

	// Outlast the straggling callback; the backoff wait is still running,
	// so any Live reading here could only come from the dead connection.
	time.Sleep(100 * time.Millisecond)
	if got := src.State(); got == chat.StateLive {
		t.Fatal("stale connect callback flipped state back to live")
	}
}

func TestSourceStopWithoutStart(t *testing.T) {
	src := newSource("chan", func() Conn { return newFakeConn(nil) }, newLogger())
	done := make(chan struct{})
	go func() {
		src.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop hung on a source that was never started")
	}
}

func TestSourceStop(t *testing.T) {
	conn := newFakeConn(nil)
	src := newSource("chan", func() Conn { return conn }, newLogger())
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitState(t, src, chat.StateLive)

	src.Stop()
	if src.State() != chat.StateStopped {
		t.Fatalf("state = %s, want stopped", src.State())
	}
	if _, open := <-src.Events(); open {
		t.Fatal("events channel still open after stop")
	}
}

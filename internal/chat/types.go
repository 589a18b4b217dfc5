package chat

import (
	"context"
	"time"
)

// SourceKind identifies the platform a message came from.
type SourceKind string

const (
	KindYouTube SourceKind = "youtube"
	KindTwitch  SourceKind = "twitch"
)

// ConnectionState tracks the lifecycle of one source connection. It is
// written only by the source's own worker and read by everyone else.
type ConnectionState string

const (
	StateConnecting     ConnectionState = "connecting"
	StateLive           ConnectionState = "live"
	StateReconnecting   ConnectionState = "reconnecting"
	StateQuotaExhausted ConnectionState = "quota_exhausted"
	StateStopped        ConnectionState = "stopped"
	StateFailed         ConnectionState = "failed"
)

// Event is a raw platform event as delivered by a Source, before
// normalization.
type Event struct {
	ID         string
	Author     string
	Text       string
	Member     bool
	System     bool
	ReceivedAt time.Time
}

// StateChange is emitted on a source's state channel whenever its
// ConnectionState moves.
type StateChange struct {
	State ConnectionState
	Err   error
	At    time.Time
}

// Message is the canonical representation of one received chat line.
// Immutable once built by the Normalizer.
type Message struct {
	ID         string
	Source     SourceKind
	Author     string
	RawText    string
	Text       string
	ReceivedAt time.Time
	Sequence   uint64
}

// Source produces raw chat events for one platform connection. A handle is
// single-use: after Stop (or a terminal failure) the event channel is
// closed and a fresh connection requires a new Source value.
type Source interface {
	Kind() SourceKind
	Start(ctx context.Context) error
	Stop()
	Events() <-chan Event
	State() ConnectionState
	StateChanges() <-chan StateChange
}

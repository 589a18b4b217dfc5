package chat

import (
	"sync/atomic"
	"time"
)

// StateTracker holds a source's ConnectionState and fans changes out on a
// buffered channel. Writes come only from the owning source's loop;
// State() is safe to call from any goroutine.
type StateTracker struct {
	state   atomic.Value // ConnectionState
	changes chan StateChange
}

func NewStateTracker() *StateTracker {
	t := &StateTracker{
		changes: make(chan StateChange, 16),
	}
	t.state.Store(StateConnecting)
	return t
}

func (t *StateTracker) State() ConnectionState {
	return t.state.Load().(ConnectionState)
}

func (t *StateTracker) StateChanges() <-chan StateChange {
	return t.changes
}

// Set records the new state. A slow listener never blocks the source loop:
// if the channel is full the oldest pending change is discarded.
func (t *StateTracker) Set(state ConnectionState, err error) {
	t.state.Store(state)
	change := StateChange{State: state, Err: err, At: time.Now().UTC()}
	for {
		select {
		case t.changes <- change:
			return
		default:
			select {
			case <-t.changes:
			default:
			}
		}
	}
}

// Close ends the change stream. Call only after the source loop has made
// its final Set.
func (t *StateTracker) Close() {
	close(t.changes)
}

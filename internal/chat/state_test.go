package chat

import "testing"

func TestStateTrackerSetAndRead(t *testing.T) {
	tr := NewStateTracker()
	if tr.State() != StateConnecting {
		t.Fatalf("initial state = %s", tr.State())
	}
	tr.Set(StateLive, nil)
	if tr.State() != StateLive {
		t.Fatalf("state = %s", tr.State())
	}
	sc := <-tr.StateChanges()
	if sc.State != StateLive || sc.At.IsZero() {
		t.Fatalf("change = %+v", sc)
	}
}

func TestStateTrackerNeverBlocks(t *testing.T) {
	tr := NewStateTracker()
	// Far more transitions than the channel buffers, with no reader.
	for i := 0; i < 100; i++ {
		tr.Set(StateReconnecting, nil)
		tr.Set(StateLive, nil)
	}
	tr.Close()

	var last StateChange
	for sc := range tr.StateChanges() {
		last = sc
	}
	if last.State != StateLive {
		t.Fatalf("last buffered change = %s, want the most recent state", last.State)
	}
}

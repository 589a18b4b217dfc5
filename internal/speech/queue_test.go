package speech

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	for _, id := range []string{"a", "b", "c"} {
		if !q.Enqueue(Utterance{ID: id}) {
			t.Fatalf("enqueue %s refused", id)
		}
	}
	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		u, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if u.ID != want {
			t.Fatalf("got %s, want %s", u.ID, want)
		}
	}
}

func TestQueueDropsNewestWhenFull(t *testing.T) {
	q := NewQueue(2)
	if !q.Enqueue(Utterance{ID: "a"}) || !q.Enqueue(Utterance{ID: "b"}) {
		t.Fatal("initial enqueues refused")
	}
	if q.Enqueue(Utterance{ID: "c"}) {
		t.Fatal("enqueue into full queue should be refused")
	}
	if got := q.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}

	ctx := context.Background()
	u, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "a" {
		t.Fatalf("first out = %s, want a", u.ID)
	}
	u, _ = q.Dequeue(ctx)
	if u.ID != "b" {
		t.Fatalf("second out = %s, want b", u.ID)
	}
	if q.Len() != 0 {
		t.Fatalf("len = %d, want 0", q.Len())
	}
}

func TestQueueConcurrentEnqueueHoldsCapacity(t *testing.T) {
	const producers = 16
	q := NewQueue(3)

	var accepted atomic.Int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if q.Enqueue(Utterance{ID: strconv.Itoa(i)}) {
				accepted.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	// The capacity check and the insert happen under one lock, so exactly
	// capacity producers win no matter how the race lands.
	if got := accepted.Load(); got != 3 {
		t.Fatalf("accepted = %d, want 3", got)
	}
	if got := q.Dropped(); got != producers-3 {
		t.Fatalf("dropped = %d, want %d", got, producers-3)
	}
	if q.Len() > q.Capacity() {
		t.Fatalf("len %d exceeds capacity %d", q.Len(), q.Capacity())
	}
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue(2)
	got := make(chan Utterance, 1)
	go func() {
		u, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		got <- u
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(Utterance{ID: "x"})

	select {
	case u := <-got:
		if u.ID != "x" {
			t.Fatalf("got %s, want x", u.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue never woke up")
	}
}

func TestQueueDequeueContextCancel(t *testing.T) {
	q := NewQueue(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue(4)
	q.Enqueue(Utterance{ID: "a"})
	q.Close()

	if q.Enqueue(Utterance{ID: "late"}) {
		t.Fatal("enqueue after close should be refused")
	}

	ctx := context.Background()
	u, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "a" {
		t.Fatalf("got %s, want a", u.ID)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestQueueSetCapacityKeepsExistingItems(t *testing.T) {
	q := NewQueue(4)
	for _, id := range []string{"a", "b", "c", "d"} {
		q.Enqueue(Utterance{ID: id})
	}
	q.SetCapacity(2)

	// Shrinking never evicts; it only gates new arrivals.
	if got := q.Dropped(); got != 0 {
		t.Fatalf("dropped = %d, want 0", got)
	}
	if q.Len() != 4 {
		t.Fatalf("len = %d, want 4", q.Len())
	}
	if q.Enqueue(Utterance{ID: "e"}) {
		t.Fatal("enqueue above new capacity should be refused")
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		u, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if u.ID != want {
			t.Fatalf("got %s, want %s", u.ID, want)
		}
	}
	// Depth is now below the new capacity, so enqueues resume.
	if !q.Enqueue(Utterance{ID: "f"}) {
		t.Fatal("enqueue below capacity refused")
	}
}

func TestQueueGrowCapacity(t *testing.T) {
	q := NewQueue(1)
	q.Enqueue(Utterance{ID: "a"})
	if q.Enqueue(Utterance{ID: "b"}) {
		t.Fatal("enqueue into full queue should be refused")
	}
	q.SetCapacity(2)
	if !q.Enqueue(Utterance{ID: "c"}) {
		t.Fatal("enqueue after growth refused")
	}
}

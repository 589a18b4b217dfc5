package chat

import (
	"strings"
	"testing"
)

func TestNormalizeCleansText(t *testing.T) {
	n := NewNormalizer(KindTwitch, NormalizeOptions{StripLinks: true, MaxLength: 200})

	msg, ok := n.Normalize(Event{ID: "m1", Author: "alice", Text: "check  this https://example.com/x  out"})
	if !ok {
		t.Fatal("message dropped")
	}
	if msg.Text != "check this out" {
		t.Fatalf("text = %q", msg.Text)
	}
	if msg.RawText != "check  this https://example.com/x  out" {
		t.Fatalf("raw text not preserved: %q", msg.RawText)
	}
	if msg.Source != KindTwitch {
		t.Fatalf("source = %s", msg.Source)
	}
}

func TestNormalizeDropsEmptyAfterCleaning(t *testing.T) {
	n := NewNormalizer(KindTwitch, NormalizeOptions{StripLinks: true})
	if _, ok := n.Normalize(Event{ID: "m1", Author: "alice", Text: "https://only.a.link"}); ok {
		t.Fatal("link-only message should be dropped")
	}
	if n.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", n.Dropped())
	}
}

func TestNormalizeLengthBounds(t *testing.T) {
	n := NewNormalizer(KindYouTube, NormalizeOptions{MinLength: 3, MaxLength: 10})

	if _, ok := n.Normalize(Event{ID: "m1", Author: "a", Text: "hi"}); ok {
		t.Fatal("short message should be dropped")
	}
	msg, ok := n.Normalize(Event{ID: "m2", Author: "a", Text: "this is a very long message"})
	if !ok {
		t.Fatal("long message dropped instead of truncated")
	}
	if !strings.HasSuffix(msg.Text, "...") {
		t.Fatalf("truncated text = %q, want ... suffix", msg.Text)
	}
	if len([]rune(msg.Text)) != 13 {
		t.Fatalf("truncated length = %d", len([]rune(msg.Text)))
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	n := NewNormalizer(KindYouTube, NormalizeOptions{})
	msg, ok := n.Normalize(Event{Text: "hello"})
	if !ok {
		t.Fatal("dropped")
	}
	if msg.Author != "anonymous" {
		t.Fatalf("author = %q", msg.Author)
	}
	if msg.ID == "" {
		t.Fatal("missing generated id")
	}
	if msg.ReceivedAt.IsZero() {
		t.Fatal("missing received timestamp")
	}
}

func TestNormalizeSequenceMonotonic(t *testing.T) {
	n := NewNormalizer(KindTwitch, NormalizeOptions{})
	var last uint64
	for i := 0; i < 5; i++ {
		msg, ok := n.Normalize(Event{ID: "m", Author: "a", Text: "hello"})
		if !ok {
			t.Fatal("dropped")
		}
		if msg.Sequence <= last {
			t.Fatalf("sequence %d not greater than %d", msg.Sequence, last)
		}
		last = msg.Sequence
	}
}

func TestNormalizeMembersOnly(t *testing.T) {
	n := NewNormalizer(KindYouTube, NormalizeOptions{MembersOnly: true})
	if _, ok := n.Normalize(Event{ID: "m1", Author: "a", Text: "hello"}); ok {
		t.Fatal("non-member message should be dropped")
	}
	if _, ok := n.Normalize(Event{ID: "m2", Author: "a", Text: "hello", Member: true}); !ok {
		t.Fatal("member message should pass")
	}
}

func TestNormalizeIgnoresSystemEvents(t *testing.T) {
	n := NewNormalizer(KindYouTube, NormalizeOptions{IgnoreSystem: true})
	if _, ok := n.Normalize(Event{ID: "m1", Text: "member milestone", System: true}); ok {
		t.Fatal("system event should be dropped")
	}
}

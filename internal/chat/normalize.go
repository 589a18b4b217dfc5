package chat

import (
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	linkPattern  = regexp.MustCompile(`(?:https?://|www\.)\S+`)
	spacePattern = regexp.MustCompile(`\s+`)
	emotePattern = regexp.MustCompile(`:[a-zA-Z0-9_\-]+:|[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}\x{FE00}-\x{FE0F}]`)
)

// NormalizeOptions controls how raw events are cleaned into Messages.
type NormalizeOptions struct {
	StripLinks   bool
	StripEmotes  bool
	MinLength    int
	MaxLength    int
	IgnoreSystem bool
	MembersOnly  bool
}

// Normalizer converts raw platform events into canonical Messages,
// assigning the per-source monotonic sequence. One Normalizer belongs to
// exactly one source worker, so sequence assignment needs no lock; the
// dropped counter is atomic because it is read from the stats path.
type Normalizer struct {
	kind    SourceKind
	opts    NormalizeOptions
	seq     uint64
	dropped atomic.Uint64
}

func NewNormalizer(kind SourceKind, opts NormalizeOptions) *Normalizer {
	return &Normalizer{kind: kind, opts: opts}
}

// Dropped reports how many events were rejected as malformed or filtered
// out before entering the pipeline.
func (n *Normalizer) Dropped() uint64 { return n.dropped.Load() }

// Normalize cleans one raw event. It fails closed: events that come out
// empty are dropped and counted, never forwarded as empty Messages.
func (n *Normalizer) Normalize(ev Event) (Message, bool) {
	if n.opts.IgnoreSystem && ev.System {
		n.dropped.Add(1)
		return Message{}, false
	}
	if n.opts.MembersOnly && !ev.Member {
		n.dropped.Add(1)
		return Message{}, false
	}

	text := n.clean(ev.Text)
	if text == "" || len([]rune(text)) < n.opts.MinLength {
		n.dropped.Add(1)
		return Message{}, false
	}
	if n.opts.MaxLength > 0 {
		if runes := []rune(text); len(runes) > n.opts.MaxLength {
			text = string(runes[:n.opts.MaxLength]) + "..."
		}
	}

	author := strings.TrimSpace(strings.TrimPrefix(ev.Author, "@"))
	if author == "" {
		author = "anonymous"
	}

	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	n.seq++
	return Message{
		ID:         id,
		Source:     n.kind,
		Author:     author,
		RawText:    ev.Text,
		Text:       text,
		ReceivedAt: receivedAt,
		Sequence:   n.seq,
	}, true
}

func (n *Normalizer) clean(text string) string {
	if n.opts.StripLinks {
		text = linkPattern.ReplaceAllString(text, "")
	}
	if n.opts.StripEmotes {
		text = emotePattern.ReplaceAllString(text, "")
	}
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/language"

	"github.com/fjlabs/fjchat-core/internal/chat"
	"github.com/fjlabs/fjchat-core/internal/score"
	"github.com/fjlabs/fjchat-core/internal/speech"
	"github.com/fjlabs/fjchat-core/internal/translate"
)

// Rejection stages, in chain order.
const (
	StageDedupe   = "dedupe"
	StageStopWord = "stopword"
	StageRepeat   = "repeat"
	StageToxicity = "toxicity"
)

// Rejection names the stage that discarded a message and why.
type Rejection struct {
	Stage  string
	Reason string
}

func (r *Rejection) String() string {
	return r.Stage + ": " + r.Reason
}

// Chain evaluates messages against the current rule snapshot and, for
// survivors, produces the utterance to enqueue. Safe for use from
// multiple source workers.
type Chain struct {
	logger     *slog.Logger
	scorer     score.Scorer
	translator translate.Translator

	rules atomic.Pointer[compiledRules]

	mu      sync.Mutex
	seen    *expirable.LRU[string, struct{}]
	repeats *expirable.LRU[string, int]

	rejected atomic.Uint64
}

// NewChain builds a chain with the given initial rules. The scorer and
// translator may be nil when the corresponding stage is disabled.
func NewChain(rules Rules, scorer score.Scorer, translator translate.Translator, logger *slog.Logger) (*Chain, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{
		logger:     logger.With("component", "filter"),
		scorer:     scorer,
		translator: translator,
	}
	if err := c.SetRules(rules); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRules compiles and installs a new rule snapshot. Messages already
// past the chain are unaffected. The dedupe and repetition windows are
// rebuilt, so a rule change also clears their history.
func (c *Chain) SetRules(rules Rules) error {
	compiled, err := rules.compile()
	if err != nil {
		return fmt.Errorf("compile filter rules: %w", err)
	}
	c.mu.Lock()
	c.seen = expirable.NewLRU[string, struct{}](compiled.DedupeSize, nil, compiled.DedupeWindow)
	c.repeats = expirable.NewLRU[string, int](compiled.DedupeSize, nil, compiled.RepeatWindow)
	c.mu.Unlock()
	c.rules.Store(compiled)
	return nil
}

// Rules returns the currently installed rule set.
func (c *Chain) Rules() Rules {
	return c.rules.Load().Rules
}

// Rejected reports how many messages the chain has discarded.
func (c *Chain) Rejected() uint64 {
	return c.rejected.Load()
}

// Process runs one message through the chain. It returns the utterance
// to enqueue, or a non-nil Rejection when any stage discarded the
// message. The voice is snapshotted into the utterance after clamping.
func (c *Chain) Process(ctx context.Context, msg chat.Message, voice speech.Voice) (speech.Utterance, *Rejection) {
	rules := c.rules.Load()

	if rej := c.checkDedupe(rules, msg); rej != nil {
		return c.reject(msg, rej)
	}
	if word, ok := rules.matchesStop(msg.Text); ok {
		return c.reject(msg, &Rejection{Stage: StageStopWord, Reason: "matched " + word})
	}
	if rej := c.checkRepeat(rules, msg); rej != nil {
		return c.reject(msg, rej)
	}
	if rej := c.checkToxicity(ctx, rules, msg); rej != nil {
		return c.reject(msg, rej)
	}

	text := msg.Text
	if rules.TranslationEnabled && c.translator != nil && rules.TargetLanguage != "" {
		text = c.translateText(ctx, rules, text)
	}
	if rules.ExpandNumbers {
		text = ExpandNumbers(text, detectLanguage(text))
	}
	if rules.ReadAuthorNames && msg.Author != "" {
		text = msg.Author + " says " + text
	}

	return speech.Utterance{
		ID:         msg.ID,
		Source:     string(msg.Source),
		Author:     msg.Author,
		Text:       text,
		Voice:      voice.Clamp(),
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func (c *Chain) reject(msg chat.Message, rej *Rejection) (speech.Utterance, *Rejection) {
	c.rejected.Add(1)
	c.logger.Debug("message rejected",
		"id", msg.ID,
		"stage", rej.Stage,
		"reason", rej.Reason)
	return speech.Utterance{}, rej
}

func (c *Chain) checkDedupe(rules *compiledRules, msg chat.Message) *Rejection {
	idKey := "id:" + msg.ID
	contentKey := "ct:" + msg.Author + "\x00" + msg.Text

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen.Get(idKey); ok {
		return &Rejection{Stage: StageDedupe, Reason: "duplicate id"}
	}
	if _, ok := c.seen.Get(contentKey); ok {
		return &Rejection{Stage: StageDedupe, Reason: "duplicate content"}
	}
	c.seen.Add(idKey, struct{}{})
	c.seen.Add(contentKey, struct{}{})
	return nil
}

func (c *Chain) checkRepeat(rules *compiledRules, msg chat.Message) *Rejection {
	if rules.RepeatThreshold <= 0 {
		return nil
	}
	key := string(msg.Source) + "\x00" + msg.Author

	c.mu.Lock()
	defer c.mu.Unlock()
	count, _ := c.repeats.Get(key)
	count++
	c.repeats.Add(key, count)
	if count > rules.RepeatThreshold {
		return &Rejection{Stage: StageRepeat, Reason: fmt.Sprintf("%d messages inside window", count)}
	}
	return nil
}

func (c *Chain) checkToxicity(ctx context.Context, rules *compiledRules, msg chat.Message) *Rejection {
	if !rules.ToxicityEnabled || c.scorer == nil {
		return nil
	}
	s, err := c.scorer.Score(ctx, msg.Text)
	if err != nil {
		if rules.ToxicityFailOpen && errors.Is(err, score.ErrServiceUnavailable) {
			c.logger.Warn("toxicity check unavailable, passing message", "id", msg.ID, "error", err)
			return nil
		}
		return &Rejection{Stage: StageToxicity, Reason: "check failed: " + err.Error()}
	}
	if s >= rules.ToxicityThreshold {
		return &Rejection{Stage: StageToxicity, Reason: fmt.Sprintf("score %.2f", s)}
	}
	return nil
}

func (c *Chain) translateText(ctx context.Context, rules *compiledRules, text string) string {
	target := rules.TargetLanguage
	if tag, err := language.Parse(target); err == nil {
		base, _ := tag.Base()
		target = base.String()
	}
	if detectLanguage(text) == target {
		return text
	}
	translated, err := c.translator.Translate(ctx, text, target)
	if err != nil {
		c.logger.Warn("translation failed, keeping original text", "error", err)
		return text
	}
	return translated
}

// detectLanguage is a cheap script check: any Cyrillic rune marks the
// text Russian, everything else is treated as English.
func detectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return "ru"
		}
	}
	return "en"
}

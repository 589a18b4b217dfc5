// Package filter applies the ordered rule chain that decides whether a
// normalized chat message becomes a spoken utterance. Rules can be
// swapped at runtime; each message sees one consistent snapshot.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fjlabs/fjchat-core/internal/config"
)

// Rules is the runtime-updatable rule set. A Rules value is immutable
// once handed to the chain; SetRules installs a fresh snapshot.
type Rules struct {
	DedupeWindow time.Duration
	DedupeSize   int

	StopWords    []string
	StopPatterns []string

	RepeatThreshold int
	RepeatWindow    time.Duration

	ReadAuthorNames bool
	ExpandNumbers   bool
	TargetLanguage  string

	ToxicityEnabled   bool
	ToxicityThreshold float64
	ToxicityFailOpen  bool

	TranslationEnabled bool
}

// RulesFromConfig builds the initial rule set from the loaded config.
func RulesFromConfig(cfg config.FilterConfig, tox config.ToxicityConfig, tr config.TranslationConfig) Rules {
	return Rules{
		DedupeWindow:       time.Duration(cfg.DedupeWindowMS) * time.Millisecond,
		DedupeSize:         cfg.DedupeSize,
		StopWords:          cfg.StopWords,
		StopPatterns:       cfg.StopPatterns,
		RepeatThreshold:    cfg.RepeatThreshold,
		RepeatWindow:       time.Duration(cfg.RepeatWindowMS) * time.Millisecond,
		ReadAuthorNames:    cfg.ReadAuthorNames,
		ExpandNumbers:      cfg.ExpandNumbers,
		TargetLanguage:     cfg.TargetLanguage,
		ToxicityEnabled:    tox.Enabled,
		ToxicityThreshold:  tox.Threshold,
		ToxicityFailOpen:   tox.FailOpen,
		TranslationEnabled: tr.Enabled,
	}
}

type compiledRules struct {
	Rules
	stopWords    []string
	stopPatterns []*regexp.Regexp
}

func (r Rules) compile() (*compiledRules, error) {
	c := &compiledRules{Rules: r}
	if c.DedupeSize <= 0 {
		c.DedupeSize = 256
	}
	if c.DedupeWindow <= 0 {
		c.DedupeWindow = 5 * time.Minute
	}
	if c.RepeatWindow <= 0 {
		c.RepeatWindow = time.Minute
	}
	if c.ToxicityThreshold <= 0 {
		c.ToxicityThreshold = 0.8
	}
	for _, w := range r.StopWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			c.stopWords = append(c.stopWords, w)
		}
	}
	for _, p := range r.StopPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("stop pattern %q: %w", p, err)
		}
		c.stopPatterns = append(c.stopPatterns, re)
	}
	return c, nil
}

func (c *compiledRules) matchesStop(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, w := range c.stopWords {
		if strings.Contains(lower, w) {
			return w, true
		}
	}
	for _, re := range c.stopPatterns {
		if re.MatchString(text) {
			return re.String(), true
		}
	}
	return "", false
}

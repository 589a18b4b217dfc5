package protocol

import "time"

// SourceState announces a chat source connection state transition.
type SourceState struct {
	SourceID string    `json:"source_id"`
	Kind     string    `json:"kind"`
	State    string    `json:"state"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// QueueStats is a periodic snapshot of the speech queue.
type QueueStats struct {
	Depth    int       `json:"depth"`
	Capacity int       `json:"capacity"`
	Dropped  uint64    `json:"dropped"`
	Spoken   uint64    `json:"spoken"`
	Skipped  uint64    `json:"skipped"`
	Rejected uint64    `json:"rejected"`
	Engine   string    `json:"engine"`
	At       time.Time `json:"at"`
}

// UtteranceEvent reports the final fate of one utterance.
type UtteranceEvent struct {
	MessageID string    `json:"message_id"`
	SourceID  string    `json:"source_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// FilterControl carries a runtime filter rule update.
type FilterControl struct {
	StopWords       []string `json:"stop_words,omitempty"`
	StopPatterns    []string `json:"stop_patterns,omitempty"`
	ReadAuthorNames *bool    `json:"read_author_names,omitempty"`
	ExpandNumbers   *bool    `json:"expand_numbers,omitempty"`
	TargetLanguage  *string  `json:"target_language,omitempty"`
}

// VoiceControl carries a runtime voice change. Nil fields keep the
// current setting.
type VoiceControl struct {
	Profile  *string  `json:"profile,omitempty"`
	Language *string  `json:"language,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
}

const (
	SubjectSourceState      = "chat.source.state"
	SubjectQueueStats       = "chat.queue.stats"
	SubjectUtteranceSpoken  = "chat.utterance.spoken"
	SubjectUtteranceDropped = "chat.utterance.dropped"
	SubjectControlFilter    = "chat.control.filter"
	SubjectControlVoice     = "chat.control.voice"
)

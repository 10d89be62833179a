// Package journal keeps an append-only JSONL record of what users did with the
// bot: questions with their outcome, ingestions, deletions and clears. It is
// operator data for the daily report, not session state.
package journal

import "time"

type Action string

const (
	ActionAsk    Action = "ask"
	ActionIngest Action = "ingest"
	ActionDelete Action = "delete"
	ActionClear  Action = "clear"
)

// Entry is one recorded action. Answer and Evidence are set for successful
// questions only; Error holds the backend reason of a failure.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	UserID     int64     `json:"user_id"`
	Action     Action    `json:"action"`
	SourceID   string    `json:"source_id,omitempty"`
	SourceKind string    `json:"source_kind,omitempty"`
	Model      string    `json:"model,omitempty"`
	Question   string    `json:"question,omitempty"`
	Answer     string    `json:"answer,omitempty"`
	Evidence   int       `json:"evidence,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (e Entry) Failed() bool { return e.Error != "" }

// Recorder persists entries. Load returns them in append order. Implementations
// must be safe for concurrent use.
type Recorder interface {
	Append(entry Entry) error
	Load() ([]Entry, error)
}

package taskstore

import (
	"time"

	"github.com/quailyquaily/pbot/internal/fsstore"
)

// Lifecycle event names written to the journal.
const (
	EventCreated   = "created"
	EventCompleted = "completed"
	EventCancelled = "cancelled"
	EventFailed    = "failed"
	EventSuspended = "suspended"
	EventResumed   = "resumed"
	EventExpired   = "expired"
	EventOrphaned  = "orphaned"
	EventDropped   = "dropped"
)

type Event struct {
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	TaskID string    `json:"task_id"`
	Kind   Kind      `json:"type,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Journal appends task lifecycle events to a size-rotated JSONL file. A nil
// *Journal discards everything.
type Journal struct {
	w   *fsstore.JSONLWriter
	now func() time.Time
}

func OpenJournal(path string, rotateMaxBytes int64) (*Journal, error) {
	w, err := fsstore.NewJSONLWriter(path, fsstore.JSONLOptions{
		RotateMaxBytes: rotateMaxBytes,
	})
	if err != nil {
		return nil, err
	}
	return &Journal{w: w, now: time.Now}, nil
}

func (j *Journal) Append(ev Event) error {
	if j == nil || j.w == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = j.now().UTC()
	}
	return j.w.AppendJSON(ev)
}

func (j *Journal) Close() error {
	if j == nil || j.w == nil {
		return nil
	}
	return j.w.Close()
}

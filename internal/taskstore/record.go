package taskstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quailyquaily/pbot/internal/messenger"
)

var (
	ErrUnknownCollection = errors.New("taskstore: unknown collection")
	ErrInvalidRecord     = errors.New("taskstore: invalid record")
)

// Kind tags the payload variant carried by a Record.
type Kind string

const (
	KindTimer    Kind = "timer"
	KindWake     Kind = "wake"
	KindReminder Kind = "reminder"
	KindMention  Kind = "mention"
	KindSpam     Kind = "spam"
)

// Collection names one durable file.
type Collection string

const (
	CollectionTimers    Collection = "timers"
	CollectionAlarms    Collection = "wake_alarms"
	CollectionReminders Collection = "reminders"
	CollectionMentions  Collection = "mentions"
)

const statsFileName = "stats.json"

// Collections lists every task collection in a fixed order.
func Collections() []Collection {
	return []Collection{CollectionTimers, CollectionAlarms, CollectionReminders, CollectionMentions}
}

func ParseCollection(s string) (Collection, error) {
	c := Collection(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, s)
	}
	return c, nil
}

func (c Collection) Valid() bool {
	switch c {
	case CollectionTimers, CollectionAlarms, CollectionReminders, CollectionMentions:
		return true
	default:
		return false
	}
}

func (c Collection) FileName() string {
	return string(c) + ".json"
}

func (k Kind) Collection() (Collection, error) {
	switch k {
	case KindTimer:
		return CollectionTimers, nil
	case KindWake:
		return CollectionAlarms, nil
	case KindReminder:
		return CollectionReminders, nil
	case KindMention, KindSpam:
		return CollectionMentions, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrUnknownCollection, k)
	}
}

type TimerPayload struct {
	SpamCount int `json:"spam_count" yaml:"spam_count"`
}

type WakePayload struct {
	UserID       int64 `json:"user_id" yaml:"user_id"`
	MessageCount int   `json:"message_count" yaml:"message_count"`
}

type ReminderPayload struct {
	UserID int64  `json:"user_id" yaml:"user_id"`
	Text   string `json:"text" yaml:"text"`
}

type MentionPayload struct {
	Username        string  `json:"username" yaml:"username"`
	Count           int     `json:"count" yaml:"count"`
	IntervalSeconds float64 `json:"interval_seconds" yaml:"interval_seconds"`
}

func (p MentionPayload) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds * float64(time.Second))
}

// Handle returns the username with exactly one leading "@".
func (p MentionPayload) Handle() string {
	return "@" + strings.TrimLeft(strings.TrimSpace(p.Username), "@")
}

type SpamPayload struct {
	TargetUser string `json:"target_user,omitempty" yaml:"target_user,omitempty"`
	Text       string `json:"text" yaml:"text"`
	Count      int    `json:"count" yaml:"count"`
}

// Message is the text sent on every iteration, prefixed by the target
// mention when one is set.
func (p SpamPayload) Message() string {
	target := strings.TrimLeft(strings.TrimSpace(p.TargetUser), "@")
	if target == "" {
		return p.Text
	}
	return "@" + target + " " + p.Text
}

// Record is the durable form of one delayed task: a common envelope plus
// exactly one payload selected by Kind.
type Record struct {
	ID              string    `json:"id" yaml:"id"`
	Kind            Kind      `json:"type" yaml:"type"`
	ChatID          int64     `json:"chat_id" yaml:"chat_id"`
	MessageID       int64     `json:"message_id" yaml:"message_id"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	DurationSeconds int64     `json:"duration_seconds" yaml:"duration_seconds"`

	Timer    *TimerPayload    `json:"timer,omitempty" yaml:"timer,omitempty"`
	Wake     *WakePayload     `json:"wake,omitempty" yaml:"wake,omitempty"`
	Reminder *ReminderPayload `json:"reminder,omitempty" yaml:"reminder,omitempty"`
	Mention  *MentionPayload  `json:"mention,omitempty" yaml:"mention,omitempty"`
	Spam     *SpamPayload     `json:"spam,omitempty" yaml:"spam,omitempty"`
}

// NewID builds "<kind>_<chat>_<message>_<unix seconds with micros>".
func NewID(kind Kind, chatID, messageID int64, now time.Time) string {
	ts := strconv.FormatFloat(float64(now.UnixMicro())/1e6, 'f', 6, 64)
	return fmt.Sprintf("%s_%d_%d_%s", kind, chatID, messageID, ts)
}

func (r Record) Origin() messenger.MessageRef {
	return messenger.MessageRef{ChatID: r.ChatID, MessageID: r.MessageID}
}

func (r Record) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// Remaining is the time left before the record fires, measured from now.
func (r Record) Remaining(now time.Time) time.Duration {
	return r.CreatedAt.Add(r.Duration()).Sub(now)
}

func (r Record) Collection() (Collection, error) {
	return r.Kind.Collection()
}

// Validate checks that the envelope is complete and that the payload
// matches the kind tag.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("%w: %s: missing created_at", ErrInvalidRecord, r.ID)
	}
	if r.DurationSeconds < 0 {
		return fmt.Errorf("%w: %s: negative duration", ErrInvalidRecord, r.ID)
	}
	present := 0
	for _, set := range []bool{r.Timer != nil, r.Wake != nil, r.Reminder != nil, r.Mention != nil, r.Spam != nil} {
		if set {
			present++
		}
	}
	if present != 1 {
		return fmt.Errorf("%w: %s: want exactly one payload, got %d", ErrInvalidRecord, r.ID, present)
	}

	var ok bool
	switch r.Kind {
	case KindTimer:
		ok = r.Timer != nil && r.Timer.SpamCount >= 1
	case KindWake:
		ok = r.Wake != nil && r.Wake.MessageCount >= 1
	case KindReminder:
		ok = r.Reminder != nil && strings.TrimSpace(r.Reminder.Text) != ""
	case KindMention:
		ok = r.Mention != nil && r.Mention.Count >= 1 && r.Mention.Handle() != "@"
	case KindSpam:
		ok = r.Spam != nil && r.Spam.Count >= 1 && strings.TrimSpace(r.Spam.Text) != ""
	default:
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidRecord, r.ID, r.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: %s: payload does not match type %q", ErrInvalidRecord, r.ID, r.Kind)
	}
	return nil
}

// Summary is a short human description used in listings.
func (r Record) Summary() string {
	switch r.Kind {
	case KindTimer:
		if r.Timer != nil && r.Timer.SpamCount > 1 {
			return fmt.Sprintf("timer (%d end messages)", r.Timer.SpamCount)
		}
		return "timer"
	case KindWake:
		if r.Wake != nil {
			return fmt.Sprintf("wake alarm (%d messages)", r.Wake.MessageCount)
		}
	case KindReminder:
		if r.Reminder != nil {
			return "reminder: " + truncateRunes(r.Reminder.Text, 30)
		}
	case KindMention:
		if r.Mention != nil {
			return fmt.Sprintf("mentions of %s (%d times)", r.Mention.Handle(), r.Mention.Count)
		}
	case KindSpam:
		if r.Spam != nil {
			return fmt.Sprintf("spam %q (%d times)", truncateRunes(r.Spam.Message(), 30), r.Spam.Count)
		}
	}
	return string(r.Kind)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

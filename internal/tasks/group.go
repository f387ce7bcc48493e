package tasks

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quailyquaily/pbot/internal/taskstore"
)

var (
	ErrDuplicateTask  = errors.New("tasks: duplicate task id")
	ErrTaskCancelled  = errors.New("tasks: cancelled by user")
	ErrInvalidRequest = errors.New("tasks: invalid request")
	ErrUnknownGroup   = errors.New("tasks: unknown group")
)

// Group is a user-facing task category. Each group has its own registry and
// owns one or more store collections.
type Group string

const (
	GroupTimers   Group = "timers"
	GroupWake     Group = "wake"
	GroupMentions Group = "mentions"
)

func Groups() []Group {
	return []Group{GroupTimers, GroupWake, GroupMentions}
}

// ParseGroup accepts the group names plus the singular and kind aliases
// users type in commands.
func ParseGroup(s string) (Group, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "timer", "timers":
		return GroupTimers, nil
	case "wake", "wakes", "alarm", "alarms", "remind", "reminder", "reminders":
		return GroupWake, nil
	case "mention", "mentions", "spam":
		return GroupMentions, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGroup, s)
	}
}

func (g Group) Collections() []taskstore.Collection {
	switch g {
	case GroupTimers:
		return []taskstore.Collection{taskstore.CollectionTimers}
	case GroupWake:
		return []taskstore.Collection{taskstore.CollectionAlarms, taskstore.CollectionReminders}
	case GroupMentions:
		return []taskstore.Collection{taskstore.CollectionMentions}
	default:
		return nil
	}
}

func GroupOf(kind taskstore.Kind) (Group, error) {
	switch kind {
	case taskstore.KindTimer:
		return GroupTimers, nil
	case taskstore.KindWake, taskstore.KindReminder:
		return GroupWake, nil
	case taskstore.KindMention, taskstore.KindSpam:
		return GroupMentions, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrUnknownGroup, kind)
	}
}

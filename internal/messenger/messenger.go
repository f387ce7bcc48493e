// Package messenger defines the chat transport the task core talks to.
package messenger

import (
	"context"
	"errors"
	"fmt"
)

// ErrMessageNotFound is returned when a referenced message no longer exists
// or cannot be reached.
var ErrMessageNotFound = errors.New("messenger: message not found")

// MessageRef identifies one message in one chat.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%d/%d", r.ChatID, r.MessageID)
}

func (r MessageRef) IsZero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}

// Messenger is the outbound half of a chat transport. Every call may fail;
// the task core treats Edit and SendPrivate failures as non-fatal.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	Reply(ctx context.Context, ref MessageRef, text string) (MessageRef, error)
	Delete(ctx context.Context, ref MessageRef) error
	SendPrivate(ctx context.Context, userID int64, text string) error
	// ResolveMessage reports whether the message still exists. A false
	// result with a nil error means it is gone.
	ResolveMessage(ctx context.Context, chatID, messageID int64) (MessageRef, bool, error)
}

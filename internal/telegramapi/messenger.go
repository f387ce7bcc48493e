package telegramapi

import (
	"context"
	"fmt"

	"github.com/quailyquaily/pbot/internal/messenger"
)

var _ messenger.Messenger = (*Client)(nil)

// wrapGone tags errors about vanished messages with
// messenger.ErrMessageNotFound.
func wrapGone(err error) error {
	if err != nil && IsMessageGone(err) {
		return fmt.Errorf("%w: %v", messenger.ErrMessageNotFound, err)
	}
	return err
}

func (c *Client) Send(ctx context.Context, chatID int64, text string) (messenger.MessageRef, error) {
	msg, err := c.SendMessage(ctx, chatID, text, 0)
	if err != nil {
		return messenger.MessageRef{}, wrapGone(err)
	}
	return refOf(msg, chatID), nil
}

func (c *Client) Edit(ctx context.Context, ref messenger.MessageRef, text string) error {
	return wrapGone(c.EditMessageText(ctx, ref.ChatID, ref.MessageID, text))
}

func (c *Client) Reply(ctx context.Context, ref messenger.MessageRef, text string) (messenger.MessageRef, error) {
	msg, err := c.SendMessage(ctx, ref.ChatID, text, ref.MessageID)
	if err != nil {
		return messenger.MessageRef{}, wrapGone(err)
	}
	return refOf(msg, ref.ChatID), nil
}

func (c *Client) Delete(ctx context.Context, ref messenger.MessageRef) error {
	return wrapGone(c.DeleteMessage(ctx, ref.ChatID, ref.MessageID))
}

// SendPrivate writes to the user's private chat, whose id equals the user id.
func (c *Client) SendPrivate(ctx context.Context, userID int64, text string) error {
	_, err := c.SendMessage(ctx, userID, text, 0)
	return wrapGone(err)
}

func (c *Client) ResolveMessage(ctx context.Context, chatID, messageID int64) (messenger.MessageRef, bool, error) {
	ok, err := c.ProbeMessage(ctx, chatID, messageID)
	if err != nil || !ok {
		return messenger.MessageRef{}, false, err
	}
	return messenger.MessageRef{ChatID: chatID, MessageID: messageID}, true, nil
}

func refOf(msg *Message, fallbackChat int64) messenger.MessageRef {
	chatID := fallbackChat
	if msg.Chat != nil && msg.Chat.ID != 0 {
		chatID = msg.Chat.ID
	}
	return messenger.MessageRef{ChatID: chatID, MessageID: msg.MessageID}
}

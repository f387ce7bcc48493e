package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quailyquaily/pbot/internal/messenger"
)

func (rn *run) runMention(ctx context.Context) error {
	p := rn.rec.Mention
	if p == nil {
		return fmt.Errorf("tasks: mention record %s has no payload", rn.rec.ID)
	}
	text := "👤 " + p.Handle()
	send := func(ctx context.Context) error {
		_, err := rn.m.msgr.Reply(ctx, rn.rec.Origin(), text)
		return err
	}
	if err := rn.repeat(ctx, p.Count, p.Interval(), send); err != nil {
		return err
	}
	rn.notice(fmt.Sprintf("✅ Mentions of %s finished (%d times)", p.Handle(), rn.sent))
	return nil
}

func (rn *run) runSpam(ctx context.Context) error {
	p := rn.rec.Spam
	if p == nil {
		return fmt.Errorf("tasks: spam record %s has no payload", rn.rec.ID)
	}
	text := p.Message()
	send := func(ctx context.Context) error {
		_, err := rn.m.msgr.Send(ctx, rn.rec.ChatID, text)
		return err
	}
	if err := rn.repeat(ctx, p.Count, rn.m.pacing.Spam, send); err != nil {
		return err
	}
	rn.notice(fmt.Sprintf("✅ Spam finished (%d messages)", rn.sent))
	return nil
}

// repeat calls send count times with interval between calls. Before every
// send it checks that the run is still registered and stops quietly when it
// is not.
func (rn *run) repeat(ctx context.Context, count int, interval time.Duration, send func(context.Context) error) error {
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := rn.m.clock.Sleep(ctx, interval); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !rn.reg.Contains(rn.rec.ID) {
			return errStopped
		}
		if err := send(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rn.logger.Warn("repeat_send_error", "index", i, "error", err.Error())
			if errors.Is(err, messenger.ErrMessageNotFound) {
				// The anchor is gone; nothing left to reply to.
				return errStopped
			}
			continue
		}
		rn.sent++
	}
	return nil
}

package tasks

import (
	"context"
	"fmt"
)

const wakeText = "🔔 WAKE UP!!!"

// runAlarm sleeps for the whole duration, then sends the wake burst to the
// owner. Individual send failures do not stop the burst.
func (rn *run) runAlarm(ctx context.Context) error {
	if err := rn.m.clock.Sleep(ctx, rn.rec.Duration()); err != nil {
		return err
	}
	count := 1
	var userID int64
	if rn.rec.Wake != nil {
		count = rn.rec.Wake.MessageCount
		userID = rn.rec.Wake.UserID
	}
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := rn.m.clock.Sleep(ctx, rn.m.pacing.EndMessage); err != nil {
				break
			}
		}
		if err := rn.m.msgr.SendPrivate(ctx, userID, wakeText); err != nil {
			if ctx.Err() != nil {
				break
			}
			rn.logger.Warn("alarm_send_error", "index", i, "error", err.Error())
			continue
		}
		rn.sent++
	}
	rn.notice(fmt.Sprintf("✅ Alarm fired! Sent %d messages", rn.sent))
	return nil
}

func (rn *run) runReminder(ctx context.Context) error {
	if err := rn.m.clock.Sleep(ctx, rn.rec.Duration()); err != nil {
		return err
	}
	var userID int64
	text := ""
	if rn.rec.Reminder != nil {
		userID = rn.rec.Reminder.UserID
		text = rn.rec.Reminder.Text
	}
	if err := rn.m.msgr.SendPrivate(ctx, userID, "💭 Reminder: "+text); err != nil {
		rn.logger.Warn("reminder_send_error", "error", err.Error())
	} else {
		rn.sent = 1
	}
	rn.notice("✅ Reminder delivered")
	return nil
}

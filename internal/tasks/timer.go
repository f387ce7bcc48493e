package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/quailyquaily/pbot/internal/durations"
)

const timerDoneText = "✅ ⏰ TIME IS UP!"

// countdownStep picks the sleep between progress edits; finer as the
// deadline approaches.
func countdownStep(remaining time.Duration) time.Duration {
	switch {
	case remaining <= 10*time.Second:
		return time.Second
	case remaining <= time.Minute:
		return 5 * time.Second
	case remaining <= 5*time.Minute:
		return 15 * time.Second
	default:
		return time.Minute
	}
}

func (rn *run) runTimer(ctx context.Context) error {
	clock := rn.m.clock
	total := rn.rec.Duration()
	deadline := clock.Now().Add(total)

	if rn.resumed {
		rn.edit(ctx, fmt.Sprintf("⏰ Timer resumed, %s left...", durations.Format(total)))
	} else {
		rn.edit(ctx, "⏰ Timer started for "+durations.Format(total))
	}

	for {
		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			break
		}
		step := countdownStep(remaining)
		if step > remaining {
			step = remaining
		}
		if err := clock.Sleep(ctx, step); err != nil {
			return err
		}
		left := deadline.Sub(clock.Now())
		if left <= 0 {
			break
		}
		rn.edit(ctx, fmt.Sprintf("⏰ %s left...", durations.Format(durations.Ceil(left))))
	}

	// Fired. From here on a cancel only cuts the extra copies short.
	rn.notice(timerDoneText)
	rn.sent = 1
	spamCount := 1
	if rn.rec.Timer != nil {
		spamCount = rn.rec.Timer.SpamCount
	}
	for i := 1; i < spamCount; i++ {
		if err := clock.Sleep(ctx, rn.m.pacing.EndMessage); err != nil {
			return nil
		}
		if _, err := rn.m.msgr.Reply(ctx, rn.rec.Origin(), timerDoneText); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			rn.logger.Warn("timer_end_message_error", "index", i, "error", err.Error())
			continue
		}
		rn.sent++
	}
	return nil
}

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/quailyquaily/pbot/internal/durations"
	"github.com/quailyquaily/pbot/internal/messenger"
	"github.com/quailyquaily/pbot/internal/taskstore"
	"github.com/quailyquaily/pbot/internal/tasks"
)

func (r *Router) handleTimer(ctx context.Context, cmd Command) error {
	a, err := r.args.timer(cmd.Args)
	if err != nil {
		return err
	}
	r.warn(ctx, cmd, a.Warning)
	return r.startTask(ctx, cmd, "⏰ Timer set for "+durations.Format(a.Duration), func(origin messenger.MessageRef) (taskstore.Record, error) {
		return r.manager.StartTimer(tasks.TimerRequest{Origin: origin, Duration: a.Duration, SpamCount: a.Count})
	})
}

func (r *Router) handleWake(ctx context.Context, cmd Command) error {
	a, err := r.args.wake(cmd.Args)
	if err != nil {
		return err
	}
	r.warn(ctx, cmd, a.Warning)
	status := fmt.Sprintf("🔔 Wake alarm in %s (%d messages)", durations.Format(a.Duration), a.Count)
	return r.startTask(ctx, cmd, status, func(origin messenger.MessageRef) (taskstore.Record, error) {
		return r.manager.StartAlarm(tasks.AlarmRequest{
			Origin:       origin,
			UserID:       cmd.SenderID,
			Duration:     a.Duration,
			MessageCount: a.Count,
		})
	})
}

func (r *Router) handleRemind(ctx context.Context, cmd Command) error {
	a, err := r.args.reminder(cmd.Args)
	if err != nil {
		return err
	}
	status := fmt.Sprintf("💭 Reminder in %s: %s", durations.Format(a.Duration), a.Text)
	return r.startTask(ctx, cmd, status, func(origin messenger.MessageRef) (taskstore.Record, error) {
		return r.manager.StartReminder(tasks.ReminderRequest{
			Origin:   origin,
			UserID:   cmd.SenderID,
			Duration: a.Duration,
			Text:     a.Text,
		})
	})
}

func (r *Router) handleMention(ctx context.Context, cmd Command) error {
	a, err := r.args.mention(cmd.Args)
	if err != nil {
		return err
	}
	r.warn(ctx, cmd, a.Warning)
	status := fmt.Sprintf("👤 Mentioning %s %d times every %s", a.Username, a.Count, a.Interval)
	return r.startTask(ctx, cmd, status, func(origin messenger.MessageRef) (taskstore.Record, error) {
		return r.manager.StartMention(tasks.MentionRequest{
			Origin:   origin,
			Username: a.Username,
			Count:    a.Count,
			Interval: a.Interval,
		})
	})
}

func (r *Router) handleSpam(ctx context.Context, cmd Command) error {
	a, err := r.args.spam(cmd.Args)
	if err != nil {
		return err
	}
	r.warn(ctx, cmd, a.Warning)
	target := "the chat"
	if a.TargetUser != "" {
		target = a.TargetUser
	}
	status := fmt.Sprintf("💬 Spamming %s: %q (%d times)", target, a.Text, a.Count)
	return r.startTask(ctx, cmd, status, func(origin messenger.MessageRef) (taskstore.Record, error) {
		return r.manager.StartSpam(tasks.SpamRequest{
			Origin:     origin,
			TargetUser: a.TargetUser,
			Text:       a.Text,
			Count:      a.Count,
		})
	})
}

func (r *Router) handleCancel(ctx context.Context, cmd Command) error {
	a, err := r.args.cancel(cmd.Args)
	if err != nil {
		return err
	}
	switch {
	case a.All:
		n := r.manager.CancelEverything()
		return r.reply(ctx, cmd, fmt.Sprintf("✅ Cancelled everything: %d timers, %d wake, %d mentions",
			n[tasks.GroupTimers], n[tasks.GroupWake], n[tasks.GroupMentions]))
	case a.Selector == "":
		n, err := r.manager.CancelGroup(a.Group)
		if err != nil {
			return err
		}
		return r.reply(ctx, cmd, fmt.Sprintf("✅ Cancelled %d in %s", n, a.Group))
	default:
		rec, ok, err := r.manager.Cancel(a.Group, a.Selector)
		if err != nil {
			return err
		}
		if !ok {
			return usagef("❌ Nothing to cancel in %s matches %q. See /list %s", a.Group, a.Selector, a.Group)
		}
		what := rec.ID
		if rec.Kind != "" {
			what = rec.Summary()
		}
		return r.reply(ctx, cmd, "✅ Cancelled "+what)
	}
}

var groupTitles = map[tasks.Group]string{
	tasks.GroupTimers:   "⏰ Timers",
	tasks.GroupWake:     "🔔 Alarms and reminders",
	tasks.GroupMentions: "👤 Mentions and spam",
}

func (r *Router) handleList(ctx context.Context, cmd Command) error {
	groups, err := r.args.listGroups(cmd.Args)
	if err != nil {
		return err
	}
	now := r.now()
	var b strings.Builder
	for _, g := range groups {
		active := r.manager.Active(g)
		if active == 0 {
			continue
		}
		recs, err := r.manager.List(g, r.listCaps[g])
		if err != nil {
			return err
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s (%d):\n", groupTitles[g], active)
		for i, rec := range recs {
			fmt.Fprintf(&b, "%d. %s", i+1, rec.Summary())
			if rec.DurationSeconds > 0 {
				fmt.Fprintf(&b, ", %s left", durations.Format(durations.Ceil(rec.Remaining(now))))
			}
			fmt.Fprintf(&b, "\n   %s\n", rec.ID)
		}
		if more := active - len(recs); more > 0 {
			fmt.Fprintf(&b, "... and %d more\n", more)
		}
	}
	if b.Len() == 0 {
		return r.reply(ctx, cmd, "📋 No active tasks")
	}
	return r.reply(ctx, cmd, "📋 Active tasks\n\n"+strings.TrimRight(b.String(), "\n"))
}

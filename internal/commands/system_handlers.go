package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/quailyquaily/pbot/internal/durations"
	"github.com/quailyquaily/pbot/internal/outputfmt"
	"github.com/quailyquaily/pbot/internal/taskstore"
)

const topCommandsShown = 5

var counterLabels = []struct {
	key   string
	label string
}{
	{taskstore.CounterTimersCreated, "Timers"},
	{taskstore.CounterAlarmsCreated, "Alarms"},
	{taskstore.CounterRemindersCreated, "Reminders"},
	{taskstore.CounterMentionsCreated, "Mention runs"},
	{taskstore.CounterSpamCreated, "Spam runs"},
}

func (r *Router) handleStats(ctx context.Context, cmd Command) error {
	st := r.store.Stats()
	var b strings.Builder
	b.WriteString("📊 Statistics\n\n")
	fmt.Fprintf(&b, "Commands used: %d\n", st.TotalCommands)
	if st.LastCommandTime != nil {
		fmt.Fprintf(&b, "Last command: %s\n", st.LastCommandTime.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if top := st.TopCommands(topCommandsShown); len(top) > 0 {
		b.WriteString("\nTop commands:\n")
		for i, u := range top {
			fmt.Fprintf(&b, "%d. /%s: %d\n", i+1, u.Command, u.Count)
		}
	}
	b.WriteString("\nCreated:\n")
	for _, c := range counterLabels {
		fmt.Fprintf(&b, "%s: %d\n", c.label, st.Counters[c.key])
	}
	return r.reply(ctx, cmd, strings.TrimRight(b.String(), "\n"))
}

func (r *Router) handlePing(ctx context.Context, cmd Command) error {
	start := r.now()
	ref, err := r.msgr.Reply(ctx, cmd.Ref(), "🏓 Pong!")
	if err != nil {
		return err
	}
	elapsed := r.now().Sub(start)
	return r.msgr.Edit(ctx, ref, fmt.Sprintf("🏓 Pong! %dms", elapsed.Milliseconds()))
}

func (r *Router) handleUptime(ctx context.Context, cmd Command) error {
	up := r.now().Sub(r.startedAt)
	text := fmt.Sprintf("⏱ Uptime: %s\nStarted: %s",
		durations.Format(up),
		r.startedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
	return r.reply(ctx, cmd, text)
}

func (r *Router) handleBackup(ctx context.Context, cmd Command) error {
	if r.backupsDir == "" {
		return fmt.Errorf("backups dir is not configured")
	}
	res, err := r.store.Backup(ctx, r.backupsDir)
	if err != nil {
		return err
	}
	r.logger.Info("backup_created", "name", res.Name, "files", len(res.Files))
	return r.reply(ctx, cmd, fmt.Sprintf("💾 Backup %s saved (%d files)", res.Name, len(res.Files)))
}

func (r *Router) handleStop(ctx context.Context, cmd Command) error {
	if err := r.reply(ctx, cmd, "👋 Stopping. Pending tasks resume on the next start."); err != nil {
		r.logger.Warn("command_reply_error", "command", cmd.Name, "error", outputfmt.RedactErrorForLog(err))
	}
	r.logger.Info("stop_requested", "chat_id", cmd.ChatID)
	if r.stop != nil {
		r.stop()
	}
	return nil
}

func (r *Router) handleHelp(ctx context.Context, cmd Command) error {
	var b strings.Builder
	b.WriteString("🤖 Commands\n\n")
	for _, h := range r.handlers {
		b.WriteString("/" + h.name)
		if h.usage != "" {
			b.WriteString(" " + h.usage)
		}
		b.WriteString("\n   " + h.help + "\n")
	}
	b.WriteString("\nDurations: 30s, 5m, 1h30m, 2d. Intervals also accept 500ms.")
	return r.reply(ctx, cmd, b.String())
}

// Package commands turns the owner's slash commands into task operations and
// replies.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quailyquaily/pbot/internal/messenger"
	"github.com/quailyquaily/pbot/internal/outputfmt"
	"github.com/quailyquaily/pbot/internal/taskstore"
	"github.com/quailyquaily/pbot/internal/tasks"
)

const failedText = "❌ Something went wrong"

var defaultListCaps = map[tasks.Group]int{
	tasks.GroupTimers:   5,
	tasks.GroupWake:     6,
	tasks.GroupMentions: 3,
}

type Options struct {
	Manager   *tasks.Manager
	Store     *taskstore.Store
	Messenger messenger.Messenger
	Logger    *slog.Logger

	OwnerID  int64
	Limits   Limits
	Defaults Defaults
	// ListCaps bounds how many records /list shows per group. Missing or
	// non-positive entries fall back to the built-in caps.
	ListCaps   map[tasks.Group]int
	BackupsDir string

	StartedAt time.Time
	Now       func() time.Time
	// Stop is called by /stop after the reply is sent.
	Stop func()
}

type handlerFunc func(ctx context.Context, cmd Command) error

type handler struct {
	name  string
	usage string
	help  string
	fn    handlerFunc
}

type Router struct {
	manager    *tasks.Manager
	store      *taskstore.Store
	msgr       messenger.Messenger
	logger     *slog.Logger
	ownerID    int64
	args       argParser
	listCaps   map[tasks.Group]int
	backupsDir string
	startedAt  time.Time
	now        func() time.Time
	stop       func()

	handlers []handler
	byName   map[string]handler
}

func New(opts Options) (*Router, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("commands: manager is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("commands: store is required")
	}
	if opts.Messenger == nil {
		return nil, fmt.Errorf("commands: messenger is required")
	}
	if opts.OwnerID == 0 {
		return nil, fmt.Errorf("commands: owner id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = now()
	}
	caps := make(map[tasks.Group]int, len(defaultListCaps))
	for g, n := range defaultListCaps {
		caps[g] = n
		if v := opts.ListCaps[g]; v > 0 {
			caps[g] = v
		}
	}
	r := &Router{
		manager:    opts.Manager,
		store:      opts.Store,
		msgr:       opts.Messenger,
		logger:     logger,
		ownerID:    opts.OwnerID,
		args:       argParser{limits: normalizeLimits(opts.Limits), defaults: normalizeDefaults(opts.Defaults)},
		listCaps:   caps,
		backupsDir: strings.TrimSpace(opts.BackupsDir),
		startedAt:  startedAt,
		now:        now,
		stop:       opts.Stop,
		byName:     map[string]handler{},
	}
	r.handlers = []handler{
		{"timer", "<duration> [count]", "countdown timer, optionally repeating the end message", r.handleTimer},
		{"wake", "<duration> [messages]", "wake alarm, a burst of private messages", r.handleWake},
		{"remind", "<duration> <text>", "private reminder", r.handleRemind},
		{"mention", "@username <count> [interval]", "mention someone repeatedly", r.handleMention},
		{"spam", `[@username] "text" <count>`, "send a text repeatedly", r.handleSpam},
		{"cancel", "<timer|wake|mention|all> [id|number]", "cancel one task, a group, or everything", r.handleCancel},
		{"list", "[timers|wake|mention|all]", "show active tasks", r.handleList},
		{"stats", "", "usage statistics", r.handleStats},
		{"ping", "", "round-trip latency", r.handlePing},
		{"uptime", "", "time since start", r.handleUptime},
		{"backup", "", "snapshot the task records", r.handleBackup},
		{"stop", "", "shut down; pending tasks resume on the next start", r.handleStop},
		{"help", "", "this message", r.handleHelp},
	}
	for _, h := range r.handlers {
		r.byName[h.name] = h
	}
	return r, nil
}

func normalizeLimits(l Limits) Limits {
	if l.MaxDuration <= 0 {
		l.MaxDuration = 24 * time.Hour
	}
	if l.MaxSpam <= 0 {
		l.MaxSpam = 1000
	}
	if l.MaxMention <= 0 {
		l.MaxMention = 100
	}
	if l.MinInterval <= 0 {
		l.MinInterval = 100 * time.Millisecond
	}
	return l
}

func normalizeDefaults(d Defaults) Defaults {
	if d.WakeMessages <= 0 {
		d.WakeMessages = 10
	}
	if d.TimerSpam <= 0 {
		d.TimerSpam = 1
	}
	if d.MentionInterval <= 0 {
		d.MentionInterval = 500 * time.Millisecond
	}
	return d
}

// Names lists the recognized commands in help order.
func (r *Router) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.name)
	}
	return out
}

// Handle runs one command. Commands from anyone but the owner and unknown
// commands are ignored. Validation failures and internal errors become
// replies; the returned error only reports that such a reply could not be
// delivered.
func (r *Router) Handle(ctx context.Context, cmd Command) error {
	if cmd.SenderID != r.ownerID {
		r.logger.Debug("command_ignored", "reason", "not_owner", "sender_id", cmd.SenderID, "command", cmd.Name)
		return nil
	}
	h, ok := r.byName[cmd.Name]
	if !ok {
		r.logger.Debug("command_ignored", "reason", "unknown_command", "command", cmd.Name)
		return nil
	}
	if err := r.store.IncrementCommandUsage(cmd.Name); err != nil {
		r.logger.Warn("command_usage_error", "command", cmd.Name, "error", err.Error())
	}
	r.logger.Info("command_received", "command", cmd.Name, "chat_id", cmd.ChatID, "message_id", cmd.MessageID)

	err := h.fn(ctx, cmd)
	if err == nil {
		return nil
	}
	var uerr usageError
	if errors.As(err, &uerr) {
		_, replyErr := r.msgr.Reply(ctx, cmd.Ref(), uerr.Error())
		return replyErr
	}
	r.logger.Error("command_error", "command", cmd.Name, "error", outputfmt.RedactErrorForLog(err))
	_, replyErr := r.msgr.Reply(ctx, cmd.Ref(), failedText)
	return replyErr
}

func (r *Router) reply(ctx context.Context, cmd Command, text string) error {
	_, err := r.msgr.Reply(ctx, cmd.Ref(), text)
	return err
}

// warn posts a clamping notice. It is informational, so a failure is only
// logged.
func (r *Router) warn(ctx context.Context, cmd Command, text string) {
	if text == "" {
		return
	}
	if err := r.reply(ctx, cmd, text); err != nil {
		r.logger.Warn("command_warning_error", "command", cmd.Name, "error", outputfmt.RedactErrorForLog(err))
	}
}

// startTask posts the status message that anchors the task, then starts it.
// When the task cannot start, the status message turns into the failure
// notice.
func (r *Router) startTask(ctx context.Context, cmd Command, status string, start func(origin messenger.MessageRef) (taskstore.Record, error)) error {
	origin, err := r.msgr.Reply(ctx, cmd.Ref(), status)
	if err != nil {
		return fmt.Errorf("post status message: %w", err)
	}
	if _, err := start(origin); err != nil {
		r.logger.Error("task_start_error", "command", cmd.Name, "error", err.Error())
		if editErr := r.msgr.Edit(ctx, origin, failedText); editErr != nil {
			r.logger.Warn("command_status_edit_error", "command", cmd.Name, "error", outputfmt.RedactErrorForLog(editErr))
		}
	}
	return nil
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/quailyquaily/pbot/internal/taskstore"
)

const failedNotice = "❌ Something went wrong"

type runState string

const (
	stateRunning   runState = "running"
	stateCompleted runState = "completed"
	stateStopped   runState = "stopped"
	stateCancelled runState = "cancelled"
	stateFailed    runState = "failed"
	stateSuspended runState = "suspended"
)

// errStopped ends a repeat run whose registry entry disappeared. It is a
// normal exit and produces no summary.
var errStopped = errors.New("tasks: run stopped")

// run is the per-execution state handed to a task body.
type run struct {
	m       *Manager
	reg     *Registry
	rec     taskstore.Record
	logger  *slog.Logger
	runID   string
	resumed bool

	// sent counts the messages delivered so far, for summaries.
	sent int
}

// execute drives one runner to a terminal state. The deferred block is the
// only place where the registry entry and the record are released.
func (m *Manager) execute(ctx context.Context, cancel context.CancelCauseFunc, reg *Registry, rec taskstore.Record, resumed bool) {
	defer m.wg.Done()

	rn := &run{
		m:       m,
		reg:     reg,
		rec:     rec,
		runID:   uuid.NewString(),
		resumed: resumed,
	}
	rn.logger = m.logger.With("task_id", rec.ID, "kind", string(rec.Kind), "run_id", rn.runID)

	state := stateRunning
	var runErr error
	defer func() {
		if p := recover(); p != nil {
			state = stateFailed
			runErr = fmt.Errorf("panic: %v", p)
			rn.logger.Error("task_panic", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
		}
		rn.finish(state, runErr)
		cancel(nil)
	}()

	rn.logger.Info("task_running", "resumed", resumed, "duration_seconds", rec.DurationSeconds)
	if resumed {
		m.appendJournal(taskstore.Event{Event: taskstore.EventResumed, TaskID: rec.ID, Kind: rec.Kind, RunID: rn.runID})
	}
	err := rn.body(ctx)
	state, runErr = classify(ctx, err)
}

func (rn *run) body(ctx context.Context) error {
	switch rn.rec.Kind {
	case taskstore.KindTimer:
		return rn.runTimer(ctx)
	case taskstore.KindWake:
		return rn.runAlarm(ctx)
	case taskstore.KindReminder:
		return rn.runReminder(ctx)
	case taskstore.KindMention:
		return rn.runMention(ctx)
	case taskstore.KindSpam:
		return rn.runSpam(ctx)
	default:
		return fmt.Errorf("tasks: no runner for kind %q", rn.rec.Kind)
	}
}

func classify(ctx context.Context, err error) (runState, error) {
	switch {
	case err == nil:
		return stateCompleted, nil
	case ctx.Err() != nil:
		if errors.Is(context.Cause(ctx), ErrTaskCancelled) {
			return stateCancelled, nil
		}
		return stateSuspended, nil
	case errors.Is(err, errStopped):
		return stateStopped, nil
	default:
		return stateFailed, err
	}
}

func (rn *run) finish(state runState, runErr error) {
	m := rn.m
	rec := rn.rec
	ev := taskstore.Event{TaskID: rec.ID, Kind: rec.Kind, RunID: rn.runID}

	rn.reg.release(rec.ID)
	if state == stateSuspended {
		ev.Event = taskstore.EventSuspended
		m.appendJournal(ev)
		rn.logger.Info("task_suspended")
		return
	}
	rn.reg.removeRecord(rec.Kind, rec.ID)

	switch state {
	case stateCancelled:
		ev.Event = taskstore.EventCancelled
		rn.notice(cancelledNotice(rec, rn.sent))
		rn.logger.Info("task_cancelled", "sent", rn.sent)
	case stateFailed:
		ev.Event = taskstore.EventFailed
		if runErr != nil {
			ev.Detail = runErr.Error()
		}
		rn.notice(failedNotice)
		rn.logger.Error("task_failed", "error", ev.Detail)
	default:
		ev.Event = taskstore.EventCompleted
		if state == stateStopped {
			ev.Detail = "stopped"
		}
		rn.logger.Info("task_completed", "sent", rn.sent, "stopped", state == stateStopped)
	}
	m.appendJournal(ev)
}

// notice edits the origin message on a context that outlives the runner.
// Failures are logged and swallowed.
func (rn *run) notice(text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(rn.m.base), rn.m.noticeTimeout)
	defer cancel()
	if err := rn.m.msgr.Edit(ctx, rn.rec.Origin(), text); err != nil {
		rn.logger.Warn("task_notice_error", "error", err.Error())
	}
}

// edit updates the origin message with progress. Failures are logged at
// debug level; a runner keeps going when its status message is gone.
func (rn *run) edit(ctx context.Context, text string) {
	if err := rn.m.msgr.Edit(ctx, rn.rec.Origin(), text); err != nil {
		rn.logger.Debug("task_edit_error", "error", err.Error())
	}
}

func cancelledNotice(rec taskstore.Record, sent int) string {
	switch rec.Kind {
	case taskstore.KindTimer:
		return "⚠️ Timer cancelled"
	case taskstore.KindWake:
		return "⚠️ Alarm cancelled"
	case taskstore.KindReminder:
		return "⚠️ Reminder cancelled"
	case taskstore.KindMention:
		return fmt.Sprintf("⚠️ Mentions cancelled (%d sent)", sent)
	case taskstore.KindSpam:
		return fmt.Sprintf("⚠️ Spam cancelled (%d sent)", sent)
	default:
		return "⚠️ Task cancelled"
	}
}

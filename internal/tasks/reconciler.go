package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/quailyquaily/pbot/internal/durations"
	"github.com/quailyquaily/pbot/internal/taskstore"
	"golang.org/x/sync/errgroup"
)

// CollectionReport counts what Restore did with one collection.
type CollectionReport struct {
	Resumed  int `json:"resumed"`
	Expired  int `json:"expired"`
	Orphaned int `json:"orphaned"`
	Dropped  int `json:"dropped"`
}

type RestoreReport map[taskstore.Collection]CollectionReport

func (r RestoreReport) Total() CollectionReport {
	var out CollectionReport
	for _, c := range r {
		out.Resumed += c.Resumed
		out.Expired += c.Expired
		out.Orphaned += c.Orphaned
		out.Dropped += c.Dropped
	}
	return out
}

// Restore reconciles the durable records with the empty in-memory state of a
// fresh process. Timers, alarms and reminders with time left and a reachable
// status message are re-baselined and relaunched; everything else is
// deleted. Repeat runs are never resumed.
func (m *Manager) Restore(ctx context.Context) (RestoreReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	collections := taskstore.Collections()
	results := make([]CollectionReport, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range collections {
		i, c := i, c
		g.Go(func() error {
			var err error
			if c == taskstore.CollectionMentions {
				results[i], err = m.discardCollection(c)
			} else {
				results[i], err = m.restoreCollection(gctx, c)
			}
			return err
		})
	}
	err := g.Wait()

	report := make(RestoreReport, len(collections))
	for i, c := range collections {
		report[c] = results[i]
	}
	total := report.Total()
	m.logger.Info("task_restore_done",
		"resumed", total.Resumed,
		"expired", total.Expired,
		"orphaned", total.Orphaned,
		"dropped", total.Dropped,
	)
	return report, err
}

func (m *Manager) restoreCollection(ctx context.Context, c taskstore.Collection) (CollectionReport, error) {
	var rep CollectionReport
	now := m.clock.Now().UTC()
	for _, rec := range m.store.All(c) {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if reason := malformed(rec, c); reason != "" {
			m.discard(c, rec, taskstore.EventDropped, reason)
			rep.Dropped++
			continue
		}
		group, _ := GroupOf(rec.Kind)
		reg := m.registries[group]
		if reg.Contains(rec.ID) {
			continue
		}

		remaining := durations.Ceil(rec.Remaining(now))
		if remaining <= 0 {
			m.discard(c, rec, taskstore.EventExpired, "")
			rep.Expired++
			continue
		}

		if rec.Origin().IsZero() {
			m.discard(c, rec, taskstore.EventOrphaned, "no status message")
			rep.Orphaned++
			continue
		}
		ref, ok, err := m.msgr.ResolveMessage(ctx, rec.ChatID, rec.MessageID)
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			m.logger.Warn("task_restore_resolve_error", "task_id", rec.ID, "error", err.Error())
		}
		if err != nil || !ok || ref.IsZero() {
			m.discard(c, rec, taskstore.EventOrphaned, "status message unreachable")
			rep.Orphaned++
			continue
		}

		rec.ChatID, rec.MessageID = ref.ChatID, ref.MessageID
		rec.CreatedAt = now
		rec.DurationSeconds = int64(remaining / time.Second)
		if err := m.store.Save(rec); err != nil {
			m.logger.Warn("task_persist_error", "task_id", rec.ID, "kind", string(rec.Kind), "error", err.Error())
		}
		if err := m.launch(reg, rec, true); err != nil {
			if errors.Is(err, ErrDuplicateTask) {
				continue
			}
			return rep, err
		}
		rep.Resumed++
	}
	return rep, nil
}

func (m *Manager) discardCollection(c taskstore.Collection) (CollectionReport, error) {
	records := m.store.All(c)
	if len(records) == 0 {
		return CollectionReport{}, nil
	}
	if _, err := m.store.Clear(c); err != nil {
		return CollectionReport{}, err
	}
	for _, rec := range records {
		m.appendJournal(taskstore.Event{Event: taskstore.EventDropped, TaskID: rec.ID, Kind: rec.Kind, Detail: "not resumable"})
	}
	m.logger.Info("task_restore_discarded", "collection", string(c), "count", len(records))
	return CollectionReport{Dropped: len(records)}, nil
}

func (m *Manager) discard(c taskstore.Collection, rec taskstore.Record, event, detail string) {
	if _, err := m.store.Remove(c, rec.ID); err != nil {
		m.logger.Warn("task_record_remove_error", "task_id", rec.ID, "error", err.Error())
	}
	m.appendJournal(taskstore.Event{Event: event, TaskID: rec.ID, Kind: rec.Kind, Detail: detail})
	m.logger.Info("task_restore_"+event, "task_id", rec.ID, "kind", string(rec.Kind), "detail", detail)
}

func malformed(rec taskstore.Record, c taskstore.Collection) string {
	if err := rec.Validate(); err != nil {
		return err.Error()
	}
	got, err := rec.Collection()
	if err != nil {
		return err.Error()
	}
	if got != c {
		return "record stored in the wrong collection"
	}
	return ""
}

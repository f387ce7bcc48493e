package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quailyquaily/pbot/internal/taskstore"
)

// handle keeps the record a runner was launched with, so the task stays
// listable when the store could not persist it.
type handle struct {
	rec    taskstore.Record
	cancel context.CancelCauseFunc
}

// Registry tracks the runners of one group that are currently in flight.
// Entries are listed in insertion order.
type Registry struct {
	group  Group
	store  *taskstore.Store
	logger *slog.Logger

	mu      sync.Mutex
	order   []string
	entries map[string]*handle
}

func NewRegistry(group Group, store *taskstore.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		group:   group,
		store:   store,
		logger:  logger.With("group", string(group)),
		entries: map[string]*handle{},
	}
}

func (r *Registry) Group() Group {
	return r.group
}

// Register adds a running task. Each id may be registered once.
func (r *Registry) Register(rec taskstore.Record, cancel context.CancelCauseFunc) error {
	if rec.ID == "" || cancel == nil {
		return fmt.Errorf("%w: register needs an id and a cancel func", ErrInvalidRequest)
	}
	g, err := GroupOf(rec.Kind)
	if err != nil {
		return err
	}
	if g != r.group {
		return fmt.Errorf("%w: kind %q does not belong to group %q", ErrInvalidRequest, rec.Kind, r.group)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, rec.ID)
	}
	r.entries[rec.ID] = &handle{rec: rec, cancel: cancel}
	r.order = append(r.order, rec.ID)
	return nil
}

func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CancelByID signals the runner, forgets it and deletes its record. It
// returns false when id is not registered, so a second call is a no-op.
// The runner's context is cancelled before its entry disappears.
func (r *Registry) CancelByID(id string) bool {
	r.mu.Lock()
	h, ok := r.entries[id]
	if ok {
		h.cancel(ErrTaskCancelled)
		r.dropLocked(id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.removeRecord(h.rec.Kind, id)
	return true
}

// CancelAll cancels every runner of the group and deletes their records
// with one write per collection. Records of tasks registered afterwards are
// not touched. It returns how many runners were cancelled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	byCollection := map[taskstore.Collection][]string{}
	n := len(r.order)
	for _, id := range r.order {
		h := r.entries[id]
		h.cancel(ErrTaskCancelled)
		if c, err := h.rec.Collection(); err == nil {
			byCollection[c] = append(byCollection[c], id)
		}
	}
	r.order = nil
	r.entries = map[string]*handle{}
	r.mu.Unlock()

	if r.store != nil {
		for _, c := range r.group.Collections() {
			if _, err := r.store.RemoveIDs(c, byCollection[c]); err != nil {
				r.logger.Warn("task_registry_clear_error", "collection", string(c), "error", err.Error())
			}
		}
	}
	return n
}

// ListActive returns the records of the registered runners in registration
// order. A stored record wins over the launch copy.
func (r *Registry) ListActive() []taskstore.Record {
	r.mu.Lock()
	out := make([]taskstore.Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].rec)
	}
	r.mu.Unlock()

	if r.store == nil {
		return out
	}
	for i, rec := range out {
		c, err := rec.Collection()
		if err != nil {
			continue
		}
		if stored, ok := r.store.Get(c, rec.ID); ok {
			out[i] = stored
		}
	}
	return out
}

// release drops the entry for id without signalling it.
func (r *Registry) release(id string) (*handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	r.dropLocked(id)
	return h, true
}

func (r *Registry) dropLocked(id string) {
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) removeRecord(kind taskstore.Kind, id string) {
	if r.store == nil {
		return
	}
	c, err := kind.Collection()
	if err != nil {
		return
	}
	if _, err := r.store.Remove(c, id); err != nil {
		r.logger.Warn("task_record_remove_error", "task_id", id, "error", err.Error())
	}
}

// Package tasks runs the bot's delayed tasks: timers, wake alarms, reminders,
// mention runs and spam runs. Every task is persisted before it starts and
// forgotten when it reaches a terminal state, so a restart can pick up what
// was still pending.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/pbot/internal/messenger"
	"github.com/quailyquaily/pbot/internal/taskstore"
)

const (
	defaultEndMessagePacing = 100 * time.Millisecond
	defaultSpamPacing       = 200 * time.Millisecond
	defaultNoticeTimeout    = 15 * time.Second
)

// Pacing holds the fixed delays between repeated sends.
type Pacing struct {
	EndMessage time.Duration
	Spam       time.Duration
}

type Options struct {
	Store     *taskstore.Store
	Messenger messenger.Messenger
	Clock     Clock
	Logger    *slog.Logger
	Journal   *taskstore.Journal

	// BaseContext is the parent of every runner context. Cancelling it
	// suspends runners without deleting their records.
	BaseContext   context.Context
	Pacing        Pacing
	NoticeTimeout time.Duration
}

// Manager is the single entry point for starting, cancelling and listing
// tasks.
type Manager struct {
	store         *taskstore.Store
	msgr          messenger.Messenger
	clock         Clock
	logger        *slog.Logger
	journal       *taskstore.Journal
	base          context.Context
	pacing        Pacing
	noticeTimeout time.Duration

	registries map[Group]*Registry
	wg         sync.WaitGroup
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("tasks: store is required")
	}
	if opts.Messenger == nil {
		return nil, fmt.Errorf("tasks: messenger is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	pacing := opts.Pacing
	if pacing.EndMessage <= 0 {
		pacing.EndMessage = defaultEndMessagePacing
	}
	if pacing.Spam <= 0 {
		pacing.Spam = defaultSpamPacing
	}
	noticeTimeout := opts.NoticeTimeout
	if noticeTimeout <= 0 {
		noticeTimeout = defaultNoticeTimeout
	}

	m := &Manager{
		store:         opts.Store,
		msgr:          opts.Messenger,
		clock:         clock,
		logger:        logger,
		journal:       opts.Journal,
		base:          base,
		pacing:        pacing,
		noticeTimeout: noticeTimeout,
		registries:    map[Group]*Registry{},
	}
	for _, g := range Groups() {
		m.registries[g] = NewRegistry(g, opts.Store, logger)
	}
	return m, nil
}

func (m *Manager) Registry(g Group) (*Registry, error) {
	reg, ok := m.registries[g]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, g)
	}
	return reg, nil
}

type TimerRequest struct {
	Origin    messenger.MessageRef
	Duration  time.Duration
	SpamCount int
}

type AlarmRequest struct {
	Origin       messenger.MessageRef
	UserID       int64
	Duration     time.Duration
	MessageCount int
}

type ReminderRequest struct {
	Origin   messenger.MessageRef
	UserID   int64
	Duration time.Duration
	Text     string
}

type MentionRequest struct {
	Origin   messenger.MessageRef
	Username string
	Count    int
	Interval time.Duration
}

type SpamRequest struct {
	Origin     messenger.MessageRef
	TargetUser string
	Text       string
	Count      int
}

func (m *Manager) StartTimer(req TimerRequest) (taskstore.Record, error) {
	if req.Duration <= 0 {
		return taskstore.Record{}, fmt.Errorf("%w: timer duration must be positive", ErrInvalidRequest)
	}
	if req.SpamCount < 1 {
		req.SpamCount = 1
	}
	rec := m.newRecord(taskstore.KindTimer, req.Origin, req.Duration)
	rec.Timer = &taskstore.TimerPayload{SpamCount: req.SpamCount}
	return rec, m.start(rec, taskstore.CounterTimersCreated)
}

func (m *Manager) StartAlarm(req AlarmRequest) (taskstore.Record, error) {
	if req.Duration <= 0 {
		return taskstore.Record{}, fmt.Errorf("%w: alarm duration must be positive", ErrInvalidRequest)
	}
	if req.MessageCount < 1 {
		return taskstore.Record{}, fmt.Errorf("%w: alarm needs at least one message", ErrInvalidRequest)
	}
	rec := m.newRecord(taskstore.KindWake, req.Origin, req.Duration)
	rec.Wake = &taskstore.WakePayload{UserID: req.UserID, MessageCount: req.MessageCount}
	return rec, m.start(rec, taskstore.CounterAlarmsCreated)
}

func (m *Manager) StartReminder(req ReminderRequest) (taskstore.Record, error) {
	if req.Duration <= 0 {
		return taskstore.Record{}, fmt.Errorf("%w: reminder duration must be positive", ErrInvalidRequest)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return taskstore.Record{}, fmt.Errorf("%w: reminder text is empty", ErrInvalidRequest)
	}
	rec := m.newRecord(taskstore.KindReminder, req.Origin, req.Duration)
	rec.Reminder = &taskstore.ReminderPayload{UserID: req.UserID, Text: text}
	return rec, m.start(rec, taskstore.CounterRemindersCreated)
}

func (m *Manager) StartMention(req MentionRequest) (taskstore.Record, error) {
	username := strings.TrimLeft(strings.TrimSpace(req.Username), "@")
	if username == "" {
		return taskstore.Record{}, fmt.Errorf("%w: username is empty", ErrInvalidRequest)
	}
	if req.Count < 1 {
		return taskstore.Record{}, fmt.Errorf("%w: mention count must be positive", ErrInvalidRequest)
	}
	if req.Interval < 0 {
		return taskstore.Record{}, fmt.Errorf("%w: negative interval", ErrInvalidRequest)
	}
	rec := m.newRecord(taskstore.KindMention, req.Origin, 0)
	rec.Mention = &taskstore.MentionPayload{
		Username:        username,
		Count:           req.Count,
		IntervalSeconds: req.Interval.Seconds(),
	}
	return rec, m.start(rec, taskstore.CounterMentionsCreated)
}

func (m *Manager) StartSpam(req SpamRequest) (taskstore.Record, error) {
	if strings.TrimSpace(req.Text) == "" {
		return taskstore.Record{}, fmt.Errorf("%w: spam text is empty", ErrInvalidRequest)
	}
	if req.Count < 1 {
		return taskstore.Record{}, fmt.Errorf("%w: spam count must be positive", ErrInvalidRequest)
	}
	rec := m.newRecord(taskstore.KindSpam, req.Origin, 0)
	rec.Spam = &taskstore.SpamPayload{
		TargetUser: strings.TrimLeft(strings.TrimSpace(req.TargetUser), "@"),
		Text:       req.Text,
		Count:      req.Count,
	}
	return rec, m.start(rec, taskstore.CounterSpamCreated)
}

func (m *Manager) newRecord(kind taskstore.Kind, origin messenger.MessageRef, d time.Duration) taskstore.Record {
	now := m.clock.Now().UTC()
	seconds := int64(0)
	if d > 0 {
		seconds = int64((d + time.Second - 1) / time.Second)
	}
	return taskstore.Record{
		ID:              taskstore.NewID(kind, origin.ChatID, origin.MessageID, now),
		Kind:            kind,
		ChatID:          origin.ChatID,
		MessageID:       origin.MessageID,
		CreatedAt:       now,
		DurationSeconds: seconds,
	}
}

// start persists rec, registers it and launches its runner. A failed save
// is logged and the task runs anyway; memory is authoritative until the next
// successful write.
func (m *Manager) start(rec taskstore.Record, counter string) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	group, err := GroupOf(rec.Kind)
	if err != nil {
		return err
	}
	reg := m.registries[group]
	if reg.Contains(rec.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, rec.ID)
	}
	if err := m.store.Save(rec); err != nil {
		m.logger.Warn("task_persist_error", "task_id", rec.ID, "kind", string(rec.Kind), "error", err.Error())
	}
	m.appendJournal(taskstore.Event{Event: taskstore.EventCreated, TaskID: rec.ID, Kind: rec.Kind})
	if err := m.launch(reg, rec, false); err != nil {
		if _, rmErr := m.store.Remove(mustCollection(rec.Kind), rec.ID); rmErr != nil {
			m.logger.Warn("task_record_remove_error", "task_id", rec.ID, "error", rmErr.Error())
		}
		m.appendJournal(taskstore.Event{Event: taskstore.EventDropped, TaskID: rec.ID, Kind: rec.Kind, Detail: err.Error()})
		return err
	}
	if err := m.store.IncrementCounter(counter); err != nil {
		m.logger.Warn("task_counter_error", "counter", counter, "error", err.Error())
	}
	m.logger.Info("task_created",
		"task_id", rec.ID,
		"kind", string(rec.Kind),
		"duration_seconds", rec.DurationSeconds,
	)
	return nil
}

func (m *Manager) launch(reg *Registry, rec taskstore.Record, resumed bool) error {
	ctx, cancel := context.WithCancelCause(m.base)
	if err := reg.Register(rec, cancel); err != nil {
		cancel(nil)
		return err
	}
	m.wg.Add(1)
	go m.execute(ctx, cancel, reg, rec, resumed)
	return nil
}

// Cancel stops one task of the group. A selector that is a positive integer
// within the active list is a 1-based position in List order; anything else
// is taken as a task id. The returned record is the cancelled task when it
// was still listed.
func (m *Manager) Cancel(group Group, selector string) (taskstore.Record, bool, error) {
	reg, err := m.Registry(group)
	if err != nil {
		return taskstore.Record{}, false, err
	}
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return taskstore.Record{}, false, fmt.Errorf("%w: empty selector", ErrInvalidRequest)
	}
	active := reg.ListActive()
	id := selector
	if n, err := strconv.Atoi(selector); err == nil && n >= 1 && n <= len(active) {
		id = active[n-1].ID
	}
	var rec taskstore.Record
	for _, r := range active {
		if r.ID == id {
			rec = r
			break
		}
	}
	if !reg.CancelByID(id) {
		return taskstore.Record{}, false, nil
	}
	if rec.ID == "" {
		rec.ID = id
	}
	m.logger.Info("task_cancel_requested", "group", string(group), "task_id", id)
	return rec, true, nil
}

func (m *Manager) CancelGroup(group Group) (int, error) {
	reg, err := m.Registry(group)
	if err != nil {
		return 0, err
	}
	n := reg.CancelAll()
	m.logger.Info("task_group_cancelled", "group", string(group), "count", n)
	return n, nil
}

func (m *Manager) CancelEverything() map[Group]int {
	out := make(map[Group]int, len(m.registries))
	for _, g := range Groups() {
		out[g] = m.registries[g].CancelAll()
	}
	m.logger.Info("task_all_cancelled",
		"timers", out[GroupTimers],
		"wake", out[GroupWake],
		"mentions", out[GroupMentions],
	)
	return out
}

// List returns at most limit active records of the group, in the order Cancel
// resolves positions against. A limit of zero or less means no limit.
func (m *Manager) List(group Group, limit int) ([]taskstore.Record, error) {
	reg, err := m.Registry(group)
	if err != nil {
		return nil, err
	}
	active := reg.ListActive()
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}
	return active, nil
}

// Active reports how many runners of the group are in flight.
func (m *Manager) Active(group Group) int {
	reg, err := m.Registry(group)
	if err != nil {
		return 0
	}
	return reg.Len()
}

// Wait blocks until every launched runner has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) appendJournal(ev taskstore.Event) {
	if err := m.journal.Append(ev); err != nil {
		m.logger.Warn("task_journal_error", "task_id", ev.TaskID, "event", ev.Event, "error", err.Error())
	}
}

func mustCollection(kind taskstore.Kind) taskstore.Collection {
	c, err := kind.Collection()
	if err != nil {
		panic(err)
	}
	return c
}

package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/quailyquaily/pbot/internal/fsstore"
	"github.com/quailyquaily/pbot/internal/messenger/messengertest"
	"github.com/quailyquaily/pbot/internal/taskstore"
)

func seedRecord(t *testing.T, s *taskstore.Store, rec taskstore.Record) taskstore.Record {
	t.Helper()
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save(%s) error = %v", rec.ID, err)
	}
	return rec
}

func TestRestoreResumesAndDiscards(t *testing.T) {
	t.Parallel()

	clock := newBlockingClock(testNow, 1)
	env := newTestEnv(t, clock, nil)
	dataDir := env.store.Dir()
	seed := taskstore.New(dataDir, taskstore.Options{Logger: discardLogger()})
	tenAgo := testNow.Add(-10 * time.Second)

	live := seedRecord(t, seed, taskstore.Record{
		ID: "timer_1_1_live", Kind: taskstore.KindTimer, ChatID: 1, MessageID: 1,
		CreatedAt: tenAgo, DurationSeconds: 30,
		Timer: &taskstore.TimerPayload{SpamCount: 1},
	})
	env.rec.Seed(live.Origin(), "⏰ 25s left...")
	seedRecord(t, seed, taskstore.Record{
		ID: "timer_1_2_expired", Kind: taskstore.KindTimer, ChatID: 1, MessageID: 2,
		CreatedAt: tenAgo, DurationSeconds: 5,
		Timer: &taskstore.TimerPayload{SpamCount: 1},
	})
	seedRecord(t, seed, taskstore.Record{
		ID: "reminder_1_3_missed", Kind: taskstore.KindReminder, ChatID: 1, MessageID: 3,
		CreatedAt: testNow.Add(-70 * time.Second), DurationSeconds: 60,
		Reminder: &taskstore.ReminderPayload{UserID: 7, Text: "stretch"},
	})
	seedRecord(t, seed, taskstore.Record{
		ID: "wake_1_4_orphan", Kind: taskstore.KindWake, ChatID: 1, MessageID: 4,
		CreatedAt: tenAgo, DurationSeconds: 600,
		Wake: &taskstore.WakePayload{UserID: 7, MessageCount: 3},
	})
	seedRecord(t, seed, taskstore.Record{
		ID: "spam_1_5_burst", Kind: taskstore.KindSpam, ChatID: 1, MessageID: 5,
		CreatedAt: tenAgo,
		Spam: &taskstore.SpamPayload{Text: "hi", Count: 10},
	})
	addRawTimer(t, seed.Path(taskstore.CollectionTimers), "timer_bad", `{"id":"timer_bad","type":"timer","created_at":"2026-04-01T08:59:50Z","duration_seconds":30}`)

	// The manager's store has not read anything yet, so it sees the files
	// written above.
	report, err := env.m.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	want := map[taskstore.Collection]CollectionReport{
		taskstore.CollectionTimers:    {Resumed: 1, Expired: 1, Dropped: 1},
		taskstore.CollectionAlarms:    {Orphaned: 1},
		taskstore.CollectionReminders: {Expired: 1},
		taskstore.CollectionMentions:  {Dropped: 1},
	}
	for c, w := range want {
		if report[c] != w {
			t.Fatalf("report[%s] = %+v, want %+v", c, report[c], w)
		}
	}

	reg, _ := env.m.Registry(GroupTimers)
	if !reg.Contains(live.ID) {
		t.Fatalf("resumed timer not registered")
	}
	resumed, ok := env.store.Get(taskstore.CollectionTimers, live.ID)
	if !ok {
		t.Fatalf("resumed timer record missing")
	}
	if resumed.DurationSeconds != 20 || !resumed.CreatedAt.Equal(testNow) {
		t.Fatalf("resumed record = %+v, want 20s from %v", resumed, testNow)
	}
	if got := env.store.All(taskstore.CollectionTimers); len(got) != 1 {
		t.Fatalf("timers after restore = %d records, want 1", len(got))
	}
	for _, c := range []taskstore.Collection{taskstore.CollectionAlarms, taskstore.CollectionReminders, taskstore.CollectionMentions} {
		if n := len(env.store.All(c)); n != 0 {
			t.Fatalf("collection %s has %d records after restore", c, n)
		}
	}
	if n := len(env.rec.CallsOf(messengertest.OpSendPrivate)); n != 0 {
		t.Fatalf("missed reminder delivered %d messages", n)
	}

	// A second pass skips what is already running.
	again, err := env.m.Restore(context.Background())
	if err != nil {
		t.Fatalf("second Restore() error = %v", err)
	}
	if total := again.Total(); total != (CollectionReport{}) {
		t.Fatalf("second Restore() total = %+v, want zero", total)
	}
	if env.m.Active(GroupTimers) != 1 {
		t.Fatalf("Active(timers) = %d after second restore", env.m.Active(GroupTimers))
	}

	waitBlocked(t, clock)
	if got := env.text(t, live.Origin()); got != "⏰ Timer resumed, 20s left..." {
		t.Fatalf("origin text = %q", got)
	}
	env.m.CancelEverything()
	env.m.Wait()
}

func TestRestoreDropsOrphanOnResolveError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, newFakeClock(testNow), nil)
	seed := taskstore.New(env.store.Dir(), taskstore.Options{Logger: discardLogger()})
	rec := seedRecord(t, seed, taskstore.Record{
		ID: "reminder_1_1_x", Kind: taskstore.KindReminder, ChatID: 1, MessageID: 1,
		CreatedAt: testNow, DurationSeconds: 60,
		Reminder: &taskstore.ReminderPayload{UserID: 7, Text: "x"},
	})
	env.rec.Seed(rec.Origin(), "⏳")
	env.rec.Fail(messengertest.OpResolve, context.DeadlineExceeded)

	report, err := env.m.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if report[taskstore.CollectionReminders].Orphaned != 1 {
		t.Fatalf("report = %+v", report)
	}
	if _, ok := env.store.Get(taskstore.CollectionReminders, rec.ID); ok {
		t.Fatalf("orphaned reminder still stored")
	}
	env.m.Wait()
}

func TestRestoreOrphansRecordWithoutOrigin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, newFakeClock(testNow), nil)
	seed := taskstore.New(env.store.Dir(), taskstore.Options{Logger: discardLogger()})
	rec := seedRecord(t, seed, taskstore.Record{
		ID: "wake_0_0_x", Kind: taskstore.KindWake,
		CreatedAt: testNow, DurationSeconds: 600,
		Wake: &taskstore.WakePayload{UserID: 7, MessageCount: 1},
	})

	report, err := env.m.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if report[taskstore.CollectionAlarms].Orphaned != 1 {
		t.Fatalf("report = %+v", report)
	}
	if n := len(env.rec.CallsOf(messengertest.OpResolve)); n != 0 {
		t.Fatalf("resolve calls = %d, want 0", n)
	}
	if _, ok := env.store.Get(taskstore.CollectionAlarms, rec.ID); ok {
		t.Fatalf("record without origin still stored")
	}
	env.m.Wait()
}

func addRawTimer(t *testing.T, path, id, raw string) {
	t.Helper()
	var file struct {
		Version int                        `json:"version"`
		Records map[string]json.RawMessage `json:"records"`
	}
	if _, err := fsstore.ReadJSON(path, &file); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if file.Records == nil {
		file.Records = map[string]json.RawMessage{}
	}
	file.Records[id] = json.RawMessage(raw)
	if err := fsstore.WriteJSONAtomic(path, file, fsstore.FileOptions{}); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}
}

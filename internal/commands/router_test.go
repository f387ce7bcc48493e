package commands

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quailyquaily/pbot/internal/messenger"
	"github.com/quailyquaily/pbot/internal/messenger/messengertest"
	"github.com/quailyquaily/pbot/internal/taskstore"
	"github.com/quailyquaily/pbot/internal/tasks"
)

const (
	ownerID  = int64(42)
	testChat = int64(-100)
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// parkedClock never lets a sleep finish, so started tasks stay active until
// they are cancelled or the test ends.
type parkedClock struct{}

func (parkedClock) Now() time.Time { return testNow }

func (parkedClock) Sleep(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

type routerEnv struct {
	router  *Router
	manager *tasks.Manager
	store   *taskstore.Store
	msgr    *messengertest.Recorder
	stopped atomic.Bool

	mu    sync.Mutex
	msgID int64
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouterEnv(t *testing.T, mutate func(*Options)) *routerEnv {
	t.Helper()
	dir := t.TempDir()
	store := taskstore.New(filepath.Join(dir, "data"), taskstore.Options{
		Logger: discardLogger(),
		Now:    func() time.Time { return testNow },
	})
	msgr := messengertest.NewRecorder()

	base, cancel := context.WithCancel(context.Background())
	manager, err := tasks.NewManager(tasks.Options{
		Store:       store,
		Messenger:   msgr,
		Clock:       parkedClock{},
		Logger:      discardLogger(),
		BaseContext: base,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		manager.Wait()
	})

	env := &routerEnv{manager: manager, store: store, msgr: msgr, msgID: 1}
	opts := Options{
		Manager:    manager,
		Store:      store,
		Messenger:  msgr,
		Logger:     discardLogger(),
		OwnerID:    ownerID,
		BackupsDir: filepath.Join(dir, "backups"),
		StartedAt:  testNow.Add(-90 * time.Minute),
		Now:        func() time.Time { return testNow },
		Stop:       func() { env.stopped.Store(true) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	router, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.router = router
	return env
}

// send delivers text as a new message from sender and returns its ref.
func (e *routerEnv) send(t *testing.T, sender int64, text string) messenger.MessageRef {
	t.Helper()
	name, args, ok := ParseCommand(text, "")
	if !ok {
		t.Fatalf("ParseCommand(%q) failed", text)
	}
	e.mu.Lock()
	e.msgID++
	id := e.msgID
	e.mu.Unlock()
	cmd := Command{Name: name, Args: args, ChatID: testChat, MessageID: id, SenderID: sender}
	if err := e.router.Handle(context.Background(), cmd); err != nil {
		t.Fatalf("Handle(%q) error = %v", text, err)
	}
	return cmd.Ref()
}

// replies returns the texts posted in reply to ref.
func (e *routerEnv) replies(ref messenger.MessageRef) []string {
	var out []string
	for _, c := range e.msgr.CallsOf(messengertest.OpReply) {
		if c.Ref == ref {
			out = append(out, c.Text)
		}
	}
	return out
}

func (e *routerEnv) lastReply(t *testing.T, ref messenger.MessageRef) string {
	t.Helper()
	got := e.replies(ref)
	if len(got) == 0 {
		t.Fatalf("no reply to %s", ref)
	}
	return got[len(got)-1]
}

func TestNewRequiresOwner(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	_, err := New(Options{Manager: env.manager, Store: env.store, Messenger: env.msgr})
	if err == nil {
		t.Fatalf("New() without owner should fail")
	}
}

func TestIgnoresOtherSenders(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	env.send(t, 7, "/timer 5m")
	env.send(t, ownerID, "/dance")

	if calls := env.msgr.Calls(); len(calls) != 0 {
		t.Fatalf("calls = %+v, want none", calls)
	}
	if n := env.manager.Active(tasks.GroupTimers); n != 0 {
		t.Fatalf("active timers = %d, want 0", n)
	}
	if st := env.store.Stats(); st.TotalCommands != 0 {
		t.Fatalf("total commands = %d, want 0", st.TotalCommands)
	}
}

func TestTimerCommandStartsTask(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	ref := env.send(t, ownerID, "/timer 5m")

	if got := env.replies(ref); len(got) != 1 || got[0] != "⏰ Timer set for 5m" {
		t.Fatalf("replies = %q", got)
	}
	if n := env.manager.Active(tasks.GroupTimers); n != 1 {
		t.Fatalf("active timers = %d, want 1", n)
	}
	recs := env.store.All(taskstore.CollectionTimers)
	if len(recs) != 1 || recs[0].DurationSeconds != 300 || recs[0].ChatID != testChat {
		t.Fatalf("stored timers = %+v", recs)
	}
	if recs[0].MessageID == ref.MessageID {
		t.Fatalf("task should anchor to the status message, not the command")
	}
	st := env.store.Stats()
	if st.CommandsUsed["timer"] != 1 || st.Counters[taskstore.CounterTimersCreated] != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestTimerCountIsClampedWithWarning(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	ref := env.send(t, ownerID, "/timer 5m 5000")

	got := env.replies(ref)
	if len(got) != 2 || got[0] != "⚠️ count too large, clamped to 1000" {
		t.Fatalf("replies = %q", got)
	}
	recs := env.store.All(taskstore.CollectionTimers)
	if len(recs) != 1 || recs[0].Timer == nil || recs[0].Timer.SpamCount != 1000 {
		t.Fatalf("stored timers = %+v", recs)
	}
}

func TestValidationErrorsAreReplied(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	ref := env.send(t, ownerID, "/timer abc")

	if got := env.lastReply(t, ref); got != `❌ Invalid duration: "abc". Examples: 30s, 5m, 1h30m` {
		t.Fatalf("reply = %q", got)
	}
	if n := env.manager.Active(tasks.GroupTimers); n != 0 {
		t.Fatalf("active timers = %d, want 0", n)
	}
	if st := env.store.Stats(); st.CommandsUsed["timer"] != 1 {
		t.Fatalf("a recognized command should count even when invalid: %+v", st.CommandsUsed)
	}
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, func(o *Options) { o.BackupsDir = "" })
	ref := env.send(t, ownerID, "/backup")

	if got := env.lastReply(t, ref); got != failedText {
		t.Fatalf("reply = %q, want %q", got, failedText)
	}
}

func TestListThenCancelByPosition(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	env.send(t, ownerID, "/timer 5m")
	env.send(t, ownerID, "/timer 10m")

	list := env.lastReply(t, env.send(t, ownerID, "/list timers"))
	if !strings.Contains(list, "⏰ Timers (2):") {
		t.Fatalf("list = %q", list)
	}
	first := strings.Index(list, "1. timer, 5m left")
	second := strings.Index(list, "2. timer, 10m left")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("list order = %q", list)
	}

	reply := env.lastReply(t, env.send(t, ownerID, "/cancel timer 1"))
	if reply != "✅ Cancelled timer" {
		t.Fatalf("cancel reply = %q", reply)
	}
	recs, err := env.manager.List(tasks.GroupTimers, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 1 || recs[0].DurationSeconds != 600 {
		t.Fatalf("remaining timers = %+v", recs)
	}
}

func TestCancelUnknownSelector(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	env.send(t, ownerID, "/timer 5m")
	reply := env.lastReply(t, env.send(t, ownerID, "/cancel timer 9"))
	if reply != `❌ Nothing to cancel in timers matches "9". See /list timers` {
		t.Fatalf("reply = %q", reply)
	}
	if n := env.manager.Active(tasks.GroupTimers); n != 1 {
		t.Fatalf("active timers = %d, want 1", n)
	}
}

func TestCancelGroupAndEverything(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	env.send(t, ownerID, "/timer 5m")
	env.send(t, ownerID, "/wake 1h")
	env.send(t, ownerID, "/remind 2h stretch")
	env.send(t, ownerID, `/spam "hi" 3`)

	if reply := env.lastReply(t, env.send(t, ownerID, "/cancel wake")); reply != "✅ Cancelled 2 in wake" {
		t.Fatalf("group cancel reply = %q", reply)
	}
	reply := env.lastReply(t, env.send(t, ownerID, "/cancel all"))
	if reply != "✅ Cancelled everything: 1 timers, 0 wake, 1 mentions" {
		t.Fatalf("cancel all reply = %q", reply)
	}
	for _, c := range taskstore.Collections() {
		if recs := env.store.All(c); len(recs) != 0 {
			t.Fatalf("%s still has %d records", c, len(recs))
		}
	}
}

func TestListIsCappedPerGroup(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, func(o *Options) {
		o.ListCaps = map[tasks.Group]int{tasks.GroupTimers: 1}
	})
	env.send(t, ownerID, "/timer 5m")
	env.send(t, ownerID, "/timer 6m")
	env.send(t, ownerID, "/mention @bob 3")

	list := env.lastReply(t, env.send(t, ownerID, "/list"))
	if strings.Contains(list, "2. timer") || !strings.Contains(list, "... and 1 more") {
		t.Fatalf("list = %q", list)
	}
	if !strings.Contains(list, "👤 Mentions and spam (1):") || !strings.Contains(list, "1. mentions of @bob (3 times)") {
		t.Fatalf("list = %q", list)
	}
}

func TestListEmpty(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	if reply := env.lastReply(t, env.send(t, ownerID, "/list all")); reply != "📋 No active tasks" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestWakeAndRemindTargetTheOwner(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	wakeRef := env.send(t, ownerID, "/wake 8h 20")
	remindRef := env.send(t, ownerID, `/remind 30m "call mom"`)

	if got := env.lastReply(t, wakeRef); got != "🔔 Wake alarm in 8h (20 messages)" {
		t.Fatalf("wake reply = %q", got)
	}
	if got := env.lastReply(t, remindRef); got != "💭 Reminder in 30m: call mom" {
		t.Fatalf("remind reply = %q", got)
	}
	alarms := env.store.All(taskstore.CollectionAlarms)
	if len(alarms) != 1 || alarms[0].Wake.UserID != ownerID || alarms[0].Wake.MessageCount != 20 {
		t.Fatalf("alarms = %+v", alarms)
	}
	reminders := env.store.All(taskstore.CollectionReminders)
	if len(reminders) != 1 || reminders[0].Reminder.UserID != ownerID || reminders[0].Reminder.Text != "call mom" {
		t.Fatalf("reminders = %+v", reminders)
	}
}

func TestSpamAndMentionCommands(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	spamRef := env.send(t, ownerID, `/spam @bob "hello there" 4`)
	mentionRef := env.send(t, ownerID, "/mention @alice 2 1s")

	if got := env.lastReply(t, spamRef); got != `💬 Spamming @bob: "hello there" (4 times)` {
		t.Fatalf("spam reply = %q", got)
	}
	if got := env.lastReply(t, mentionRef); got != "👤 Mentioning @alice 2 times every 1s" {
		t.Fatalf("mention reply = %q", got)
	}
	var spam, mention *taskstore.Record
	for _, rec := range env.store.All(taskstore.CollectionMentions) {
		rec := rec
		switch rec.Kind {
		case taskstore.KindSpam:
			spam = &rec
		case taskstore.KindMention:
			mention = &rec
		}
	}
	if spam == nil || spam.Spam.TargetUser != "bob" || spam.Spam.Count != 4 {
		t.Fatalf("spam record = %+v", spam)
	}
	if mention == nil || mention.Mention.Username != "alice" || mention.Mention.IntervalSeconds != 1 {
		t.Fatalf("mention record = %+v", mention)
	}
}

func TestStatsReply(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	env.send(t, ownerID, "/ping")
	env.send(t, ownerID, "/timer 1m")
	reply := env.lastReply(t, env.send(t, ownerID, "/stats"))

	for _, want := range []string{
		"Commands used: 3",
		"Last command: 2026-04-01 09:00:00 UTC",
		"1. /ping: 1",
		"2. /stats: 1",
		"3. /timer: 1",
		"Timers: 1",
		"Spam runs: 0",
	} {
		if !strings.Contains(reply, want) {
			t.Fatalf("stats reply missing %q:\n%s", want, reply)
		}
	}
}

func TestPingEditsLatency(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	env := newRouterEnv(t, func(o *Options) {
		o.Now = func() time.Time {
			return testNow.Add(time.Duration(calls.Add(1)) * 42 * time.Millisecond)
		}
	})
	ref := env.send(t, ownerID, "/ping")

	if got := env.replies(ref); len(got) != 1 || got[0] != "🏓 Pong!" {
		t.Fatalf("replies = %q", got)
	}
	edits := env.msgr.CallsOf(messengertest.OpEdit)
	if len(edits) != 1 || edits[0].Text != "🏓 Pong! 42ms" {
		t.Fatalf("edits = %+v", edits)
	}
}

func TestUptimeHelpBackupStop(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, nil)
	if got := env.lastReply(t, env.send(t, ownerID, "/uptime")); !strings.HasPrefix(got, "⏱ Uptime: 1h 30m\n") {
		t.Fatalf("uptime reply = %q", got)
	}
	if got := env.lastReply(t, env.send(t, ownerID, "/help")); !strings.Contains(got, "/timer <duration> [count]") {
		t.Fatalf("help reply = %q", got)
	}

	env.send(t, ownerID, "/timer 5m")
	got := env.lastReply(t, env.send(t, ownerID, "/backup"))
	if !strings.HasPrefix(got, "💾 Backup 20260401T090000Z saved (") {
		t.Fatalf("backup reply = %q", got)
	}

	env.send(t, ownerID, "/stop")
	if !env.stopped.Load() {
		t.Fatalf("/stop should call the stop hook")
	}
	if n := env.manager.Active(tasks.GroupTimers); n != 1 {
		t.Fatalf("/stop must not cancel tasks, active = %d", n)
	}
}

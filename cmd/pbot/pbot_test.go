package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/quailyquaily/pbot/internal/clifmt"
	"github.com/quailyquaily/pbot/internal/taskstore"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func sampleRecords() []taskstore.Record {
	return []taskstore.Record{
		{
			ID: "timer_10_1_1", Kind: taskstore.KindTimer, ChatID: 10, MessageID: 1,
			CreatedAt: testNow.Add(-time.Minute), DurationSeconds: 300,
			Timer: &taskstore.TimerPayload{SpamCount: 1},
		},
		{
			ID: "reminder_10_2_1", Kind: taskstore.KindReminder, ChatID: 10, MessageID: 2,
			CreatedAt: testNow.Add(-2 * time.Hour), DurationSeconds: 60,
			Reminder: &taskstore.ReminderPayload{UserID: 42, Text: "stretch"},
		},
		{
			ID: "spam_10_3_1", Kind: taskstore.KindSpam, ChatID: 10, MessageID: 3,
			CreatedAt: testNow,
			Spam:      &taskstore.SpamPayload{Text: "hi", Count: 3},
		},
	}
}

func TestWriteRecordsTable(t *testing.T) {
	clifmt.SetColor(false)

	var buf bytes.Buffer
	if err := writeRecords(&buf, formatTable, sampleRecords(), testNow); err != nil {
		t.Fatalf("writeRecords() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Stored tasks (3)", "timer_10_1_1", "4m", "expired", "reminder: stretch"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteRecordsStructured(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRecords(&buf, formatJSON, nil, testNow); err != nil {
		t.Fatalf("writeRecords(json) error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Fatalf("empty json = %q, want []", got)
	}

	buf.Reset()
	if err := writeRecords(&buf, formatJSON, sampleRecords(), testNow); err != nil {
		t.Fatalf("writeRecords(json) error = %v", err)
	}
	var decoded []taskstore.Record
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(decoded) != 3 || decoded[1].Reminder == nil || decoded[1].Reminder.Text != "stretch" {
		t.Fatalf("decoded = %+v", decoded)
	}

	buf.Reset()
	if err := writeRecords(&buf, formatYAML, sampleRecords(), testNow); err != nil {
		t.Fatalf("writeRecords(yaml) error = %v", err)
	}
	var rows []map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if len(rows) != 3 || rows[2]["type"] != "spam" {
		t.Fatalf("yaml rows = %v", rows)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]string{"": formatTable, "JSON": formatJSON, " yaml ": formatYAML} {
		got, err := parseFormat(in)
		if err != nil || got != want {
			t.Fatalf("parseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := parseFormat("xml"); err == nil {
		t.Fatalf("parseFormat(xml) should fail")
	}
}

func TestClearTargets(t *testing.T) {
	all, err := clearTargets("ALL")
	if err != nil || len(all) != len(taskstore.Collections()) {
		t.Fatalf("clearTargets(ALL) = %v, %v", all, err)
	}
	one, err := clearTargets("wake_alarms")
	if err != nil || len(one) != 1 || one[0] != taskstore.CollectionAlarms {
		t.Fatalf("clearTargets(wake_alarms) = %v, %v", one, err)
	}
	if _, err := clearTargets("spam"); err == nil {
		t.Fatalf("clearTargets(spam) should fail")
	}
}

func TestWriteStatsTable(t *testing.T) {
	clifmt.SetColor(false)

	last := testNow
	st := taskstore.Stats{
		CommandsUsed:    map[string]int64{"timer": 4, "list": 2},
		TotalCommands:   6,
		LastCommandTime: &last,
		Counters:        map[string]int64{taskstore.CounterTimersCreated: 4},
	}
	var buf bytes.Buffer
	if err := writeStats(&buf, formatTable, st); err != nil {
		t.Fatalf("writeStats() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Total commands: 6", "2026-04-01 09:00:00 UTC", "/timer", "timers", "spam runs"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "/timer") > strings.Index(out, "/list") {
		t.Fatalf("commands not ordered by use:\n%s", out)
	}
}

func TestBotConfigFromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	initViperDefaults()

	if _, err := botConfigFromViper(); err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Fatalf("botConfigFromViper() error = %v, want missing token", err)
	}
	viper.Set("telegram.bot_token", "123:abc")
	if _, err := botConfigFromViper(); err == nil || !strings.Contains(err.Error(), "owner_id") {
		t.Fatalf("botConfigFromViper() error = %v, want missing owner", err)
	}
	viper.Set("telegram.owner_id", 42)
	viper.Set("telegram.request_timeout", 5*time.Second)
	cfg, err := botConfigFromViper()
	if err != nil {
		t.Fatalf("botConfigFromViper() error = %v", err)
	}
	if cfg.RequestTimeout != 40*time.Second {
		t.Fatalf("request timeout = %v, want poll timeout plus headway", cfg.RequestTimeout)
	}
	if cfg.Limits.MaxSpam != 1000 || cfg.Defaults.WakeMessages != 10 || cfg.ListCaps["wake"] != 6 {
		t.Fatalf("config = %+v", cfg)
	}
}

package clifmt

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintTableAlignsAndWraps(t *testing.T) {
	SetColor(false)

	var buf bytes.Buffer
	PrintTable(&buf, TableOptions{
		Title:        "Tasks",
		Headers:      []string{"ID", "KIND", "SUMMARY"},
		DefaultWidth: 30,
		Rows: [][]string{
			{"a1", "timer", "Timer 5m, 3 messages"},
			{"bb22", "reminder", "Reminder in 1h: water the plants today"},
		},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[0] != "Tasks (2)" {
		t.Fatalf("title = %q", lines[0])
	}
	if lines[1] != "ID    KIND      SUMMARY" {
		t.Fatalf("header = %q", lines[1])
	}
	if !strings.HasPrefix(lines[3], "a1    timer     Timer 5m, 3") {
		t.Fatalf("row = %q", lines[3])
	}
	// Wrapped continuation lines are indented past the fixed columns.
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, strings.Repeat(" ", 16)) {
		t.Fatalf("continuation = %q", last)
	}
}

func TestPrintTableEmpty(t *testing.T) {
	SetColor(false)

	var buf bytes.Buffer
	PrintTable(&buf, TableOptions{Headers: []string{"ID"}, EmptyText: "No pending tasks."})
	if got := strings.TrimSpace(buf.String()); got != "No pending tasks." {
		t.Fatalf("output = %q", got)
	}
}

func TestWrapTextRunes(t *testing.T) {
	cases := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"one two three", 7, []string{"one two", "three"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"hi  there", 0, []string{"hi there"}},
	}
	for _, tc := range cases {
		got := wrapTextRunes(tc.text, tc.width)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("wrapTextRunes(%q, %d) = %q, want %q", tc.text, tc.width, got, tc.want)
		}
	}
}

package fsstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLockPathFor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	got, err := LockPathFor(root, "pbot.run")
	if err != nil {
		t.Fatalf("LockPathFor() error = %v", err)
	}
	if want := filepath.Join(root, ".fslocks", "pbot.run.lck"); got != want {
		t.Fatalf("LockPathFor() = %q, want %q", got, want)
	}

	for _, key := range []string{"", "Pbot.run", "pbot/run", ".pbot.run", "pbot.run.", "pbot run", "pbot..run"} {
		if _, err := LockPathFor(root, key); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("LockPathFor(%q) error = %v, want ErrInvalidPath", key, err)
		}
	}
	if _, err := LockPathFor(" ", "pbot.run"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("LockPathFor(blank dir) error = %v, want ErrInvalidPath", err)
	}
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "stats.json")
	for _, content := range []string{"first\n", "second\n"} {
		if err := WriteFileAtomic(path, []byte(content), FileOptions{}); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}
	}
	got, ok, err := ReadFile(path)
	if err != nil || !ok {
		t.Fatalf("ReadFile() = %q, %v, %v", got, ok, err)
	}
	if string(got) != "second\n" {
		t.Fatalf("ReadFile() = %q, want second", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != defaultFilePerm {
		t.Fatalf("file perm = %v, want %v", perm, os.FileMode(defaultFilePerm))
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir entries = %d, want only the target file", len(entries))
	}
}

func TestReadJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	type payload struct {
		Records map[string]int64 `json:"records"`
	}

	path := filepath.Join(dir, "timers.json")
	if err := WriteJSONAtomic(path, payload{Records: map[string]int64{"timer_1_2_3.000000": 30}}, FileOptions{}); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}
	var out payload
	if ok, err := ReadJSON(path, &out); err != nil || !ok || out.Records["timer_1_2_3.000000"] != 30 {
		t.Fatalf("ReadJSON() = %+v, %v, %v", out, ok, err)
	}

	if ok, err := ReadJSON(filepath.Join(dir, "missing.json"), &out); err != nil || ok {
		t.Fatalf("ReadJSON(missing) = %v, %v; want false, nil", ok, err)
	}

	blank := filepath.Join(dir, "blank.json")
	if err := WriteFileAtomic(blank, []byte(" \n"), FileOptions{}); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if ok, err := ReadJSON(blank, &out); err != nil || ok {
		t.Fatalf("ReadJSON(blank) = %v, %v; want false, nil", ok, err)
	}

	corrupt := filepath.Join(dir, "reminders.json")
	if err := WriteFileAtomic(corrupt, []byte("{not json"), FileOptions{}); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if ok, err := ReadJSON(corrupt, &out); ok || !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("ReadJSON(corrupt) = %v, %v; want false, ErrDecodeFailed", ok, err)
	}
}

func TestUpdateManifestKeepsConcurrentEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "backups", "index.json")
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		name := "snap-" + string(rune('a'+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- UpdateManifest(context.Background(), path, "index.backups", FileOptions{}, func(m *Manifest) error {
				m.Entries[name] = ManifestEntry{Name: name, Files: 2, CreatedAt: time.Now().UTC()}
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("UpdateManifest() error = %v", err)
		}
	}

	m, ok, err := ReadManifest(path)
	if err != nil || !ok {
		t.Fatalf("ReadManifest() ok=%v error = %v", ok, err)
	}
	if m.Version != manifestVersion || len(m.Entries) != 8 {
		t.Fatalf("manifest = %+v, want version %d with 8 entries", m, manifestVersion)
	}
}

func TestUpdateManifestMutatorErrorLeavesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.json")
	boom := errors.New("boom")
	err := UpdateManifest(context.Background(), path, "index.backups", FileOptions{}, func(*Manifest) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("UpdateManifest() error = %v, want boom", err)
	}
	if _, ok, _ := ReadManifest(path); ok {
		t.Fatalf("manifest written despite mutator error")
	}
}

func TestJSONLWriterRotates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.jsonl")
	w, err := NewJSONLWriter(path, JSONLOptions{RotateMaxBytes: 20})
	if err != nil {
		t.Fatalf("NewJSONLWriter() error = %v", err)
	}
	fixed := time.Date(2026, 2, 7, 8, 0, 1, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	rotated := path + "." + fixed.Format("20060102T150405Z")
	if err := WriteFileAtomic(rotated, []byte("old\n"), FileOptions{}); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}

	for _, ev := range []string{"created", "completed"} {
		if err := w.AppendJSON(map[string]string{"event": ev}); err != nil {
			t.Fatalf("AppendJSON(%s) error = %v", ev, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.AppendJSON("late"); err == nil {
		t.Fatalf("AppendJSON() after Close should fail")
	}

	moved, ok, err := ReadFile(rotated + ".1")
	if err != nil || !ok {
		t.Fatalf("ReadFile(rotated.1) ok=%v error = %v", ok, err)
	}
	if !strings.Contains(string(moved), `"created"`) {
		t.Fatalf("rotated content = %q, want the first event", moved)
	}
	live, _, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(live) error = %v", err)
	}
	if strings.TrimSpace(string(live)) != `{"event":"completed"}` {
		t.Fatalf("live content = %q", live)
	}
}

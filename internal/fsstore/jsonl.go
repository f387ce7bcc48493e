package fsstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const defaultRotateMaxBytes = 10 * 1024 * 1024

type JSONLOptions struct {
	FileOptions
	// RotateMaxBytes caps the live file. A write that would cross it first
	// moves the file aside as <path>.<UTC timestamp>. Zero means 10 MiB.
	RotateMaxBytes int64
	// Sync fsyncs after every line.
	Sync bool
}

// JSONLWriter appends one JSON document per line. Every line is a single
// write on an O_APPEND descriptor, so nothing is buffered in process.
type JSONLWriter struct {
	path string
	opts JSONLOptions
	now  func() time.Time

	mu   sync.Mutex
	file *os.File
	size int64
}

func NewJSONLWriter(path string, opts JSONLOptions) (*JSONLWriter, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	opts.FileOptions = opts.FileOptions.normalized()
	if opts.RotateMaxBytes <= 0 {
		opts.RotateMaxBytes = defaultRotateMaxBytes
	}
	w := &JSONLWriter{path: p, opts: opts, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *JSONLWriter) AppendJSON(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncodeFailed, w.path, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("fsstore: %s: writer closed", w.path)
	}
	if w.size > 0 && w.size+int64(len(line)) > w.opts.RotateMaxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	n, err := w.file.Write(line)
	w.size += int64(n)
	if err != nil {
		return fmt.Errorf("fsstore: append %s: %w", w.path, err)
	}
	if w.opts.Sync {
		return w.file.Sync()
	}
	return nil
}

func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *JSONLWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("fsstore: rotate %s: %w", w.path, err)
	}
	w.file = nil

	base := w.path + "." + w.now().UTC().Format("20060102T150405Z")
	target := base
	for i := 1; ; i++ {
		_, err := os.Lstat(target)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return err
		}
		target = base + "." + strconv.Itoa(i)
	}
	if err := os.Rename(w.path, target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("fsstore: rotate %s: %w", w.path, err)
	}
	return w.open()
}

func (w *JSONLWriter) open() error {
	if err := EnsureDir(filepath.Dir(w.path), w.opts.DirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, w.opts.FilePerm)
	if err != nil {
		return fmt.Errorf("fsstore: open %s: %w", w.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("fsstore: stat %s: %w", w.path, err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

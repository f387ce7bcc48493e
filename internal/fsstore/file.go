// Package fsstore holds the file primitives behind the task store: atomic
// whole-file rewrites, an append-only JSONL log, manifests and advisory
// locks.
package fsstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

// FileOptions sets permissions for created directories and files. Zero
// values mean owner-only access.
type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func (o FileOptions) normalized() FileOptions {
	if o.DirPerm == 0 {
		o.DirPerm = defaultDirPerm
	}
	if o.FilePerm == 0 {
		o.FilePerm = defaultFilePerm
	}
	return o
}

func cleanPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

func EnsureDir(path string, perm os.FileMode) error {
	dir, err := cleanPath(path)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("fsstore: mkdir %s: %w", dir, err)
	}
	return nil
}

// ReadFile returns the file content. A missing file is (nil, false, nil).
func ReadFile(path string) ([]byte, bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fsstore: read %s: %w", p, err)
	}
	return data, true, nil
}

// WriteFileAtomic replaces path with data. Readers see either the old or the
// new content, never a torn write.
func WriteFileAtomic(path string, data []byte, opts FileOptions) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	opts = opts.normalized()
	dir := filepath.Dir(p)
	if err := EnsureDir(dir, opts.DirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: create temp: %v", ErrAtomicWriteFailed, p, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	steps := []struct {
		name string
		run  func() error
	}{
		{"write", func() error { _, err := tmp.Write(data); return err }},
		{"chmod", func() error { return tmp.Chmod(opts.FilePerm) }},
		{"sync", tmp.Sync},
		{"close", tmp.Close},
		{"rename", func() error { return os.Rename(tmpPath, p) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%w: %s: %s: %v", ErrAtomicWriteFailed, p, step.name, err)
		}
	}
	committed = true

	// The rename is only durable once the directory entry is flushed.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// ReadJSON decodes path into out. Missing and blank files report false with
// no error; undecodable content reports ErrDecodeFailed.
func ReadJSON(path string, out any) (bool, error) {
	data, ok, err := ReadFile(path)
	if err != nil || !ok {
		return false, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, filepath.Clean(path), err)
	}
	return true, nil
}

// WriteJSONAtomic writes v as indented JSON followed by a newline.
func WriteJSONAtomic(path string, v any, opts FileOptions) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncodeFailed, filepath.Clean(path), err)
	}
	return WriteFileAtomic(path, append(data, '\n'), opts)
}

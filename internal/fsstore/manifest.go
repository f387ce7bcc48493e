package fsstore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

const manifestVersion = 1

// ManifestEntry describes one file or one snapshot listed in a manifest.
type ManifestEntry struct {
	Name      string    `json:"name"`
	SHA256    string    `json:"sha256,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Files     int       `json:"files,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Manifest struct {
	Version int                      `json:"version"`
	Entries map[string]ManifestEntry `json:"entries"`
}

func NewManifest() Manifest {
	return Manifest{Version: manifestVersion, Entries: map[string]ManifestEntry{}}
}

func ReadManifest(path string) (Manifest, bool, error) {
	m := NewManifest()
	ok, err := ReadJSON(path, &m)
	if err != nil || !ok {
		return NewManifest(), false, err
	}
	if m.Version == 0 {
		m.Version = manifestVersion
	}
	if m.Entries == nil {
		m.Entries = map[string]ManifestEntry{}
	}
	return m, true, nil
}

func WriteManifestAtomic(path string, m Manifest, opts FileOptions) error {
	if m.Version == 0 {
		m.Version = manifestVersion
	}
	if m.Entries == nil {
		m.Entries = map[string]ManifestEntry{}
	}
	return WriteJSONAtomic(path, m, opts)
}

// UpdateManifest runs a read-modify-write of the manifest at path while
// holding lockKey under the manifest's directory, so concurrent processes
// never lose each other's entries.
func UpdateManifest(ctx context.Context, path, lockKey string, opts FileOptions, fn func(*Manifest) error) error {
	if fn == nil {
		return fmt.Errorf("fsstore: update manifest: nil mutator")
	}
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	lockPath, err := LockPathFor(filepath.Dir(p), lockKey)
	if err != nil {
		return err
	}
	return WithLock(ctx, lockPath, func() error {
		m, _, err := ReadManifest(p)
		if err != nil {
			return err
		}
		if err := fn(&m); err != nil {
			return err
		}
		return WriteManifestAtomic(p, m, opts)
	})
}

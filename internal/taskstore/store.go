// Package taskstore persists delayed-task records, one JSON file per
// collection, rewritten atomically on every mutation.
package taskstore

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/pbot/internal/fsstore"
)

const collectionFileVersion = 1

type collectionFile struct {
	Version int               `json:"version"`
	Records map[string]Record `json:"records"`
}

type Options struct {
	FileOptions fsstore.FileOptions
	Logger      *slog.Logger
	Now         func() time.Time
}

// Store is safe for concurrent use. A single mutex serializes every
// load-modify-write cycle; reads go through a cache that is replaced or
// dropped inside the same critical section as the write.
type Store struct {
	dir    string
	opts   fsstore.FileOptions
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[Collection]map[string]Record
	stats *Stats
}

func New(dir string, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		dir:    strings.TrimSpace(dir),
		opts:   opts.FileOptions,
		logger: logger,
		now:    now,
		cache:  map[Collection]map[string]Record{},
	}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Path(c Collection) string {
	return filepath.Join(s.dir, c.FileName())
}

// Save upserts rec into the collection chosen by its kind.
func (s *Store) Save(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	c, err := rec.Collection()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(c, func(records map[string]Record) bool {
		records[rec.ID] = rec
		return true
	})
}

func (s *Store) Get(c Collection, id string) (Record, bool) {
	if !c.Valid() {
		return Record{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.loadLocked(c)[id]
	return rec, ok
}

// All returns the records of c ordered by creation time, then id.
func (s *Store) All(c Collection) []Record {
	if !c.Valid() {
		return nil
	}
	s.mu.Lock()
	records := s.loadLocked(c)
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Remove deletes id from c and reports whether it existed.
func (s *Store) Remove(c Collection, id string) (bool, error) {
	if !c.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := false
	err := s.mutateLocked(c, func(records map[string]Record) bool {
		if _, ok := records[id]; !ok {
			return false
		}
		existed = true
		delete(records, id)
		return true
	})
	return existed, err
}

// RemoveIDs deletes every listed id from c in one write and returns how many
// of them existed. Records not listed are left alone.
func (s *Store) RemoveIDs(c Collection, ids []string) (int, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	err := s.mutateLocked(c, func(records map[string]Record) bool {
		for _, id := range ids {
			if _, ok := records[id]; ok {
				delete(records, id)
				n++
			}
		}
		return n > 0
	})
	return n, err
}

// Clear empties c and returns how many records were dropped.
func (s *Store) Clear(c Collection) (int, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	err := s.mutateLocked(c, func(records map[string]Record) bool {
		n = len(records)
		for id := range records {
			delete(records, id)
		}
		return true
	})
	return n, err
}

func (s *Store) loadLocked(c Collection) map[string]Record {
	if records, ok := s.cache[c]; ok {
		return records
	}
	var file collectionFile
	path := s.Path(c)
	ok, err := fsstore.ReadJSON(path, &file)
	if err != nil {
		s.logger.Warn("taskstore_collection_corrupt", "collection", string(c), "path", path, "error", err.Error())
	}
	records := map[string]Record{}
	if ok && err == nil {
		for id, rec := range file.Records {
			if rec.ID == "" {
				rec.ID = id
			}
			records[id] = rec
		}
	}
	s.cache[c] = records
	return records
}

// mutateLocked applies fn to a copy of the collection and persists the copy.
// The cache takes the copy only when the write succeeds; on failure the
// cache entry is dropped so the next read reflects the file.
func (s *Store) mutateLocked(c Collection, fn func(map[string]Record) bool) error {
	current := s.loadLocked(c)
	next := make(map[string]Record, len(current)+1)
	for id, rec := range current {
		next[id] = rec
	}
	if !fn(next) {
		return nil
	}
	err := fsstore.WriteJSONAtomic(s.Path(c), collectionFile{
		Version: collectionFileVersion,
		Records: next,
	}, s.opts)
	if err != nil {
		delete(s.cache, c)
		return fmt.Errorf("taskstore write %s: %w", c, err)
	}
	s.cache[c] = next
	return nil
}

package taskstore

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quailyquaily/pbot/internal/fsstore"
)

const (
	CounterTimersCreated    = "timers_created"
	CounterAlarmsCreated    = "alarms_created"
	CounterRemindersCreated = "reminders_created"
	CounterMentionsCreated  = "mentions_created"
	CounterSpamCreated      = "spam_created"
)

type Stats struct {
	CommandsUsed    map[string]int64 `json:"commands_used" yaml:"commands_used"`
	TotalCommands   int64            `json:"total_commands" yaml:"total_commands"`
	LastCommandTime *time.Time       `json:"last_command_time,omitempty" yaml:"last_command_time,omitempty"`
	Counters        map[string]int64 `json:"counters" yaml:"counters"`
}

type CommandUsage struct {
	Command string `json:"command" yaml:"command"`
	Count   int64  `json:"count" yaml:"count"`
}

// TopCommands returns up to n commands ordered by use count, then name.
func (s Stats) TopCommands(n int) []CommandUsage {
	out := make([]CommandUsage, 0, len(s.CommandsUsed))
	for cmd, count := range s.CommandsUsed {
		out = append(out, CommandUsage{Command: cmd, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Command < out[j].Command
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (s Stats) clone() Stats {
	out := Stats{
		CommandsUsed:  make(map[string]int64, len(s.CommandsUsed)),
		TotalCommands: s.TotalCommands,
		Counters:      make(map[string]int64, len(s.Counters)),
	}
	for k, v := range s.CommandsUsed {
		out.CommandsUsed[k] = v
	}
	for k, v := range s.Counters {
		out.Counters[k] = v
	}
	if s.LastCommandTime != nil {
		t := *s.LastCommandTime
		out.LastCommandTime = &t
	}
	return out
}

func (s *Store) StatsPath() string {
	return filepath.Join(s.dir, statsFileName)
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadStatsLocked().clone()
}

func (s *Store) IncrementCounter(name string) error {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateStatsLocked(func(st *Stats) {
		st.Counters[name]++
	})
}

// IncrementCommandUsage bumps the per-command count, the total, and the last
// command time.
func (s *Store) IncrementCommandUsage(command string) error {
	command = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(command)), "/")
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	return s.mutateStatsLocked(func(st *Stats) {
		st.CommandsUsed[command]++
		st.TotalCommands++
		st.LastCommandTime = &now
	})
}

func (s *Store) loadStatsLocked() Stats {
	if s.stats != nil {
		return *s.stats
	}
	var st Stats
	path := s.StatsPath()
	ok, err := fsstore.ReadJSON(path, &st)
	if err != nil {
		s.logger.Warn("taskstore_collection_corrupt", "collection", "stats", "path", path, "error", err.Error())
	}
	if !ok || err != nil {
		st = Stats{}
	}
	if st.CommandsUsed == nil {
		st.CommandsUsed = map[string]int64{}
	}
	if st.Counters == nil {
		st.Counters = map[string]int64{}
	}
	s.stats = &st
	return st
}

func (s *Store) mutateStatsLocked(fn func(*Stats)) error {
	next := s.loadStatsLocked().clone()
	fn(&next)
	if err := fsstore.WriteJSONAtomic(s.StatsPath(), next, s.opts); err != nil {
		s.stats = nil
		return err
	}
	s.stats = &next
	return nil
}

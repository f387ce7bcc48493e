// Package statepaths resolves on-disk locations under file_state_dir.
package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultStateDir  = "~/.pbot"
	defaultDataDir   = "data"
	backupsDirName   = "backups"
	journalFileName  = "events.jsonl"
	runLockKey       = "pbot.run"
	fallbackStateDir = ".pbot"
)

// FileStateDir is file_state_dir with a leading ~ expanded.
func FileStateDir() string {
	return resolveStateDir(viper.GetString("file_state_dir"))
}

// DataDir holds the task collections and stats.json.
func DataDir() string {
	return resolveChildDir(FileStateDir(), viper.GetString("store.dir_name"), defaultDataDir)
}

func BackupsDir() string {
	return filepath.Join(FileStateDir(), backupsDirName)
}

func JournalPath() string {
	return filepath.Join(FileStateDir(), journalFileName)
}

// RunLockKey names the lock held by a running bot.
func RunLockKey() string {
	return runLockKey
}

func resolveStateDir(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = defaultStateDir
	}
	return filepath.Clean(expandHomePath(raw))
}

func resolveChildDir(stateDir, name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	name = expandHomePath(name)
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(stateDir, name)
}

func expandHomePath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		if p == "~" {
			return fallbackStateDir
		}
		return filepath.Join(fallbackStateDir, strings.TrimPrefix(p, "~/"))
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~/"))
}

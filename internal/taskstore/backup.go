package taskstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/quailyquaily/pbot/internal/fsstore"
)

const (
	backupManifestName = "index.json"
	backupLockKey      = "index.backups"
)

type BackupResult struct {
	Name  string   `json:"name" yaml:"name"`
	Dir   string   `json:"dir" yaml:"dir"`
	Files []string `json:"files" yaml:"files"`
}

// Backup copies every collection file that exists into a new timestamped
// directory under backupsDir. Each backup carries its own manifest, and the
// catalog at backupsDir/index.json lists every backup taken.
func (s *Store) Backup(ctx context.Context, backupsDir string) (BackupResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	now := s.now().UTC()
	name, dest, err := nextBackupDir(backupsDir, now.Format("20060102T150405Z"))
	if err != nil {
		return BackupResult{}, err
	}

	manifest := fsstore.NewManifest()
	result := BackupResult{Name: name, Dir: dest}

	fileNames := make([]string, 0, len(Collections())+1)
	for _, c := range Collections() {
		fileNames = append(fileNames, c.FileName())
	}
	fileNames = append(fileNames, statsFileName)

	// Hold the store lock so the snapshot is consistent across collections.
	s.mu.Lock()
	for _, fileName := range fileNames {
		content, ok, err := fsstore.ReadFile(filepath.Join(s.dir, fileName))
		if err != nil {
			s.mu.Unlock()
			return BackupResult{}, err
		}
		if !ok {
			continue
		}
		if err := fsstore.WriteFileAtomic(filepath.Join(dest, fileName), content, s.opts); err != nil {
			s.mu.Unlock()
			return BackupResult{}, err
		}
		sum := sha256.Sum256(content)
		manifest.Entries[fileName] = fsstore.ManifestEntry{
			Name:      fileName,
			SHA256:    hex.EncodeToString(sum[:]),
			Size:      int64(len(content)),
			CreatedAt: now,
		}
		result.Files = append(result.Files, fileName)
	}
	s.mu.Unlock()

	if err := fsstore.EnsureDir(dest, s.opts.DirPerm); err != nil {
		return BackupResult{}, err
	}
	if err := fsstore.WriteManifestAtomic(filepath.Join(dest, backupManifestName), manifest, s.opts); err != nil {
		return BackupResult{}, err
	}

	err = fsstore.UpdateManifest(ctx, filepath.Join(backupsDir, backupManifestName), backupLockKey, s.opts, func(catalog *fsstore.Manifest) error {
		catalog.Entries[name] = fsstore.ManifestEntry{
			Name:      name,
			Files:     len(result.Files),
			CreatedAt: now,
		}
		return nil
	})
	if err != nil {
		return BackupResult{}, fmt.Errorf("update backup catalog: %w", err)
	}

	s.logger.Info("taskstore_backup_created", "name", name, "dir", dest, "files", len(result.Files))
	return result, nil
}

func nextBackupDir(backupsDir, base string) (string, string, error) {
	name := base
	for i := 1; ; i++ {
		dest := filepath.Join(backupsDir, name)
		_, err := os.Stat(dest)
		if errors.Is(err, os.ErrNotExist) {
			return name, dest, nil
		}
		if err != nil {
			return "", "", err
		}
		name = base + "." + strconv.Itoa(i)
	}
}

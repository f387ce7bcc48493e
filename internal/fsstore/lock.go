package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	lockDirName   = ".fslocks"
	lockSuffix    = ".lck"
	lockKeyMaxLen = 120
	lockRetryWait = 25 * time.Millisecond
)

// Lowercase dot-separated words, e.g. "pbot.run" or "index.backups".
var lockKeyRE = regexp.MustCompile(`^[a-z0-9_-]+(\.[a-z0-9_-]+)*$`)

// LockOwner is written into the lock file by whoever holds it. The file
// outlives the lock, so it describes the last holder.
type LockOwner struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (o LockOwner) String() string {
	return fmt.Sprintf("pid %d on %s since %s", o.PID, o.Hostname, o.AcquiredAt.Format(time.RFC3339))
}

// LockPathFor returns <stateDir>/.fslocks/<key>.lck.
func LockPathFor(stateDir, key string) (string, error) {
	dir, err := cleanPath(stateDir)
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if len(key) > lockKeyMaxLen || !lockKeyRE.MatchString(key) {
		return "", fmt.Errorf("%w: lock key %q", ErrInvalidPath, key)
	}
	return filepath.Join(dir, lockDirName, key+lockSuffix), nil
}

// WithLock runs fn while holding an exclusive advisory lock on lockPath.
// While another holder has it, WithLock polls until ctx is done and then
// fails with ErrLockTimeout.
func WithLock(ctx context.Context, lockPath string, fn func() error) error {
	p, err := cleanPath(lockPath)
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureDir(filepath.Dir(p), defaultDirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLockUnavailable, p, err)
	}
	defer f.Close()

	for {
		acquired, err := tryLock(f)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrLockUnavailable, p, err)
		}
		if acquired {
			break
		}
		if err := waitLockRetry(ctx, p); err != nil {
			return err
		}
	}
	defer unlock(f)

	recordOwner(f)
	return fn()
}

func ReadLockOwner(lockPath string) (LockOwner, bool, error) {
	var owner LockOwner
	ok, err := ReadJSON(lockPath, &owner)
	if err != nil || !ok {
		return LockOwner{}, false, err
	}
	return owner, true, nil
}

func waitLockRetry(ctx context.Context, lockPath string) error {
	t := time.NewTimer(lockRetryWait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
	}
	if owner, ok, _ := ReadLockOwner(lockPath); ok {
		return fmt.Errorf("%w: %s held by %s", ErrLockTimeout, lockPath, owner)
	}
	return fmt.Errorf("%w: %s: %v", ErrLockTimeout, lockPath, ctx.Err())
}

func recordOwner(f *os.File) {
	host, _ := os.Hostname()
	data, err := json.Marshal(LockOwner{PID: os.Getpid(), Hostname: host, AcquiredAt: time.Now().UTC()})
	if err != nil {
		return
	}
	if err := f.Truncate(0); err != nil {
		return
	}
	_, _ = f.WriteAt(append(data, '\n'), 0)
	_ = f.Sync()
}

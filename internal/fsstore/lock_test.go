package fsstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestWithLockRecordsOwner(t *testing.T) {
	t.Parallel()

	lockPath, err := LockPathFor(t.TempDir(), "pbot.run")
	if err != nil {
		t.Fatalf("LockPathFor() error = %v", err)
	}

	called := false
	if err := WithLock(context.Background(), lockPath, func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
	if !called {
		t.Fatalf("WithLock() did not run critical section")
	}

	owner, ok, err := ReadLockOwner(lockPath)
	if err != nil || !ok {
		t.Fatalf("ReadLockOwner() ok=%v error = %v", ok, err)
	}
	if owner.PID != os.Getpid() || owner.AcquiredAt.IsZero() {
		t.Fatalf("ReadLockOwner() = %+v", owner)
	}
}

func TestWithLockTimesOutWhileHeld(t *testing.T) {
	t.Parallel()

	lockPath, err := LockPathFor(t.TempDir(), "pbot.run")
	if err != nil {
		t.Fatalf("LockPathFor() error = %v", err)
	}

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- WithLock(context.Background(), lockPath, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	entered := false
	err = WithLock(ctx, lockPath, func() error {
		entered = true
		return nil
	})
	if entered {
		t.Fatalf("second holder entered critical section")
	}
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("WithLock() error = %v, want ErrLockTimeout", err)
	}
	if !strings.Contains(err.Error(), "held by pid") {
		t.Fatalf("WithLock() error = %v, want holder description", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first WithLock() error = %v", err)
	}
}

func TestWithLockPropagatesError(t *testing.T) {
	t.Parallel()

	lockPath, err := LockPathFor(t.TempDir(), "index.backups")
	if err != nil {
		t.Fatalf("LockPathFor() error = %v", err)
	}
	boom := errors.New("boom")
	if err := WithLock(context.Background(), lockPath, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("WithLock() error = %v, want boom", err)
	}
	// Released after fn returns.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WithLock(ctx, lockPath, func() error { return nil }); err != nil {
		t.Fatalf("WithLock() after release error = %v", err)
	}
}

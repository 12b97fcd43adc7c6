package fsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// WriteFileAtomic writes data to path via a temp file in the same
// directory followed by a rename. Readers never observe a partial write.
// Parent directories are created as needed.
func WriteFileAtomic(fs FS, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := fs.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}

// lockWait is the bounded wait for an advisory file lock. Contention
// beyond this is treated as "proceed anyway": the write itself is still
// temp+rename, so the last writer wins and readers never see a torn file.
const lockWait = 2 * time.Second

// lockRetry is the polling interval while waiting for a contended lock.
const lockRetry = 50 * time.Millisecond

// WithFileLock runs fn while holding an advisory flock on path + ".lock".
// The wait is bounded by lockWait; on timeout fn runs anyway. Advisory
// locking here only narrows the write-write race window, it does not
// serialize external writers that skip the lock.
func WithFileLock(path string, fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockWait)
	defer cancel()

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err == nil && locked {
		defer func() { _ = fl.Unlock() }()
	}
	return fn()
}

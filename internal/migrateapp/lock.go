package migrateapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrRunLocked is returned when another process holds the run lock.
var ErrRunLocked = errors.New("another migration run holds the lock")

const lockRetryInterval = 250 * time.Millisecond

// acquireRunLock takes the exclusive run lock at path. With a zero timeout
// it fails immediately when the lock is held.
func acquireRunLock(ctx context.Context, path string, timeout time.Duration) (*flock.Flock, error) {
	fileLock := flock.New(path)

	var locked bool
	var err error
	if timeout > 0 {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		locked, err = fileLock.TryLockContext(lockCtx, lockRetryInterval)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	} else {
		locked, err = fileLock.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock %q: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrRunLocked, path)
	}
	return fileLock, nil
}

// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Lock when another process holds the lock.
var ErrLocked = errors.New("snapshot: file is open in another process")

// FileLock is an exclusive advisory lock on a snapshot path.
type FileLock struct {
	file *os.File
}

// Lock takes a non-blocking exclusive flock on path + ".lock". The
// sidecar is used because Save replaces the snapshot file itself by
// rename, which would orphan a lock held on the old inode.
func Lock(path string) (*FileLock, error) {
	file, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("snapshot: locking %s: %w", path, err)
	}
	return &FileLock{file: file}, nil
}

// Unlock releases the lock. Idempotent.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil
	unlockErr := unix.Flock(int(file.Fd()), unix.LOCK_UN)
	closeErr := file.Close()
	return errors.Join(unlockErr, closeErr)
}

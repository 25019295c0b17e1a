// lock.go -- exclusive lock on a changes directory
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package hashdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const _LockFile = ".lock"

// dirLock is an advisory flock(2) on a file inside the changes dir. Only
// one process may append to or merge the change logs at a time.
type dirLock struct {
	fd *os.File
}

// lockDir creates 'dir' if needed and takes the lock without waiting
func lockDir(dir string) (*dirLock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	fn := filepath.Join(dir, _LockFile)
	fd, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(fd.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fd.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
		}
		return nil, fmt.Errorf("%s: flock: %w", fn, err)
	}
	return &dirLock{fd: fd}, nil
}

func (l *dirLock) unlock() error {
	unix.Flock(int(l.fd.Fd()), unix.LOCK_UN)
	return l.fd.Close()
}

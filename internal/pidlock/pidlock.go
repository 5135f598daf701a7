// Package pidlock implements the single-instance pidfile lock (§5): a
// non-blocking flock on a well-known path, failing fast if another
// instance already holds it. Grounded on the same golang.org/x/sys/unix
// syscall style as internal/gpio's cdev backend and internal/watchdog.
package pidlock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// searchDirs is tried in order (§5: "in /run, /var/run, or /tmp").
var searchDirs = []string{"/run", "/var/run", "/tmp"}

// Lock holds an acquired pidfile lock. Release drops it.
type Lock struct {
	file *os.File
	path string
}

// Acquire tries each of searchDirs in turn for name (typically
// "divinus-camerad.pid"), taking a LOCK_EX|LOCK_NB flock on the first
// writable directory. Returns an error if every directory is unwritable or
// another instance already holds the lock in the first writable one.
func Acquire(name string) (*Lock, error) {
	var lastErr error
	for _, dir := range searchDirs {
		if err := unix.Access(dir, unix.W_OK); err != nil {
			lastErr = err
			continue
		}
		path := dir + "/" + name
		lock, err := acquireAt(path)
		if err != nil {
			return nil, err
		}
		return lock, nil
	}
	return nil, fmt.Errorf("pidlock: no writable directory among %v: %w", searchDirs, lastErr)
}

func acquireAt(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("pidlock: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("pidlock: %s held by another instance", path)
		}
		return nil, fmt.Errorf("pidlock: flock %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("pidlock: truncate %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("pidlock: write pid to %s: %w", path, err)
	}

	return &Lock{file: f, path: path}, nil
}

// Release drops the flock, closes, and removes the pidfile.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	_ = os.Remove(l.path)
	return err
}

// Path returns the acquired pidfile's absolute path.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

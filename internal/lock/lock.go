// Package lock keeps two scheduled runs from overlapping.
//
// The lock is a file holding the owner's PID. A lock whose PID no longer
// names a live process is stale and is taken over.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sentinel errors.
var (
	// ErrHeld indicates another live process owns the lock.
	ErrHeld = errors.New("lock: held by another process")
	// ErrNotOwner indicates the lock file belongs to a different process.
	ErrNotOwner = errors.New("lock: owned by another process")
)

// Lock is a PID-stamped lock file.
type Lock struct {
	path   string
	pid    int
	logger *slog.Logger

	// processRunning reports whether pid names a live process.
	processRunning func(pid int) bool
}

// New returns a lock at path owned by the current process. The lock is not
// taken until Acquire is called.
func New(path string, logger *slog.Logger) *Lock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lock{
		path:           path,
		pid:            os.Getpid(),
		logger:         logger,
		processRunning: processRunning,
	}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock. It returns an error wrapping ErrHeld if a live
// process already holds it. Stale and unreadable lock files are removed.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("lock: create directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(l.pid))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(l.path)
				return fmt.Errorf("lock: write pid: %w", errors.Join(werr, cerr))
			}
			l.logger.Debug("lock acquired", slog.String("path", l.path), slog.Int("pid", l.pid))
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("lock: create %s: %w", l.path, err)
		}

		pid, perr := l.readPID()
		switch {
		case perr != nil:
			l.logger.Warn("invalid lock file, removing",
				slog.String("path", l.path),
				slog.String("error", perr.Error()),
			)
		case l.processRunning(pid):
			l.logger.Warn("another instance is running", slog.Int("pid", pid))
			return fmt.Errorf("%w (pid %d)", ErrHeld, pid)
		default:
			l.logger.Info("stale lock file found, removing", slog.Int("pid", pid))
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("lock: remove stale %s: %w", l.path, err)
		}
	}
	return fmt.Errorf("%w: lost race for %s", ErrHeld, l.path)
}

// Release removes the lock file if this process owns it. A missing lock
// file is not an error.
func (l *Lock) Release() error {
	pid, err := l.readPID()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("lock: release: %w", err)
	}
	if pid != l.pid {
		l.logger.Warn("lock file belongs to different process, not removing", slog.Int("pid", pid))
		return fmt.Errorf("%w (pid %d)", ErrNotOwner, pid)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("lock: release: %w", err)
	}
	l.logger.Debug("lock released", slog.String("path", l.path))
	return nil
}

func (l *Lock) readPID() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return pid, nil
}

//go:build unix

package lock

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processRunning checks pid with signal 0. EPERM means the process exists
// but belongs to another user.
func processRunning(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

//go:build unix

package tools

import (
	"errors"
	"syscall"
)

// isProcessRunning sends signal 0, which only checks that pid can be signalled
func isProcessRunning(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// Exists, owned by someone else
		return true
	default:
		// ESRCH or anything unexpected
		return false
	}
}

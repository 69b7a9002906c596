package tools

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockFile      = "index.lock"
	lockTimeout   = 5 * time.Second // Max time to wait for lock
	lockRetryWait = 500 * time.Millisecond
)

// indexLock is a PID lock file that serialises index builds across processes
// sharing one index directory
type indexLock struct {
	path    string
	timeout time.Duration
}

func newIndexLock(dir string) *indexLock {
	return &indexLock{
		path:    filepath.Join(dir, lockFile),
		timeout: lockTimeout,
	}
}

// isProcessRunning is implemented in platform-specific files:
// - lock_unix.go for Unix/Linux/macOS
// - lock_windows.go for Windows

// cleanStale removes the lock file if the owning process is dead
func (l *indexLock) cleanStale() error {
	// Read lock file
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No lock file, nothing to clean
		}
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	// Parse PID
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// Corrupted lock file, remove it
		log.Printf("Warning: Corrupted lock file (invalid PID), removing...")
		return os.Remove(l.path)
	}

	// Check if process is running
	if isProcessRunning(pid) {
		return fmt.Errorf("lock held by running process %d", pid)
	}

	// Process is dead, remove stale lock
	log.Printf("Stale lock detected (PID %d not running), cleaning...", pid)
	return os.Remove(l.path)
}

// acquire takes the lock, waiting up to the timeout for another process to release it
func (l *indexLock) acquire() error {
	ourPID := os.Getpid()

	// Re-entrant: a lock already holding our PID is ours
	if data, err := os.ReadFile(l.path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid == ourPID {
			return nil
		}
	}

	startTime := time.Now()
	for {
		// Try to clean stale lock first
		if err := l.cleanStale(); err != nil {
			// Lock is held by active process
			elapsed := time.Since(startTime)
			if elapsed >= l.timeout {
				return fmt.Errorf("timeout waiting for index lock after %v: %w", elapsed, err)
			}

			log.Printf("Index locked by another process, waiting... (%v elapsed)", elapsed.Round(100*time.Millisecond))
			time.Sleep(lockRetryWait)
			continue
		}

		// Try to create lock file with our PID
		if err := os.WriteFile(l.path, []byte(strconv.Itoa(ourPID)), 0644); err != nil {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		log.Printf("✓ Index lock acquired (PID %d)", ourPID)
		return nil
	}
}

// release removes the lock file if this process owns it
func (l *indexLock) release() error {
	// Verify we own the lock before removing
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Lock already removed
		}
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && pid != os.Getpid() {
		log.Printf("Warning: Lock file contains different PID (%d vs %d), not removing", pid, os.Getpid())
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	log.Printf("✓ Index lock released")
	return nil
}

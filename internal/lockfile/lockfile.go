// Package lockfile guards an OracleRouter state directory against a second writer.
//
// The lock is an flock(2) held on a file inside the state directory. The kernel
// drops it when the process exits, so a crashed router never blocks a restart.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "oraclerouter.lock"

// ErrLocked is matched by errors.Is when another process holds the lock.
var ErrLocked = errors.New("state directory is locked by another process")

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID       int
	StartedAt time.Time
	Running   bool
}

func (h Holder) String() string {
	if h.PID <= 0 {
		return "unknown holder"
	}
	state := "not running, stale lock"
	if h.Running {
		state = "running"
	}
	if h.StartedAt.IsZero() {
		return fmt.Sprintf("PID %d (%s)", h.PID, state)
	}
	return fmt.Sprintf("PID %d since %s (%s)", h.PID, h.StartedAt.Format(time.RFC3339), state)
}

// Lock is an acquired state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire takes an exclusive, non-blocking lock on stateDir, creating it if needed.
// When another process holds the lock the returned *LockError reports who.
func Acquire(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	lockPath := filepath.Join(stateDir, LockFileName)

	// Truncating before the flock would erase the current holder's record.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := ReadHolder(lockPath)
		slog.Error("Lock.Acquire: state directory already locked", "path", lockPath, "holder", holder.String())
		return nil, &LockError{Path: lockPath, Holder: holder, Cause: err}
	}

	if err := writeHolder(file); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to record lock holder in %s: %w", lockPath, err)
	}

	slog.Info("Lock.Acquire: state directory locked", "path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

func writeHolder(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	info := fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(info); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Lock.Acquire: failed to sync lock file", "error", err, "path", file.Name())
	}
	return nil
}

// Release unlocks and removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var errs []error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	// Remove while the descriptor is still open so a racing Acquire locks a fresh inode.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	l.file = nil

	if err := errors.Join(errs...); err != nil {
		slog.Error("Lock.Release: release incomplete", "error", err, "path", l.path)
		return err
	}
	slog.Info("Lock.Release: state directory unlocked", "path", l.path)
	return nil
}

// LockError reports a lock held by another process.
type LockError struct {
	Path   string
	Holder Holder
	Cause  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("another OracleRouter instance holds %s (%s); remove the file only if that process is gone",
		e.Path, e.Holder)
}

func (e *LockError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrLocked) match.
func (e *LockError) Is(target error) bool { return target == ErrLocked }

// ReadHolder parses the lock file at path. Missing or malformed files yield a zero Holder.
func ReadHolder(path string) Holder {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}
	}
	h := parseHolder(string(data))
	if h.PID > 0 {
		h.Running = processAlive(h.PID)
	}
	return h
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				h.PID = pid
			}
		case "started":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				h.StartedAt = ts
			}
		}
	}
	return h
}

// processAlive sends signal 0, which only checks for existence.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

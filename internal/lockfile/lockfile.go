// Package lockfile guards a PostPipe data directory against concurrent servers.
//
// The lock is an advisory flock on a file inside the directory. The kernel drops it
// when the holding process exits, so a crashed server never blocks a restart.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the name of the lock file inside the data directory.
const FileName = "postpipe.lock"

// Owner describes the process recorded in a lock file.
type Owner struct {
	PID     int
	Host    string
	Started time.Time
}

func (o Owner) String() string {
	if o.PID == 0 {
		return "unknown process"
	}
	state := "not running, stale lock"
	if processAlive(o.PID) {
		state = "running"
	}
	s := fmt.Sprintf("pid %d (%s)", o.PID, state)
	if o.Host != "" {
		s += " on " + o.Host
	}
	if !o.Started.IsZero() {
		s += " since " + o.Started.Format(time.RFC3339)
	}
	return s
}

// Lock is a held data directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the lock for dir, creating the directory if needed. It fails with a
// *HeldError when another process holds the lock.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, FileName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	// O_TRUNC would wipe the holder's owner record before we know the lock is free.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		owner := readOwner(f)
		f.Close()
		slog.Error("lockfile.Acquire: data directory is locked", "path", path, "owner", owner.String())
		return nil, &HeldError{Path: path, Owner: owner, Err: err}
	}

	host, _ := os.Hostname()
	record := fmt.Sprintf("pid=%d\nhost=%s\nstarted=%s\n", os.Getpid(), host, time.Now().UTC().Format(time.RFC3339))
	if err := writeRecord(f, record); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}

	slog.Info("lockfile.Acquire: lock acquired", "path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

func writeRecord(f *os.File, record string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(record), 0); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("lockfile: sync failed", "error", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock and removes the lock file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before unlocking so a waiting process never sees our stale record.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: failed to remove lock file", "error", err, "path", l.path)
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", l.path, closeErr)
	}
	slog.Info("lockfile.Release: lock released", "path", l.path)
	return nil
}

// HeldError reports that another process holds the lock.
type HeldError struct {
	Path  string
	Owner Owner
	Err   error
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("data directory is locked by %s (lock file %s); if no PostPipe server is running, remove the lock file and retry", e.Owner, e.Path)
}

func (e *HeldError) Unwrap() error { return e.Err }

func readOwner(f *os.File) Owner {
	if _, err := f.Seek(0, 0); err != nil {
		return Owner{}
	}
	return parseOwner(bufio.NewScanner(f))
}

func parseOwner(sc *bufio.Scanner) Owner {
	var o Owner
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(value)
		case "host":
			o.Host = value
		case "started":
			o.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	return o
}

// processAlive reports whether a process with the given PID exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

package lockfile

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if !strings.Contains(string(data), "pid=") {
		t.Errorf("expected an owner record, got %q", data)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("expected the lock file to be removed, got %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("expected a second release to be a no-op, got %v", err)
	}
}

func TestAcquireHeld(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer lock.Release()

	// flock locks belong to the open file description, so a second open in the
	// same process conflicts like another process would.
	_, err = Acquire(dir)
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected a HeldError, got %v", err)
	}
	if held.Owner.PID != os.Getpid() {
		t.Errorf("expected owner pid %d, got %d", os.Getpid(), held.Owner.PID)
	}
	if !strings.Contains(held.Error(), "running") {
		t.Errorf("expected the owner to be reported as running, got %q", held.Error())
	}

	// The failed attempt must not have clobbered the record.
	data, _ := os.ReadFile(lock.Path())
	if !strings.Contains(string(data), "pid=") {
		t.Errorf("expected the owner record to survive, got %q", data)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first.Release()

	second, err := Acquire(dir)
	if err != nil {
		t.Fatalf("expected to reacquire, got %v", err)
	}
	second.Release()
}

func TestParseOwner(t *testing.T) {
	o := parseOwner(bufio.NewScanner(strings.NewReader("pid=42\nhost=box\nstarted=2024-05-01T10:00:00Z\njunk\n")))
	if o.PID != 42 || o.Host != "box" || o.Started.IsZero() {
		t.Errorf("unexpected owner %+v", o)
	}
	if got := (Owner{}).String(); got != "unknown process" {
		t.Errorf("unexpected empty owner string %q", got)
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("expected the current process to be alive")
	}
	if processAlive(0) || processAlive(-1) {
		t.Error("expected invalid pids to be reported dead")
	}
}

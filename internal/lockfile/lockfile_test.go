package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireRecordsHolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, FileName) {
		t.Errorf("unexpected path %s", lock.Path())
	}
	h := ReadHolder(lock.Path())
	if h.PID != os.Getpid() || !h.Running {
		t.Errorf("unexpected holder %+v", h)
	}
	if time.Since(h.Started) > time.Minute {
		t.Errorf("start time not recorded: %v", h.Started)
	}
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	second, err := Acquire(dir)
	if err == nil {
		second.Release()
		t.Fatal("second Acquire should fail")
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected *HeldError, got %T", err)
	}
	if held.Holder.PID != os.Getpid() {
		t.Errorf("holder pid = %d", held.Holder.PID)
	}
	if !strings.Contains(err.Error(), "another reviewbot instance") || !strings.Contains(err.Error(), dir) {
		t.Errorf("unhelpful error: %s", err)
	}

	// The failed attempt must not wipe the holder's info.
	if ReadHolder(first.Path()).PID != os.Getpid() {
		t.Error("lock file contents were clobbered")
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed")
	}

	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	again.Release()
}

func TestStaleLockFileIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("pid=999999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire over stale file: %v", err)
	}
	defer lock.Release()
	if ReadHolder(path).PID != os.Getpid() {
		t.Error("stale holder not replaced")
	}
}

func TestParseHolder(t *testing.T) {
	tests := []struct {
		content string
		pid     int
		started bool
	}{
		{"pid=42\nstarted=2026-01-02T03:04:05Z\n", 42, true},
		{"pid=42", 42, false},
		{"pid=abc\n", 0, false},
		{"pid=-3\n", 0, false},
		{"", 0, false},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		h := parseHolder(tt.content)
		if h.PID != tt.pid || h.Started.IsZero() == tt.started {
			t.Errorf("parseHolder(%q) = %+v", tt.content, h)
		}
	}
}

func TestHolderString(t *testing.T) {
	if got := (Holder{}).String(); got != "unknown process" {
		t.Errorf("got %q", got)
	}
	if got := (Holder{PID: 7}).String(); !strings.Contains(got, "stale") {
		t.Errorf("got %q", got)
	}
	if got := (Holder{PID: 7, Running: true}).String(); got != "PID 7 (running)" {
		t.Errorf("got %q", got)
	}
}

func TestReadHolderMissingFile(t *testing.T) {
	if h := ReadHolder(filepath.Join(t.TempDir(), "nope")); h.PID != 0 {
		t.Errorf("expected zero holder, got %+v", h)
	}
}

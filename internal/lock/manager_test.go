package lock

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"memento/internal/errors"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), ".memento", "lock.json"))
}

func TestLock_MissingFileReportsUnlocked(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	status := m.GetLockStatus()
	if status.Locked {
		t.Fatal("missing file must report unlocked")
	}
}

func TestLock_AcquireThenStatus(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	record, err := m.AcquireLock("2025-11-03T10-22-41Z", 5)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if record.LockedAt == "" {
		t.Fatal("AcquireLock() must stamp lockedAt")
	}

	status := m.GetLockStatus()
	if !status.Locked || status.SessionID != "2025-11-03T10-22-41Z" || status.ItemsRemaining != 5 {
		t.Fatalf("GetLockStatus() = %+v", status)
	}
}

func TestLock_SecondAcquireFails(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	if _, err := m.AcquireLock("s1", 1); err != nil {
		t.Fatal(err)
	}
	_, err := m.AcquireLock("s2", 1)
	if !errors.IsAlreadyLocked(err) {
		t.Fatalf("second acquire error = %v, want AlreadyLocked", err)
	}
}

func TestLock_ClearSemantics(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)

	// Clearing an empty lock is idempotent success.
	if err := m.ClearLock("whatever", false); err != nil {
		t.Fatalf("clear of empty lock: %v", err)
	}

	if _, err := m.AcquireLock("s1", 2); err != nil {
		t.Fatal(err)
	}

	if err := m.ClearLock("s2", false); !errors.IsSessionIDMismatch(err) {
		t.Fatalf("mismatched clear error = %v, want SessionIdMismatch", err)
	}
	if err := m.ClearLock("s1", false); err != nil {
		t.Fatalf("matching clear: %v", err)
	}
	if m.GetLockStatus().Locked {
		t.Fatal("lock still reported held after clear")
	}
}

func TestLock_OverrideClearIgnoresHolder(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	if _, err := m.AcquireLock("s1", 2); err != nil {
		t.Fatal(err)
	}
	if err := m.ClearLock("someone-else", true); err != nil {
		t.Fatalf("override clear: %v", err)
	}
	if m.GetLockStatus().Locked {
		t.Fatal("override clear did not release the lock")
	}
}

func TestLock_UpdatesRequireHeldLock(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	if err := m.UpdateItemsRemaining(3); !errors.IsNotFound(err) {
		t.Fatalf("UpdateItemsRemaining without lock = %v, want NotFound", err)
	}
	if err := m.UpdateResumeState(map[string]any{"screen": "triage"}); !errors.IsNotFound(err) {
		t.Fatalf("UpdateResumeState without lock = %v, want NotFound", err)
	}

	if _, err := m.AcquireLock("s1", 9); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateItemsRemaining(3); err != nil {
		t.Fatal(err)
	}
	if got := m.GetLockStatus().ItemsRemaining; got != 3 {
		t.Fatalf("itemsRemaining = %d, want 3", got)
	}
}

func TestLock_ResumeStateMergesAndStampsActivity(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	if _, err := m.AcquireLock("s1", 1); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateResumeState(map[string]any{"screen": "triage"}); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateResumeState(map[string]any{"cursor": float64(4)}); err != nil {
		t.Fatal(err)
	}

	state := m.GetLockStatus().ResumeState
	if state["screen"] != "triage" {
		t.Fatalf("resume state lost earlier key: %+v", state)
	}
	if state["cursor"] != float64(4) {
		t.Fatalf("resume state missing merged key: %+v", state)
	}
	if _, ok := state["lastActivity"]; !ok {
		t.Fatalf("resume state missing lastActivity: %+v", state)
	}
}

func TestLock_CorruptFileFailsOpenForReads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lock.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if m.GetLockStatus().Locked {
		t.Fatal("corrupt lock file must report unlocked")
	}
}

func TestLock_MutualExclusionUnderConcurrency(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := m.AcquireLock("session", n); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("acquire succeeded %d times, want exactly 1", wins.Load())
	}
}

// Package lock implements the single-slot exclusive lock that gates new
// Launchpad captures until the current session is fully resolved.
package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"memento/internal/errors"
	"memento/internal/logging"
)

// Record is the one lock record that may exist at a time.
type Record struct {
	SessionID      string         `json:"sessionId"`
	LockedAt       string         `json:"lockedAt"`
	ItemsRemaining int            `json:"itemsRemaining"`
	ResumeState    map[string]any `json:"resumeState,omitempty"`
}

// Status is the read-side projection of the lock.
type Status struct {
	Locked         bool           `json:"locked"`
	SessionID      string         `json:"sessionId,omitempty"`
	LockedAt       string         `json:"lockedAt,omitempty"`
	ItemsRemaining int            `json:"itemsRemaining"`
	ResumeState    map[string]any `json:"resumeState,omitempty"`
}

// Manager serializes all access to the lock file. The record itself is the
// lock for Launchpad captures; the mutex only protects the file.
type Manager struct {
	path   string
	mu     sync.Mutex
	logger logging.Logger
}

// NewManager stores the lock at the given file path, creating the parent
// directory if needed.
func NewManager(path string) *Manager {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	return &Manager{
		path:   path,
		logger: logging.NewComponentLogger("LockManager"),
	}
}

func (m *Manager) read() (*Record, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IOf(err, "read lock file")
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.IOf(err, "decode lock file")
	}
	return &record, nil
}

func (m *Manager) write(record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.IOf(err, "encode lock record")
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.IOf(err, "write lock file")
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return errors.IOf(err, "publish lock file")
	}
	return nil
}

// GetLockStatus reports the current lock. A missing file means unlocked;
// read errors also report unlocked (fail-open for reads).
func (m *Manager) GetLockStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, err := m.read()
	if err != nil {
		m.logger.Warn("Lock status read failed, reporting unlocked: %v", err)
		return Status{Locked: false}
	}
	if record == nil {
		return Status{Locked: false}
	}
	return Status{
		Locked:         true,
		SessionID:      record.SessionID,
		LockedAt:       record.LockedAt,
		ItemsRemaining: record.ItemsRemaining,
		ResumeState:    record.ResumeState,
	}
}

// AcquireLock takes the single slot. A second acquire fails with
// AlreadyLocked naming the current holder.
func (m *Manager) AcquireLock(sessionID string, itemsRemaining int) (*Record, error) {
	if sessionID == "" {
		return nil, errors.InvalidArgumentf("session id is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.read()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.AlreadyLockedf("launchpad is locked by session %s", existing.SessionID)
	}

	record := &Record{
		SessionID:      sessionID,
		LockedAt:       time.Now().UTC().Format(time.RFC3339),
		ItemsRemaining: itemsRemaining,
	}
	if err := m.write(record); err != nil {
		return nil, err
	}
	m.logger.Info("Lock acquired by session %s (%d items remaining)", sessionID, itemsRemaining)
	return record, nil
}

// ClearLock releases the slot. Clearing an empty lock is idempotent success.
// Without override the caller must present the holder's session id.
func (m *Manager) ClearLock(sessionID string, override bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.read()
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if !override && existing.SessionID != sessionID {
		return errors.SessionIDMismatchf("lock is held by session %s, not %s", existing.SessionID, sessionID)
	}

	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return errors.IOf(err, "remove lock file")
	}
	m.logger.Info("Lock cleared (holder %s, override=%v)", existing.SessionID, override)
	return nil
}

// UpdateItemsRemaining rewrites the remaining-items counter on the held lock.
func (m *Manager) UpdateItemsRemaining(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.read()
	if err != nil {
		return err
	}
	if existing == nil {
		return errors.NotFoundf("no lock is held")
	}
	existing.ItemsRemaining = n
	return m.write(existing)
}

// UpdateResumeState merges partial resume state into the held lock and stamps
// lastActivity.
func (m *Manager) UpdateResumeState(partial map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.read()
	if err != nil {
		return err
	}
	if existing == nil {
		return errors.NotFoundf("no lock is held")
	}
	if existing.ResumeState == nil {
		existing.ResumeState = make(map[string]any)
	}
	for k, v := range partial {
		existing.ResumeState[k] = v
	}
	existing.ResumeState["lastActivity"] = time.Now().UTC().Format(time.RFC3339)
	return m.write(existing)
}

package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"memento/internal/errors"
)

// CreateEffort records a user-named grouping of items within a session. Items
// keep the category they had at creation time.
func (s *Store) CreateEffort(sessionID, name string, items []EffortItem) (*Effort, error) {
	if name == "" {
		return nil, errors.InvalidArgumentf("effort name is empty")
	}
	if len(items) == 0 {
		return nil, errors.InvalidArgumentf("effort has no items")
	}
	for i, item := range items {
		if item.ItemID == "" {
			return nil, errors.InvalidArgumentf("effort item %d has no itemId", i)
		}
	}

	mu := s.sessionMutex(sessionID)
	mu.Lock()
	defer mu.Unlock()

	artifact, err := s.readDisk(sessionID)
	if err != nil {
		return nil, err
	}

	// Fill in the current category for items the caller left blank.
	for i := range items {
		if items[i].Category != "" {
			continue
		}
		if ref, ok := artifact.FindItem(items[i].ItemID); ok {
			items[i].Category = ref.Category
		}
	}

	now := time.Now()
	effort := Effort{
		ID:        fmt.Sprintf("effort-%d-%s", now.UnixMilli(), uuid.New().String()[:8]),
		Name:      name,
		Items:     items,
		Status:    EffortPending,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
	artifact.Efforts = append(artifact.Efforts, effort)
	if err := s.writeArtifact(sessionID, artifact); err != nil {
		return nil, err
	}
	s.logger.Info("Created effort %s (%q, %d items) in session %s", effort.ID, name, len(items), sessionID)
	return &effort, nil
}

// CompleteEffort transitions a pending effort to completed and emits a batch
// complete disposition for every item in it.
func (s *Store) CompleteEffort(sessionID, effortID string) (*Effort, error) {
	return s.resolveEffort(sessionID, effortID, EffortCompleted, ActionComplete)
}

// DeferEffort transitions a pending effort to deferred and emits a batch
// later disposition for every item in it.
func (s *Store) DeferEffort(sessionID, effortID string) (*Effort, error) {
	return s.resolveEffort(sessionID, effortID, EffortDeferred, ActionLater)
}

func (s *Store) resolveEffort(sessionID, effortID, toStatus, action string) (*Effort, error) {
	mu := s.sessionMutex(sessionID)
	mu.Lock()
	defer mu.Unlock()

	artifact, err := s.readDisk(sessionID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range artifact.Efforts {
		if artifact.Efforts[i].ID == effortID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.NotFoundf("effort not found: %s", effortID)
	}
	effort := &artifact.Efforts[idx]
	if effort.Status != EffortPending {
		return nil, errors.PreconditionFailedf("effort %s is %s, not pending", effortID, effort.Status)
	}

	now := time.Now()
	at := now.UTC().Format(time.RFC3339)
	effort.Status = toStatus
	switch toStatus {
	case EffortCompleted:
		effort.CompletedAt = at
	case EffortDeferred:
		effort.DeferredAt = at
	}

	// Batch disposition write-through, same timestamp across all items.
	for _, item := range effort.Items {
		artifact.Dispositions = append(artifact.Dispositions,
			stampDisposition(Disposition{Action: action, ItemID: item.ItemID}, now, true))
	}

	if err := s.writeArtifact(sessionID, artifact); err != nil {
		return nil, err
	}
	s.logger.Info("Effort %s resolved to %s (%d items) in session %s", effortID, toStatus, len(effort.Items), sessionID)
	result := *effort
	return &result, nil
}

// EffortStats summarizes the efforts recorded in a session.
type EffortStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Completed  int `json:"completed"`
	Deferred   int `json:"deferred"`
	TotalItems int `json:"totalItems"`
}

// GetEffortStats counts efforts per status for one session.
func (s *Store) GetEffortStats(sessionID string) (*EffortStats, error) {
	artifact, err := s.Read(sessionID)
	if err != nil {
		return nil, err
	}
	stats := &EffortStats{}
	for _, effort := range artifact.Efforts {
		stats.Total++
		stats.TotalItems += len(effort.Items)
		switch effort.Status {
		case EffortPending:
			stats.Pending++
		case EffortCompleted:
			stats.Completed++
		case EffortDeferred:
			stats.Deferred++
		}
	}
	return stats, nil
}

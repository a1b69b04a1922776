package session

import (
	"time"

	"memento/internal/errors"
)

// validateDisposition enforces the action set and action-specific required
// fields before anything touches disk.
func validateDisposition(d Disposition) error {
	if !AllowedActions[d.Action] {
		return errors.InvalidArgumentf("unknown disposition action %q", d.Action)
	}
	if d.ItemID == "" {
		return errors.InvalidArgumentf("disposition itemId is empty")
	}
	switch d.Action {
	case ActionRegroup:
		if d.From == "" || d.To == "" {
			return errors.InvalidArgumentf("regroup requires both from and to")
		}
	case ActionPromote:
		if d.Target == "" {
			return errors.InvalidArgumentf("promote requires target")
		}
	case ActionReprioritize:
		if d.Priority == "" {
			return errors.InvalidArgumentf("reprioritize requires priority")
		}
	case ActionUndo:
		if d.Undoes == "" {
			return errors.InvalidArgumentf("undo requires undoes")
		}
	}
	return nil
}

// stampDisposition copies only the fields belonging to the action, stamped
// with the given time. Stray fields from the request never reach the log.
func stampDisposition(d Disposition, at time.Time, batch bool) Disposition {
	entry := Disposition{
		Action: d.Action,
		ItemID: d.ItemID,
		At:     at.UTC().Format(time.RFC3339),
		Batch:  batch,
	}
	switch d.Action {
	case ActionRegroup:
		entry.From = d.From
		entry.To = d.To
	case ActionPromote:
		entry.Target = d.Target
	case ActionReprioritize:
		entry.Priority = d.Priority
	case ActionUndo:
		entry.Undoes = d.Undoes
	}
	return entry
}

// AppendDisposition validates, stamps, and appends one disposition to the
// session's log. The append is all-or-nothing: on any error the log is
// unchanged.
func (s *Store) AppendDisposition(sessionID string, d Disposition) (*Disposition, error) {
	if err := validateDisposition(d); err != nil {
		return nil, err
	}

	mu := s.sessionMutex(sessionID)
	mu.Lock()
	defer mu.Unlock()

	artifact, err := s.readDisk(sessionID)
	if err != nil {
		return nil, err
	}

	entry := stampDisposition(d, time.Now(), false)
	artifact.Dispositions = append(artifact.Dispositions, entry)
	if err := s.writeArtifact(sessionID, artifact); err != nil {
		return nil, err
	}
	s.logger.Debug("Appended %s disposition for %s in session %s", entry.Action, entry.ItemID, sessionID)
	return &entry, nil
}

// AppendBatchDisposition validates every entry first (atomic acceptance),
// stamps all of them with the same timestamp and batch markers, and appends
// the whole array in a single write. An empty batch is rejected.
func (s *Store) AppendBatchDisposition(sessionID string, dispositions []Disposition) ([]Disposition, error) {
	if len(dispositions) == 0 {
		return nil, errors.InvalidArgumentf("batch disposition is empty")
	}
	for i, d := range dispositions {
		if err := validateDisposition(d); err != nil {
			return nil, errors.InvalidArgumentf("batch entry %d: %v", i, err)
		}
	}

	mu := s.sessionMutex(sessionID)
	mu.Lock()
	defer mu.Unlock()

	artifact, err := s.readDisk(sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entries := make([]Disposition, 0, len(dispositions))
	for _, d := range dispositions {
		entries = append(entries, stampDisposition(d, now, true))
	}
	artifact.Dispositions = append(artifact.Dispositions, entries...)
	if err := s.writeArtifact(sessionID, artifact); err != nil {
		return nil, err
	}
	s.logger.Debug("Appended batch of %d dispositions to session %s", len(entries), sessionID)
	return entries, nil
}

// GetDispositions returns the session's disposition log, possibly empty.
func (s *Store) GetDispositions(sessionID string) ([]Disposition, error) {
	artifact, err := s.Read(sessionID)
	if err != nil {
		return nil, err
	}
	if artifact.Dispositions == nil {
		return []Disposition{}, nil
	}
	return artifact.Dispositions, nil
}

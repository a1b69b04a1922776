// Package prefs persists learned classification preferences and the
// correction analysis that generates them.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"memento/internal/errors"
	"memento/internal/logging"
)

// RuleStats summarizes the corrections behind a rule.
type RuleStats struct {
	TotalCorrections int     `json:"totalCorrections"`
	AgreementRatio   float64 `json:"agreementRatio"`
	TargetCategory   string  `json:"targetCategory"`
}

// Rule is one domain-level classification preference.
type Rule struct {
	ID                string       `json:"id"`
	Domain            string       `json:"domain"`
	Rule              string       `json:"rule"`
	Approved          bool         `json:"approved"`
	Confidence        float64      `json:"confidence"`
	Stats             RuleStats    `json:"stats"`
	SourceCorrections []Correction `json:"sourceCorrections,omitempty"`
	CreatedAt         string       `json:"createdAt"`
	ApprovedAt        string       `json:"approvedAt,omitempty"`
	ApplicationCount  int          `json:"applicationCount"`
	LastAppliedAt     string       `json:"lastAppliedAt,omitempty"`
}

// rulesFile is the on-disk shape of learned-rules.json.
type rulesFile struct {
	Rules       []Rule   `json:"rules"`
	Rejected    []string `json:"rejected"`
	Version     int      `json:"version"`
	LastUpdated string   `json:"lastUpdated"`
}

const rulesFileVersion = 1

// Store persists preference rules in a single JSON file, one writer at a
// time.
type Store struct {
	path   string
	mu     sync.Mutex
	logger logging.Logger
}

// NewStore persists rules at the given path (conventionally
// prompts/learned-rules.json under the project root).
func NewStore(path string) *Store {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	return &Store{
		path:   path,
		logger: logging.NewComponentLogger("PreferenceStore"),
	}
}

func (s *Store) load() (*rulesFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &rulesFile{Rules: []Rule{}, Rejected: []string{}, Version: rulesFileVersion}, nil
		}
		return nil, errors.IOf(err, "read preference rules")
	}
	var file rulesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.IOf(err, "decode preference rules")
	}
	return &file, nil
}

func (s *Store) save(file *rulesFile) error {
	file.Version = rulesFileVersion
	file.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.IOf(err, "encode preference rules")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.IOf(err, "write preference rules")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.IOf(err, "publish preference rules")
	}
	return nil
}

// GetAllRules returns every stored rule plus the rejected-id list.
func (s *Store) GetAllRules() ([]Rule, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return nil, nil, err
	}
	return file.Rules, file.Rejected, nil
}

// GetApprovedRules returns rules with approved=true.
func (s *Store) GetApprovedRules() ([]Rule, error) {
	rules, _, err := s.GetAllRules()
	if err != nil {
		return nil, err
	}
	var approved []Rule
	for _, rule := range rules {
		if rule.Approved {
			approved = append(approved, rule)
		}
	}
	return approved, nil
}

// ApproveRule persists a rule as approved, stamping timestamps. An existing
// rule with the same id is replaced in place.
func (s *Store) ApproveRule(id string, rule Rule) (*Rule, error) {
	if id == "" {
		return nil, errors.InvalidArgumentf("rule id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	rule.ID = id
	rule.Approved = true
	rule.ApprovedAt = now
	if rule.CreatedAt == "" {
		rule.CreatedAt = now
	}

	replaced := false
	for i := range file.Rules {
		if file.Rules[i].ID == id {
			rule.ApplicationCount = file.Rules[i].ApplicationCount
			rule.CreatedAt = file.Rules[i].CreatedAt
			file.Rules[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		file.Rules = append(file.Rules, rule)
	}

	if err := s.save(file); err != nil {
		return nil, err
	}
	s.logger.Info("Approved preference rule %s for domain %s", id, rule.Domain)
	return &rule, nil
}

// UnapproveRule flips an approved rule back to pending.
func (s *Store) UnapproveRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	for i := range file.Rules {
		if file.Rules[i].ID == id {
			file.Rules[i].Approved = false
			file.Rules[i].ApprovedAt = ""
			return s.save(file)
		}
	}
	return errors.NotFoundf("rule not found: %s", id)
}

// RejectRule records the id on the rejected list so the same suggestion is
// not resurfaced, and drops any stored rule with that id.
func (s *Store) RejectRule(id string) error {
	if id == "" {
		return errors.InvalidArgumentf("rule id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}

	for _, rejected := range file.Rejected {
		if rejected == id {
			return nil
		}
	}
	file.Rejected = append(file.Rejected, id)

	kept := file.Rules[:0]
	for _, rule := range file.Rules {
		if rule.ID != id {
			kept = append(kept, rule)
		}
	}
	file.Rules = kept

	if err := s.save(file); err != nil {
		return err
	}
	s.logger.Info("Rejected preference rule %s", id)
	return nil
}

// IncrementApplications bumps applicationCount and lastAppliedAt for every
// rule id that was injected into a classification.
func (s *Store) IncrementApplications(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	now := time.Now().UTC().Format(time.RFC3339)
	touched := false
	for i := range file.Rules {
		if wanted[file.Rules[i].ID] {
			file.Rules[i].ApplicationCount++
			file.Rules[i].LastAppliedAt = now
			touched = true
		}
	}
	if !touched {
		return nil
	}
	return s.save(file)
}

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

// Domain rule signals.
const (
	SignalNoise             = "noise"
	SignalAlwaysInteresting = "always-interesting"
	SignalContextual        = "contextual"
)

// Domain rule sources.
const (
	SourceUser         = "user"
	SourceBootstrapped = "bootstrapped"
)

// DomainRule is a coarse per-hostname classification signal.
type DomainRule struct {
	Signal string `json:"signal"`
	Reason string `json:"reason,omitempty"`
	Source string `json:"source"`
	At     string `json:"at"`
}

type domainRulesFile struct {
	Rules        map[string]DomainRule `json:"rules"`
	Bootstrapped bool                  `json:"bootstrapped"`
}

// DomainRuleStore persists domain rules in domain-rules.json, keyed by
// hostname.
type DomainRuleStore struct {
	path   string
	mu     sync.Mutex
	logger logging.Logger
}

// NewDomainRuleStore stores domain rules at the given path.
func NewDomainRuleStore(path string) *DomainRuleStore {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	return &DomainRuleStore{
		path:   path,
		logger: logging.NewComponentLogger("DomainRuleStore"),
	}
}

func (s *DomainRuleStore) load() (*domainRulesFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &domainRulesFile{Rules: make(map[string]DomainRule)}, nil
		}
		return nil, errors.IOf(err, "read domain rules")
	}
	var file domainRulesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.IOf(err, "decode domain rules")
	}
	if file.Rules == nil {
		file.Rules = make(map[string]DomainRule)
	}
	return &file, nil
}

func (s *DomainRuleStore) save(file *domainRulesFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.IOf(err, "encode domain rules")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.IOf(err, "write domain rules")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.IOf(err, "publish domain rules")
	}
	return nil
}

// GetRules returns all domain rules keyed by hostname.
func (s *DomainRuleStore) GetRules() (map[string]DomainRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return nil, err
	}
	return file.Rules, nil
}

// SetRule records or replaces the rule for a hostname.
func (s *DomainRuleStore) SetRule(host string, signal string, reason string, source string) error {
	if host == "" {
		return errors.InvalidArgumentf("host is empty")
	}
	switch signal {
	case SignalNoise, SignalAlwaysInteresting, SignalContextual:
	default:
		return errors.InvalidArgumentf("unknown domain signal %q", signal)
	}
	if source == "" {
		source = SourceUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	file.Rules[host] = DomainRule{
		Signal: signal,
		Reason: reason,
		Source: source,
		At:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.save(file); err != nil {
		return err
	}
	s.logger.Debug("Domain rule set: %s -> %s", host, signal)
	return nil
}

// Bootstrap seeds well-known domains once; later calls are no-ops.
func (s *DomainRuleStore) Bootstrap(seed map[string]DomainRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		return err
	}
	if file.Bootstrapped {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for host, rule := range seed {
		if _, exists := file.Rules[host]; exists {
			continue
		}
		rule.Source = SourceBootstrapped
		rule.At = now
		file.Rules[host] = rule
	}
	file.Bootstrapped = true
	return s.save(file)
}

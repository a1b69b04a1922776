package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"memento/internal/errors"
	"memento/internal/logging"
)

const artifactCacheSize = 128

// Store persists session artifacts as JSON files under baseDir. One file per
// session, filename derived from the capture timestamp.
type Store struct {
	baseDir string
	logger  logging.Logger
	cache   *lru.Cache[string, *Artifact]
	locks   sync.Map // sessionID -> *sync.Mutex
}

// NewStore creates a session store rooted at baseDir, expanding a leading ~/.
func NewStore(baseDir string) *Store {
	if strings.HasPrefix(baseDir, "~/") {
		home, _ := os.UserHomeDir()
		baseDir = filepath.Join(home, baseDir[2:])
	}
	_ = os.MkdirAll(baseDir, 0755) // Ignore error - directory may already exist
	cache, _ := lru.New[string, *Artifact](artifactCacheSize)
	return &Store{
		baseDir: baseDir,
		logger:  logging.NewComponentLogger("SessionStore"),
		cache:   cache,
	}
}

// BaseDir returns the directory the store writes sessions under.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// sessionMutex returns the per-session mutex serializing writes to one file.
func (s *Store) sessionMutex(sessionID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// SessionIDFromTime derives the file id from a UTC timestamp: ISO8601 with
// ':' replaced by '-' and milliseconds stripped.
func SessionIDFromTime(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Truncate(time.Second).Format(time.RFC3339), ":", "-")
}

// Save writes a new artifact and returns its assigned session id. The write
// goes through a temp file and rename so a concurrent List sees either the
// whole artifact or nothing.
func (s *Store) Save(artifact *Artifact) (string, error) {
	if artifact.Timestamp == "" {
		artifact.Timestamp = time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
	}
	ts, err := time.Parse(time.RFC3339, artifact.Timestamp)
	if err != nil {
		return "", errors.InvalidArgumentf("artifact timestamp %q is not ISO8601", artifact.Timestamp)
	}
	sessionID := SessionIDFromTime(ts)
	if artifact.Dispositions == nil {
		artifact.Dispositions = []Disposition{}
	}
	artifact.Meta.SessionID = sessionID

	if err := s.writeArtifact(sessionID, artifact); err != nil {
		return "", err
	}
	s.logger.Info("Saved session %s (%d tabs, %d classified)", sessionID, artifact.TotalTabs, artifact.ClassifiedCount)
	return sessionID, nil
}

func (s *Store) writeArtifact(sessionID string, artifact *Artifact) error {
	path, err := SessionPath(s.baseDir, sessionID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return errors.IOf(err, "encode session %s", sessionID)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.IOf(err, "write session %s", sessionID)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.IOf(err, "publish session %s", sessionID)
	}
	s.cache.Add(sessionID, artifact)
	return nil
}

// Read returns the full artifact for a session id.
func (s *Store) Read(sessionID string) (*Artifact, error) {
	if cached, ok := s.cache.Get(sessionID); ok {
		return cached, nil
	}
	return s.readDisk(sessionID)
}

func (s *Store) readDisk(sessionID string) (*Artifact, error) {
	path, err := SessionPath(s.baseDir, sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("session not found: %s", sessionID)
		}
		return nil, errors.IOf(err, "read session %s", sessionID)
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, errors.IOf(err, "decode session %s", sessionID)
	}
	s.cache.Add(sessionID, &artifact)
	return &artifact, nil
}

// List returns summaries of every stored session, newest first. Malformed
// files are skipped with a warning.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.IOf(err, "list sessions")
	}

	var summaries []Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		sessionID := strings.TrimSuffix(name, ".json")
		artifact, err := s.Read(sessionID)
		if err != nil {
			s.logger.Warn("Skipping malformed session file %s: %v", name, err)
			continue
		}
		summaries = append(summaries, summarize(sessionID, artifact))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Timestamp > summaries[j].Timestamp
	})
	return summaries, nil
}

func summarize(sessionID string, artifact *Artifact) Summary {
	summary := Summary{
		ID:        sessionID,
		Timestamp: artifact.Timestamp,
		TabCount:  artifact.TotalTabs,
		Narrative: artifact.Narrative,
	}
	if artifact.ThematicAnalysis != nil {
		summary.SessionPattern = artifact.ThematicAnalysis.SessionPattern
	}
	return summary
}

// GetLatest returns the most recent artifact, or NotFound when the store is
// empty.
func (s *Store) GetLatest() (string, *Artifact, error) {
	summaries, err := s.List()
	if err != nil {
		return "", nil, err
	}
	if len(summaries) == 0 {
		return "", nil, errors.NotFoundf("no sessions stored")
	}
	artifact, err := s.Read(summaries[0].ID)
	if err != nil {
		return "", nil, err
	}
	return summaries[0].ID, artifact, nil
}

// SearchResult pairs a matching session with a context window around the hit.
type SearchResult struct {
	Summary
	Context string `json:"context"`
}

// Search runs a case-insensitive substring match over the full JSON
// serialization of each artifact and returns a ±50-char context window.
func (s *Store) Search(query string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.InvalidArgumentf("search query is empty")
	}
	summaries, err := s.List()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var results []SearchResult
	for _, summary := range summaries {
		artifact, err := s.Read(summary.ID)
		if err != nil {
			continue
		}
		data, err := json.Marshal(artifact)
		if err != nil {
			continue
		}
		haystack := strings.ToLower(string(data))
		idx := strings.Index(haystack, needle)
		if idx < 0 {
			continue
		}
		start := idx - 50
		if start < 0 {
			start = 0
		}
		end := idx + len(needle) + 50
		if end > len(data) {
			end = len(data)
		}
		results = append(results, SearchResult{
			Summary: summary,
			Context: string(data[start:end]),
		})
	}
	return results, nil
}

// SaveReclassification persists a pass-4-only re-run next to the session
// store at reclassifications/<origId>--<timestamp>.json.
func (s *Store) SaveReclassification(origID string, artifact *Artifact) (string, error) {
	if err := ValidateSessionID(origID); err != nil {
		return "", err
	}
	dir := filepath.Join(filepath.Dir(s.baseDir), "reclassifications")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.IOf(err, "create reclassification directory")
	}
	id := fmt.Sprintf("%s--%s", origID, SessionIDFromTime(time.Now()))
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", errors.IOf(err, "encode reclassification %s", id)
	}
	path := filepath.Join(dir, id+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", errors.IOf(err, "write reclassification %s", id)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", errors.IOf(err, "publish reclassification %s", id)
	}
	return id, nil
}

package themes

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"memento/internal/errors"
)

// Theme statuses derived from feedback.
const (
	StatusActive       = "active"
	StatusConfirmed    = "confirmed"
	StatusSaved        = "saved"
	StatusArchived     = "archived"
	StatusDismissed    = "dismissed"
	StatusKeepWatching = "keep-watching"
)

// Feedback actions.
const (
	FeedbackConfirm      = "confirm"
	FeedbackCorrect      = "correct"
	FeedbackDismiss      = "dismiss"
	FeedbackSave         = "save"
	FeedbackArchive      = "archive"
	FeedbackKeepWatching = "keep-watching"
	FeedbackRename       = "rename"
)

var allowedFeedback = map[string]bool{
	FeedbackConfirm:      true,
	FeedbackCorrect:      true,
	FeedbackDismiss:      true,
	FeedbackSave:         true,
	FeedbackArchive:      true,
	FeedbackKeepWatching: true,
	FeedbackRename:       true,
}

// Feedback is the stored user verdict on one theme.
type Feedback struct {
	ThemeID  string `json:"themeId"`
	Action   string `json:"action"`
	NewLabel string `json:"newLabel,omitempty"`
	Note     string `json:"note,omitempty"`
	At       string `json:"at"`
}

type feedbackFile struct {
	Feedback    map[string]Feedback `json:"feedback"`
	LastUpdated string              `json:"lastUpdated"`
}

// FeedbackStore persists theme feedback in one JSON file; the latest
// feedback per theme wins.
type FeedbackStore struct {
	path string
	mu   sync.Mutex
}

func NewFeedbackStore(path string) *FeedbackStore {
	return &FeedbackStore{path: path}
}

func (s *FeedbackStore) load() (*feedbackFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &feedbackFile{Feedback: map[string]Feedback{}}, nil
	}
	if err != nil {
		return nil, errors.IOf(err, "read theme feedback %s", s.path)
	}
	var file feedbackFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.IOf(err, "parse theme feedback %s", s.path)
	}
	if file.Feedback == nil {
		file.Feedback = map[string]Feedback{}
	}
	return &file, nil
}

func (s *FeedbackStore) save(file *feedbackFile) error {
	file.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.IOf(err, "encode theme feedback")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.IOf(err, "create feedback dir")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.IOf(err, "write theme feedback")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.IOf(err, "commit theme feedback")
	}
	return nil
}

// Record stores feedback for a theme. Rename and correct require a new
// label.
func (s *FeedbackStore) Record(fb Feedback) error {
	if fb.ThemeID == "" {
		return errors.InvalidArgumentf("themeId is required")
	}
	if !allowedFeedback[fb.Action] {
		return errors.InvalidArgumentf("unknown theme feedback action: %s", fb.Action)
	}
	if (fb.Action == FeedbackRename || fb.Action == FeedbackCorrect) && fb.NewLabel == "" {
		return errors.InvalidArgumentf("%s feedback requires newLabel", fb.Action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.load()
	if err != nil {
		return err
	}
	fb.At = time.Now().UTC().Format(time.RFC3339)
	file.Feedback[fb.ThemeID] = fb
	return s.save(file)
}

// statusFor maps an action to the theme status it implies.
func statusFor(action string) string {
	switch action {
	case FeedbackConfirm:
		return StatusConfirmed
	case FeedbackSave:
		return StatusSaved
	case FeedbackArchive:
		return StatusArchived
	case FeedbackDismiss:
		return StatusDismissed
	case FeedbackKeepWatching:
		return StatusKeepWatching
	default:
		return StatusActive
	}
}

// Apply filters dismissed and archived themes out of the active view and
// carries renames and statuses onto the rest.
func (s *FeedbackStore) Apply(themes []Theme) ([]Theme, error) {
	s.mu.Lock()
	file, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []Theme
	for _, theme := range themes {
		fb, ok := file.Feedback[theme.ID]
		if !ok {
			out = append(out, theme)
			continue
		}
		if fb.Action == FeedbackDismiss || fb.Action == FeedbackArchive {
			continue
		}
		theme.Status = statusFor(fb.Action)
		if fb.NewLabel != "" {
			theme.Label = fb.NewLabel
		}
		out = append(out, theme)
	}
	return out, nil
}

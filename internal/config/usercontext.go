package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"memento/internal/classify"
	"memento/internal/errors"
	"memento/internal/logging"
)

// StaleAfter is how old a user context file can be before its projects stop
// being injected into classification.
const StaleAfter = 24 * time.Hour

// UserContext is the optional externally-generated file describing the
// user's active projects.
type UserContext struct {
	Version        int                `json:"version"`
	Generated      string             `json:"generated"`
	ActiveProjects []classify.Project `json:"activeProjects"`
}

// UserContextPath is the well-known location under the user home.
func UserContextPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, defaultStateDir, "context.json")
}

// LoadUserContext reads the context file. A missing file yields a nil
// context and no error; a stale file yields the context with Stale true so
// callers can decide whether to trust it.
func LoadUserContext(path string) (*UserContext, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.IOf(err, "read user context %s", path)
	}
	var ctx UserContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, false, errors.IOf(err, "parse user context %s", path)
	}
	stale := true
	if generated, err := time.Parse(time.RFC3339, ctx.Generated); err == nil {
		stale = time.Since(generated) > StaleAfter
	}
	if stale {
		logging.NewComponentLogger("UserContext").Warn("User context %s is stale (generated %s)", path, ctx.Generated)
	}
	return &ctx, stale, nil
}

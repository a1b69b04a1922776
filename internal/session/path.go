package session

import (
	"path/filepath"
	"regexp"
	"strings"

	"memento/internal/errors"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateSessionID rejects ids that could escape the session directory.
// Every read or write keyed by a user-supplied id goes through this guard.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.InvalidArgumentf("session id is empty")
	}
	if strings.Contains(sessionID, "..") {
		return errors.InvalidArgumentf("session id %q contains a parent reference", sessionID)
	}
	if strings.ContainsAny(sessionID, `/\`) {
		return errors.InvalidArgumentf("session id %q contains a path separator", sessionID)
	}
	if !sessionIDPattern.MatchString(sessionID) {
		return errors.InvalidArgumentf("session id %q has characters outside [A-Za-z0-9._-]", sessionID)
	}
	return nil
}

// SessionPath resolves a validated session id to its artifact path strictly
// under baseDir.
func SessionPath(baseDir, sessionID string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, sessionID+".json")
	// Join cleans the path; a result outside baseDir means the id slipped
	// something past the pattern check.
	if rel, err := filepath.Rel(baseDir, path); err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.InvalidArgumentf("session id %q resolves outside the session directory", sessionID)
	}
	return path, nil
}

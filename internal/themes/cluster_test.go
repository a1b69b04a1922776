package themes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memento/internal/session"
)

type seedPage struct {
	url   string
	title string
}

func writeThemeSession(t *testing.T, store *session.Store, age time.Duration, pages []seedPage) string {
	t.Helper()
	ts := time.Now().Add(-age).UTC().Truncate(time.Second)
	groups := map[string][]session.GroupItem{"Research": {}}
	for i, p := range pages {
		groups["Research"] = append(groups["Research"], session.GroupItem{
			TabIndex: i + 1,
			Title:    p.title,
			URL:      p.url,
		})
	}
	id, err := store.Save(&session.Artifact{
		Timestamp: ts.Format(time.RFC3339),
		TotalTabs: len(pages),
		Groups:    groups,
		Meta:      session.Meta{SchemaVersion: session.SchemaVersion},
	})
	require.NoError(t, err)
	return id
}

func detectorFixture(t *testing.T) (*Detector, *session.Store) {
	t.Helper()
	dir := t.TempDir()
	store := session.NewStore(filepath.Join(dir, "sessions"))
	feedback := NewFeedbackStore(filepath.Join(dir, "theme-feedback.json"))
	return NewDetector(store, feedback), store
}

func authorshipPages() []seedPage {
	return []seedPage{
		{"https://a.example.com/1", "Authorship attribution methods"},
		{"https://b.example.com/2", "Stylometry and authorship analysis"},
		{"https://c.example.com/3", "Authorship in collaborative writing"},
		{"https://d.example.com/4", "Detecting authorship signals"},
	}
}

func TestGetThemeProposals_SingleCluster(t *testing.T) {
	t.Parallel()
	detector, store := detectorFixture(t)

	// All four pages co-occur in two sessions.
	writeThemeSession(t, store, 48*time.Hour, authorshipPages())
	writeThemeSession(t, store, 24*time.Hour, authorshipPages())

	themes, err := detector.GetThemeProposals()
	require.NoError(t, err)
	require.Len(t, themes, 1)

	theme := themes[0]
	assert.Len(t, theme.URLs, 4)
	assert.True(t, strings.HasPrefix(theme.Label, "Authorship"), "label %q", theme.Label)
	assert.Equal(t, StatusActive, theme.Status)
	assert.Contains(t, theme.Keywords, "authorship")
	assert.Equal(t, 8, theme.TotalRecurrence)
	assert.Equal(t, 2, theme.DistinctDays)
	assert.Greater(t, theme.Score, 0.0)
}

func TestGetThemeProposals_StableID(t *testing.T) {
	t.Parallel()
	detector, store := detectorFixture(t)
	writeThemeSession(t, store, 48*time.Hour, authorshipPages())
	writeThemeSession(t, store, 24*time.Hour, authorshipPages())

	first, err := detector.GetThemeProposals()
	require.NoError(t, err)
	second, err := detector.GetThemeProposals()
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestGetThemeProposals_SingletonKeywordIgnored(t *testing.T) {
	t.Parallel()
	detector, store := detectorFixture(t)
	writeThemeSession(t, store, 24*time.Hour, []seedPage{
		{"https://solo.example.com/", "Quines explained"},
	})

	themes, err := detector.GetThemeProposals()
	require.NoError(t, err)
	assert.Empty(t, themes, "a keyword on a single URL cannot seed a cluster")
}

func TestFeedback_DismissAndRename(t *testing.T) {
	t.Parallel()
	detector, store := detectorFixture(t)
	writeThemeSession(t, store, 48*time.Hour, authorshipPages())
	writeThemeSession(t, store, 24*time.Hour, authorshipPages())

	themes, err := detector.GetThemeProposals()
	require.NoError(t, err)
	require.Len(t, themes, 1)
	id := themes[0].ID

	require.NoError(t, detector.feedback.Record(Feedback{ThemeID: id, Action: FeedbackRename, NewLabel: "Forensic stylometry"}))
	themes, err = detector.GetThemeProposals()
	require.NoError(t, err)
	require.Len(t, themes, 1)
	assert.Equal(t, "Forensic stylometry", themes[0].Label)

	require.NoError(t, detector.feedback.Record(Feedback{ThemeID: id, Action: FeedbackDismiss}))
	themes, err = detector.GetThemeProposals()
	require.NoError(t, err)
	assert.Empty(t, themes)
}

func TestFeedback_Validation(t *testing.T) {
	t.Parallel()
	store := NewFeedbackStore(filepath.Join(t.TempDir(), "fb.json"))
	assert.Error(t, store.Record(Feedback{Action: FeedbackConfirm}))
	assert.Error(t, store.Record(Feedback{ThemeID: "t", Action: "shrug"}))
	assert.Error(t, store.Record(Feedback{ThemeID: "t", Action: FeedbackRename}))
	assert.NoError(t, store.Record(Feedback{ThemeID: "t", Action: FeedbackConfirm}))
}

func TestInterestsEnrichment(t *testing.T) {
	t.Parallel()
	detector, store := detectorFixture(t)
	writeThemeSession(t, store, 48*time.Hour, authorshipPages())
	writeThemeSession(t, store, 24*time.Hour, authorshipPages())

	notesDir := t.TempDir()
	note := `---
title: Authorship studies
tags: [stylometry, attribution]
---

# Authorship verification

Some **forensic linguistics** notes.
`
	require.NoError(t, os.WriteFile(filepath.Join(notesDir, "authorship-studies.md"), []byte(note), 0o644))
	detector.WithInterestsDir(notesDir)

	themes, err := detector.GetThemeProposals()
	require.NoError(t, err)
	require.Len(t, themes, 1)
	assert.Equal(t, []string{"authorship-studies"}, themes[0].RelatedInterests)

	// A missing directory is not an error.
	detector.WithInterestsDir(filepath.Join(notesDir, "does-not-exist"))
	themes, err = detector.GetThemeProposals()
	require.NoError(t, err)
	require.Len(t, themes, 1)
	assert.Empty(t, themes[0].RelatedInterests)
}

func TestTokenize(t *testing.T) {
	t.Parallel()
	tokens := Tokenize("The Best Guide to Authorship Attribution (2024)")
	assert.Equal(t, []string{"guide", "authorship", "attribution"}, tokens)
	assert.Empty(t, Tokenize("the and for"))
}

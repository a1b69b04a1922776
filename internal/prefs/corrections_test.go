package prefs

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memento/internal/session"
)

// seedSession writes a session whose tabs live on the given URLs and applies
// the listed regroups.
func seedSession(t *testing.T, store *session.Store, timestamp string, urls []string, regroups []session.Disposition) string {
	t.Helper()
	groups := map[string][]session.GroupItem{"Research": {}}
	for i, u := range urls {
		groups["Research"] = append(groups["Research"], session.GroupItem{
			TabIndex: i + 1,
			Title:    fmt.Sprintf("tab %d", i+1),
			URL:      u,
		})
	}
	id, err := store.Save(&session.Artifact{
		Timestamp:       timestamp,
		TotalTabs:       len(urls),
		ClassifiedCount: len(urls),
		Groups:          groups,
		Meta:            session.Meta{SchemaVersion: session.SchemaVersion},
	})
	require.NoError(t, err)
	for _, d := range regroups {
		_, err := store.AppendDisposition(id, d)
		require.NoError(t, err)
	}
	return id
}

func analyzerFixture(t *testing.T) (*Analyzer, *session.Store, *Store) {
	t.Helper()
	dir := t.TempDir()
	sessions := session.NewStore(filepath.Join(dir, "sessions"))
	store := NewStore(filepath.Join(dir, "learned-rules.json"))
	return NewAnalyzer(sessions, store), sessions, store
}

func TestGetCorrections_ResolvesTabs(t *testing.T) {
	t.Parallel()
	analyzer, sessions, _ := analyzerFixture(t)

	seedSession(t, sessions, "2025-11-01T10:00:00Z",
		[]string{"https://example.com/a"},
		[]session.Disposition{{Action: session.ActionRegroup, ItemID: "https://example.com/a", From: "Research", To: "Shopping"}})

	corrections, err := analyzer.GetCorrections()
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, "example.com", corrections[0].Domain)
	assert.Equal(t, "Research", corrections[0].From)
	assert.Equal(t, "Shopping", corrections[0].To)
	assert.Equal(t, "tab 1", corrections[0].Title)
}

func TestGenerateRuleSuggestions_Scenario(t *testing.T) {
	t.Parallel()
	analyzer, sessions, _ := analyzerFixture(t)

	// Three regroups on example.com all targeting Shopping.
	seedSession(t, sessions, "2025-11-01T10:00:00Z",
		[]string{"https://example.com/a", "https://example.com/b"},
		[]session.Disposition{
			{Action: session.ActionRegroup, ItemID: "https://example.com/a", From: "Research", To: "Shopping"},
			{Action: session.ActionRegroup, ItemID: "https://example.com/b", From: "Research", To: "Shopping"},
		})
	seedSession(t, sessions, "2025-11-02T10:00:00Z",
		[]string{"https://example.com/c"},
		[]session.Disposition{
			{Action: session.ActionRegroup, ItemID: "https://example.com/c", From: "Shopping", To: "Shopping"},
		})

	suggestions, err := analyzer.GenerateRuleSuggestions(2)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	s := suggestions[0]
	assert.Equal(t, "example.com", s.Domain)
	assert.Equal(t, "Shopping", s.TargetCategory)
	assert.InDelta(t, 1.0, s.Confidence, 0.001)
	assert.Equal(t, 3, s.CorrectionCount)
	assert.Contains(t, s.Rule, "Shopping")
	assert.Contains(t, s.Rule, "not Research")
}

func TestGenerateRuleSuggestions_RespectsThresholdsAndRejections(t *testing.T) {
	t.Parallel()
	analyzer, sessions, store := analyzerFixture(t)

	seedSession(t, sessions, "2025-11-01T10:00:00Z",
		[]string{"https://one.example.com/a"},
		[]session.Disposition{{Action: session.ActionRegroup, ItemID: "https://one.example.com/a", From: "Research", To: "Shopping"}})

	// Single correction: below minCorrections.
	suggestions, err := analyzer.GenerateRuleSuggestions(2)
	require.NoError(t, err)
	assert.Empty(t, suggestions)

	// Split targets below the agreement floor: 1/2 < 0.6.
	seedSession(t, sessions, "2025-11-02T10:00:00Z",
		[]string{"https://one.example.com/b"},
		[]session.Disposition{{Action: session.ActionRegroup, ItemID: "https://one.example.com/b", From: "Research", To: "News"}})
	suggestions, err = analyzer.GenerateRuleSuggestions(2)
	require.NoError(t, err)
	assert.Empty(t, suggestions)

	// A third agreeing correction clears 2/3 ≥ 0.6.
	seedSession(t, sessions, "2025-11-03T10:00:00Z",
		[]string{"https://one.example.com/c"},
		[]session.Disposition{{Action: session.ActionRegroup, ItemID: "https://one.example.com/c", From: "Research", To: "Shopping"}})
	suggestions, err = analyzer.GenerateRuleSuggestions(2)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)

	// Rejecting retires the suggestion permanently.
	require.NoError(t, store.RejectRule(suggestions[0].ID))
	suggestions, err = analyzer.GenerateRuleSuggestions(2)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestGetCorrectionRates(t *testing.T) {
	t.Parallel()
	analyzer, sessions, _ := analyzerFixture(t)

	seedSession(t, sessions, "2025-11-01T10:00:00Z",
		[]string{"https://hot.example.com/a", "https://hot.example.com/b", "https://cold.example.com/x"},
		[]session.Disposition{{Action: session.ActionRegroup, ItemID: "https://hot.example.com/a", From: "Research", To: "Shopping"}})
	seedSession(t, sessions, "2025-11-02T10:00:00Z",
		[]string{"https://cold.example.com/y"},
		nil)

	rates, err := analyzer.GetCorrectionRates()
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "hot.example.com", rates[0].Domain)
	assert.InDelta(t, 0.5, rates[0].Rate, 0.001)
	assert.Equal(t, "cold.example.com", rates[1].Domain)
	assert.Zero(t, rates[1].CorrectionCount)
}

func TestSuggestExtractors(t *testing.T) {
	t.Parallel()
	analyzer, sessions, _ := analyzerFixture(t)

	seedSession(t, sessions, "2025-11-01T10:00:00Z",
		[]string{"https://docs.example.com/a", "https://docs.example.com/b", "https://docs.example.com/c"},
		[]session.Disposition{
			{Action: session.ActionRegroup, ItemID: "https://docs.example.com/a", From: "Research", To: "Development"},
			{Action: session.ActionRegroup, ItemID: "https://docs.example.com/b", From: "Research", To: "Development"},
		})

	suggestions, err := analyzer.SuggestExtractors(2, 0.3)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "docs.example.com", suggestions[0].Domain)
	assert.InDelta(t, 2.0/3.0, suggestions[0].Rate, 0.001)
}

func TestDomainRuleStore(t *testing.T) {
	t.Parallel()
	store := NewDomainRuleStore(filepath.Join(t.TempDir(), "domain-rules.json"))

	require.Error(t, store.SetRule("", SignalNoise, "", SourceUser))
	require.Error(t, store.SetRule("x.com", "loud", "", SourceUser))

	require.NoError(t, store.SetRule("news.ycombinator.com", SignalContextual, "depends on thread", SourceUser))
	require.NoError(t, store.Bootstrap(map[string]DomainRule{
		"news.ycombinator.com": {Signal: SignalNoise},
		"arxiv.org":            {Signal: SignalAlwaysInteresting},
	}))
	// Second bootstrap is a no-op.
	require.NoError(t, store.Bootstrap(map[string]DomainRule{
		"example.com": {Signal: SignalNoise},
	}))

	rules, err := store.GetRules()
	require.NoError(t, err)
	assert.Equal(t, SignalContextual, rules["news.ycombinator.com"].Signal, "bootstrap must not clobber user rules")
	assert.Equal(t, SourceBootstrapped, rules["arxiv.org"].Source)
	_, seeded := rules["example.com"]
	assert.False(t, seeded)
}

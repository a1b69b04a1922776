package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memento/internal/errors"
)

func seededStore(t *testing.T) (*Store, string) {
	t.Helper()
	store := NewStore(t.TempDir())
	artifact := &Artifact{
		Timestamp:       "2025-11-03T10:22:41Z",
		TotalTabs:       2,
		ClassifiedCount: 2,
		Groups: map[string][]GroupItem{
			"A": {{TabIndex: 1, Title: "tab one", URL: "https://a.example.com/one"}},
			"B": {{TabIndex: 2, Title: "tab two", URL: "https://b.example.com/two"}},
		},
		Meta: Meta{SchemaVersion: SchemaVersion},
	}
	id, err := store.Save(artifact)
	require.NoError(t, err)
	return store, id
}

func TestAppendDisposition_Validation(t *testing.T) {
	t.Parallel()
	store, id := seededStore(t)

	cases := []struct {
		name string
		d    Disposition
	}{
		{"unknown action", Disposition{Action: "shred", ItemID: "x"}},
		{"empty item", Disposition{Action: ActionTrash}},
		{"regroup without to", Disposition{Action: ActionRegroup, ItemID: "x", From: "A"}},
		{"promote without target", Disposition{Action: ActionPromote, ItemID: "x"}},
		{"undo without undoes", Disposition{Action: ActionUndo, ItemID: "x"}},
		{"reprioritize without priority", Disposition{Action: ActionReprioritize, ItemID: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.AppendDisposition(id, tc.d)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidArgument(err), "want InvalidArgument, got %v", err)
		})
	}

	// A rejected append leaves the log untouched.
	log, err := store.GetDispositions(id)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestAppendDisposition_MissingSession(t *testing.T) {
	t.Parallel()
	store := NewStore(t.TempDir())
	_, err := store.AppendDisposition("2025-01-01T00-00-00Z", Disposition{Action: ActionTrash, ItemID: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestAppendDisposition_AppendOnlyOrder(t *testing.T) {
	t.Parallel()
	store, id := seededStore(t)

	for _, d := range []Disposition{
		{Action: ActionTrash, ItemID: "https://a.example.com/one"},
		{Action: ActionRegroup, ItemID: "https://b.example.com/two", From: "B", To: "A"},
		{Action: ActionUndo, ItemID: "https://b.example.com/two", Undoes: ActionRegroup},
	} {
		entry, err := store.AppendDisposition(id, d)
		require.NoError(t, err)
		require.NotEmpty(t, entry.At)
	}

	log, err := store.GetDispositions(id)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, ActionTrash, log[0].Action)
	assert.Equal(t, ActionRegroup, log[1].Action)
	assert.Equal(t, ActionUndo, log[2].Action)
}

func TestAppendDisposition_CopiesOnlyActionFields(t *testing.T) {
	t.Parallel()
	store, id := seededStore(t)

	entry, err := store.AppendDisposition(id, Disposition{
		Action: ActionTrash,
		ItemID: "https://a.example.com/one",
		// Stray fields for a trash action must not be persisted.
		From: "A", To: "B", Target: "notes", Priority: "high", Undoes: ActionRegroup,
	})
	require.NoError(t, err)
	assert.Empty(t, entry.From)
	assert.Empty(t, entry.To)
	assert.Empty(t, entry.Target)
	assert.Empty(t, entry.Priority)
	assert.Empty(t, entry.Undoes)
}

func TestAppendBatchDisposition(t *testing.T) {
	t.Parallel()
	store, id := seededStore(t)

	_, err := store.AppendBatchDisposition(id, nil)
	require.Error(t, err, "empty batch must be rejected")

	// One invalid entry rejects the whole batch.
	_, err = store.AppendBatchDisposition(id, []Disposition{
		{Action: ActionComplete, ItemID: "https://a.example.com/one"},
		{Action: "bogus", ItemID: "https://b.example.com/two"},
	})
	require.Error(t, err)
	log, _ := store.GetDispositions(id)
	assert.Empty(t, log, "failed batch must not partially append")

	entries, err := store.AppendBatchDisposition(id, []Disposition{
		{Action: ActionComplete, ItemID: "https://a.example.com/one"},
		{Action: ActionComplete, ItemID: "https://b.example.com/two"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Batch)
	assert.True(t, entries[1].Batch)
	assert.Equal(t, entries[0].At, entries[1].At, "batch entries share one timestamp")
}

func TestView_AppendAndFoldScenario(t *testing.T) {
	t.Parallel()
	store, id := seededStore(t)

	tab1 := "https://a.example.com/one"
	tab2 := "https://b.example.com/two"

	_, err := store.AppendDisposition(id, Disposition{Action: ActionTrash, ItemID: tab1})
	require.NoError(t, err)
	_, err = store.AppendDisposition(id, Disposition{Action: ActionRegroup, ItemID: tab2, From: "B", To: "A"})
	require.NoError(t, err)
	_, err = store.AppendDisposition(id, Disposition{Action: ActionUndo, ItemID: tab2, Undoes: ActionRegroup})
	require.NoError(t, err)

	view, err := store.GetSessionWithDispositions(id)
	require.NoError(t, err)

	assert.Equal(t, StatusTrashed, view.ItemStates[tab1].Status)
	assert.Equal(t, StatusPending, view.ItemStates[tab2].Status)
	assert.Equal(t, "B", view.ItemStates[tab2].CurrentCategory, "undo of regroup restores original category")
	assert.Equal(t, 1, view.UnresolvedCount)
	assert.False(t, view.AllResolved)
}

func TestView_LaterDispositionWinsForStatus(t *testing.T) {
	t.Parallel()
	store, id := seededStore(t)

	tab1 := "https://a.example.com/one"
	_, err := store.AppendDisposition(id, Disposition{Action: ActionDefer, ItemID: tab1})
	require.NoError(t, err)
	_, err = store.AppendDisposition(id, Disposition{Action: ActionComplete, ItemID: tab1})
	require.NoError(t, err)

	view, err := store.GetSessionWithDispositions(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, view.ItemStates[tab1].Status)
	assert.NotEmpty(t, view.ItemStates[tab1].CompletedAt)
}

func TestView_UndoClearsStatusFields(t *testing.T) {
	t.Parallel()
	store, id := seededStore(t)

	tab1 := "https://a.example.com/one"
	_, err := store.AppendDisposition(id, Disposition{Action: ActionPromote, ItemID: tab1, Target: "project-notes"})
	require.NoError(t, err)
	_, err = store.AppendDisposition(id, Disposition{Action: ActionUndo, ItemID: tab1, Undoes: ActionPromote})
	require.NoError(t, err)

	view, err := store.GetSessionWithDispositions(id)
	require.NoError(t, err)
	state := view.ItemStates[tab1]
	assert.Equal(t, StatusPending, state.Status)
	assert.Empty(t, state.PromotedAt)
	assert.Empty(t, state.PromotedTo)
	assert.Equal(t, ActionPromote, state.UndoneAction)
	assert.NotEmpty(t, state.UndoneAt)
}

func TestView_StateKeysAreSubsetOfItems(t *testing.T) {
	t.Parallel()
	store, id := seededStore(t)

	// A disposition naming an unknown item is ignored by the fold, not
	// projected into phantom state.
	_, err := store.AppendDisposition(id, Disposition{Action: ActionTrash, ItemID: "https://unknown.example.com"})
	require.NoError(t, err)

	view, err := store.GetSessionWithDispositions(id)
	require.NoError(t, err)
	assert.Len(t, view.ItemStates, 2)
	assert.Equal(t, 2, view.UnresolvedCount)
}

func TestAppliedView_ReshapesGroups(t *testing.T) {
	t.Parallel()
	store, id := seededStore(t)

	tab1 := "https://a.example.com/one"
	tab2 := "https://b.example.com/two"
	_, err := store.AppendDisposition(id, Disposition{Action: ActionRegroup, ItemID: tab2, From: "B", To: "A"})
	require.NoError(t, err)
	_, err = store.AppendDisposition(id, Disposition{Action: ActionTrash, ItemID: tab1})
	require.NoError(t, err)

	applied, err := store.GetSessionWithDispositionsApplied(id)
	require.NoError(t, err)

	require.Len(t, applied.Groups["A"], 1)
	assert.Equal(t, 2, applied.Groups["A"][0].TabIndex, "regrouped item moved into target category")
	assert.Empty(t, applied.Groups["B"])
	require.Len(t, applied.TrashedItems, 1)
	assert.Equal(t, tab1, applied.TrashedItems[0].ItemID)
	assert.Empty(t, applied.CompletedItems)
	assert.Empty(t, applied.LaterItems)
}

func TestItemID_SyntheticWhenURLAbsent(t *testing.T) {
	t.Parallel()
	item := GroupItem{TabIndex: 7, Title: "about:blank tab"}
	assert.Equal(t, "tab-7", item.ItemID())
}

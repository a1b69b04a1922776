package session

// Item statuses derived by folding dispositions.
const (
	StatusPending   = "pending"
	StatusTrashed   = "trashed"
	StatusCompleted = "completed"
	StatusPromoted  = "promoted"
	StatusDeferred  = "deferred"
	StatusLater     = "later"
)

// ItemState is the current, derived state of one classified item. It is
// never persisted; it is a pure function of the original groups and the
// disposition sequence.
type ItemState struct {
	ItemID           string `json:"itemId"`
	TabIndex         int    `json:"tabIndex"`
	Title            string `json:"title"`
	URL              string `json:"url,omitempty"`
	Status           string `json:"status"`
	OriginalCategory string `json:"originalCategory"`
	CurrentCategory  string `json:"currentCategory"`
	RegroupedFrom    string `json:"regroupedFrom,omitempty"`
	Priority         string `json:"priority,omitempty"`
	TrashedAt        string `json:"trashedAt,omitempty"`
	CompletedAt      string `json:"completedAt,omitempty"`
	PromotedAt       string `json:"promotedAt,omitempty"`
	PromotedTo       string `json:"promotedTo,omitempty"`
	DeferredAt       string `json:"deferredAt,omitempty"`
	LaterAt          string `json:"laterAt,omitempty"`
	UndoneAt         string `json:"undoneAt,omitempty"`
	UndoneAction     string `json:"undoneAction,omitempty"`
}

// View is a session artifact with its folded item states.
type View struct {
	SessionID       string                `json:"sessionId"`
	Artifact        *Artifact             `json:"artifact"`
	ItemStates      map[string]*ItemState `json:"itemStates"`
	UnresolvedCount int                   `json:"unresolvedCount"`
	AllResolved     bool                  `json:"allResolved"`
}

// FoldDispositions computes item states by initializing every grouped item to
// pending and applying the disposition sequence in order. Later dispositions
// win for status; regroup accumulates by overwriting the current category.
func FoldDispositions(artifact *Artifact) map[string]*ItemState {
	states := make(map[string]*ItemState)
	for category, items := range artifact.Groups {
		for _, item := range items {
			id := item.ItemID()
			states[id] = &ItemState{
				ItemID:           id,
				TabIndex:         item.TabIndex,
				Title:            item.Title,
				URL:              item.URL,
				Status:           StatusPending,
				OriginalCategory: category,
				CurrentCategory:  category,
			}
		}
	}

	for _, d := range artifact.Dispositions {
		state, ok := states[d.ItemID]
		if !ok {
			// Disposition for an item no longer in groups; ignore rather
			// than invent state.
			continue
		}
		switch d.Action {
		case ActionTrash:
			state.Status = StatusTrashed
			state.TrashedAt = d.At
		case ActionComplete:
			state.Status = StatusCompleted
			state.CompletedAt = d.At
		case ActionPromote:
			state.Status = StatusPromoted
			state.PromotedAt = d.At
			state.PromotedTo = d.Target
		case ActionDefer:
			state.Status = StatusDeferred
			state.DeferredAt = d.At
		case ActionLater:
			state.Status = StatusLater
			state.LaterAt = d.At
		case ActionRegroup:
			state.RegroupedFrom = d.From
			state.CurrentCategory = d.To
		case ActionReprioritize:
			state.Priority = d.Priority
		case ActionUndo:
			state.Status = StatusPending
			state.TrashedAt = ""
			state.CompletedAt = ""
			state.PromotedAt = ""
			state.PromotedTo = ""
			state.DeferredAt = ""
			state.LaterAt = ""
			state.UndoneAt = d.At
			state.UndoneAction = d.Undoes
			if d.Undoes == ActionRegroup {
				state.CurrentCategory = state.OriginalCategory
				state.RegroupedFrom = ""
			}
		}
	}
	return states
}

// GetSessionWithDispositions returns the view layer: the artifact plus per
// item current state and resolution counters.
func (s *Store) GetSessionWithDispositions(sessionID string) (*View, error) {
	artifact, err := s.Read(sessionID)
	if err != nil {
		return nil, err
	}
	return buildView(sessionID, artifact), nil
}

func buildView(sessionID string, artifact *Artifact) *View {
	states := FoldDispositions(artifact)
	unresolved := 0
	for _, state := range states {
		if state.Status == StatusPending {
			unresolved++
		}
	}
	return &View{
		SessionID:       sessionID,
		Artifact:        artifact,
		ItemStates:      states,
		UnresolvedCount: unresolved,
		AllResolved:     unresolved == 0,
	}
}

// AppliedView is the disposition view with groups physically reshaped to the
// current category of each still-open item, and resolved items extracted.
type AppliedView struct {
	View
	Groups         map[string][]GroupItem `json:"groups"`
	TrashedItems   []ItemState            `json:"_trashedItems"`
	CompletedItems []ItemState            `json:"_completedItems"`
	LaterItems     []ItemState            `json:"_laterItems"`
}

// GetSessionWithDispositionsApplied reshapes groups so each non-terminal item
// sits in its current category, and extracts trashed, completed, and later
// items into their own lists.
func (s *Store) GetSessionWithDispositionsApplied(sessionID string) (*AppliedView, error) {
	view, err := s.GetSessionWithDispositions(sessionID)
	if err != nil {
		return nil, err
	}

	applied := &AppliedView{
		View:           *view,
		Groups:         make(map[string][]GroupItem),
		TrashedItems:   []ItemState{},
		CompletedItems: []ItemState{},
		LaterItems:     []ItemState{},
	}

	for category, items := range view.Artifact.Groups {
		for _, item := range items {
			state, ok := view.ItemStates[item.ItemID()]
			if !ok {
				applied.Groups[category] = append(applied.Groups[category], item)
				continue
			}
			switch state.Status {
			case StatusTrashed:
				applied.TrashedItems = append(applied.TrashedItems, *state)
			case StatusCompleted:
				applied.CompletedItems = append(applied.CompletedItems, *state)
			case StatusLater:
				applied.LaterItems = append(applied.LaterItems, *state)
			default:
				target := state.CurrentCategory
				if target == "" {
					target = category
				}
				applied.Groups[target] = append(applied.Groups[target], item)
			}
		}
	}
	return applied, nil
}

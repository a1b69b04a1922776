package session

import "fmt"

// Tab is the transient classification input captured by the extension.
type Tab struct {
	URL                   string `json:"url"`
	Title                 string `json:"title"`
	Content               string `json:"content,omitempty"`
	NeedsVisualExtraction bool   `json:"needsVisualExtraction,omitempty"`
}

// GroupItem is one classified tab inside a category group.
type GroupItem struct {
	TabIndex int    `json:"tabIndex"` // 1-based
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// ItemID returns the stable identity dispositions reference: the tab URL, or
// a synthetic tab-<index> id when the URL is absent.
func (g GroupItem) ItemID() string {
	if g.URL != "" {
		return g.URL
	}
	return fmt.Sprintf("tab-%d", g.TabIndex)
}

// TaskSuggestion is the per-category suggested action derived at classify time.
type TaskSuggestion struct {
	Category string `json:"category"`
	Action   string `json:"action"`
	Count    int    `json:"count"`
}

// DeepDiveRequest flags a tab for the pass-2 deep dive.
type DeepDiveRequest struct {
	TabIndex     int      `json:"tabIndex"`
	Reason       string   `json:"reason"`
	ExtractHints []string `json:"extractHints,omitempty"`
}

// DeepDiveResult records the pass-2 outcome per flagged tab.
type DeepDiveResult struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Analysis string `json:"analysis,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Visualization is the pass-3 output.
type Visualization struct {
	Mermaid            string `json:"mermaid,omitempty"`
	Error              string `json:"error,omitempty"`
	FailuresVisualized int    `json:"failuresVisualized"`
}

// ThematicAnalysis is the pass-4 output.
type ThematicAnalysis struct {
	ProjectSupport       map[string]string `json:"projectSupport,omitempty"`
	ThematicThroughlines []string          `json:"thematicThroughlines,omitempty"`
	AlternativeNarrative string            `json:"alternativeNarrative,omitempty"`
	HiddenConnection     string            `json:"hiddenConnection,omitempty"`
	SuggestedActions     []string          `json:"suggestedActions,omitempty"`
	SessionPattern       string            `json:"sessionPattern,omitempty"`
	Error                string            `json:"error,omitempty"`
}

// TabReasoning is the per-tab audit record from pass 1.
type TabReasoning struct {
	Category   string   `json:"category"`
	Signals    []string `json:"signals,omitempty"`
	Confidence string   `json:"confidence,omitempty"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
}

// Reasoning holds the classification audit trail. PerTab is keyed by the
// string form of the 1-based tab index, matching the wire shape.
type Reasoning struct {
	PerTab            map[string]TabReasoning `json:"perTab"`
	OverallConfidence string                  `json:"overallConfidence,omitempty"`
	Uncertainties     []string                `json:"uncertainties,omitempty"`
}

// Usage is the token accounting reported by the model driver.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Meta records provenance and accounting for a classification run.
type Meta struct {
	SchemaVersion int              `json:"schemaVersion"`
	SessionID     string           `json:"sessionId,omitempty"`
	Engine        string           `json:"engine"`
	Model         string           `json:"model,omitempty"`
	Endpoint      string           `json:"endpoint,omitempty"`
	Passes        int              `json:"passes"`
	Timing        map[string]int64 `json:"timing,omitempty"` // milliseconds, keys pass1..pass4 and total
	Usage         *Usage           `json:"usage,omitempty"`
	Cost          float64          `json:"cost,omitempty"`
}

// Disposition action names.
const (
	ActionTrash        = "trash"
	ActionComplete     = "complete"
	ActionRegroup      = "regroup"
	ActionReprioritize = "reprioritize"
	ActionPromote      = "promote"
	ActionDefer        = "defer"
	ActionLater        = "later"
	ActionUndo         = "undo"
)

// AllowedActions is the closed set of disposition actions.
var AllowedActions = map[string]bool{
	ActionTrash:        true,
	ActionComplete:     true,
	ActionRegroup:      true,
	ActionReprioritize: true,
	ActionPromote:      true,
	ActionDefer:        true,
	ActionLater:        true,
	ActionUndo:         true,
}

// Disposition is one append-only user action over a classified item.
type Disposition struct {
	Action   string `json:"action"`
	ItemID   string `json:"itemId"`
	At       string `json:"at"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Target   string `json:"target,omitempty"`
	Priority string `json:"priority,omitempty"`
	Undoes   string `json:"undoes,omitempty"`
	Batch    bool   `json:"batch,omitempty"`
}

// Effort statuses.
const (
	EffortPending   = "pending"
	EffortCompleted = "completed"
	EffortDeferred  = "deferred"
)

// EffortItem records an item inside an effort with its category at creation.
type EffortItem struct {
	ItemID   string `json:"itemId"`
	Category string `json:"category,omitempty"`
}

// Effort is a user-named group of items resolved atomically.
type Effort struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Items       []EffortItem `json:"items"`
	Status      string       `json:"status"`
	CreatedAt   string       `json:"createdAt"`
	CompletedAt string       `json:"completedAt,omitempty"`
	DeferredAt  string       `json:"deferredAt,omitempty"`
}

// TraceEvent is one captured prompt/response exchange, recorded only in
// debug mode.
type TraceEvent struct {
	Pass     int    `json:"pass"`
	Prompt   string `json:"prompt"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SchemaVersion is stamped into meta at creation and never migrated.
const SchemaVersion = 3

// Classification sources.
const (
	SourceLLM  = "llm"
	SourceMock = "mock"
)

// Capture modes.
const (
	ModeResults   = "results"
	ModeLaunchpad = "launchpad"
)

// Artifact is the immutable per-session classification record. Only
// dispositions, efforts, and the computed-once pass-4 fields are appended
// after creation.
type Artifact struct {
	Timestamp        string                 `json:"timestamp"`
	Mode             string                 `json:"mode,omitempty"`
	Source           string                 `json:"source,omitempty"`
	TotalTabs        int                    `json:"totalTabs"`
	ClassifiedCount  int                    `json:"classifiedCount"`
	Narrative        string                 `json:"narrative,omitempty"`
	SessionIntent    string                 `json:"sessionIntent,omitempty"`
	Groups           map[string][]GroupItem `json:"groups"`
	Tasks            []TaskSuggestion       `json:"tasks,omitempty"`
	DeepDive         []DeepDiveRequest      `json:"deepDive,omitempty"`
	DeepDiveResults  []DeepDiveResult       `json:"deepDiveResults,omitempty"`
	Visualization    *Visualization         `json:"visualization,omitempty"`
	ThematicAnalysis *ThematicAnalysis      `json:"thematicAnalysis,omitempty"`
	Reasoning        Reasoning              `json:"reasoning"`
	Meta             Meta                   `json:"meta"`
	Dispositions     []Disposition          `json:"dispositions"`
	Efforts          []Effort               `json:"efforts,omitempty"`
	Attribution      map[string][]string    `json:"attribution,omitempty"`
	Trace            []TraceEvent           `json:"trace,omitempty"`
}

// Items returns every classified item across groups, category included.
func (a *Artifact) Items() []ItemRef {
	var out []ItemRef
	for category, items := range a.Groups {
		for _, item := range items {
			out = append(out, ItemRef{GroupItem: item, Category: category})
		}
	}
	return out
}

// FindItem locates an item by disposition identity, falling back through
// item id, index id, url, and title, mirroring how correction analysis
// resolves historical ids.
func (a *Artifact) FindItem(itemID string) (ItemRef, bool) {
	for category, items := range a.Groups {
		for _, item := range items {
			if item.ItemID() == itemID ||
				fmt.Sprintf("tab-%d", item.TabIndex) == itemID ||
				item.URL == itemID ||
				item.Title == itemID {
				return ItemRef{GroupItem: item, Category: category}, true
			}
		}
	}
	return ItemRef{}, false
}

// ItemRef is a group item paired with the category it currently sits in.
type ItemRef struct {
	GroupItem
	Category string
}

// Summary is the list/search projection of an artifact.
type Summary struct {
	ID             string `json:"id"`
	Timestamp      string `json:"timestamp"`
	TabCount       int    `json:"tabCount"`
	Narrative      string `json:"narrative,omitempty"`
	SessionPattern string `json:"sessionPattern,omitempty"`
}

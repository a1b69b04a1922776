// Package analysis answers longitudinal questions over the whole session
// history: which tabs keep coming back unfinished, which projects are going
// cold, and when the user gets distracted.
package analysis

import (
	"sort"
	"time"

	"memento/internal/logging"
	"memento/internal/session"
	"memento/internal/urlx"
)

// TabOccurrence is one tab flattened out of one session, with the item's
// folded disposition status attached.
type TabOccurrence struct {
	URL              string `json:"url,omitempty"`
	Title            string `json:"title"`
	Category         string `json:"category"`
	SessionID        string `json:"sessionId"`
	SessionTimestamp string `json:"sessionTimestamp"`
	SessionMode      string `json:"sessionMode,omitempty"`
	Status           string `json:"status"`
}

// Aggregate is the flattened, indexed view of every session on disk.
type Aggregate struct {
	Occurrences []TabOccurrence
	ByURL       map[string][]TabOccurrence
	ByDomain    map[string][]TabOccurrence
	ByCategory  map[string][]TabOccurrence
	// ByProject maps project names found in thematicAnalysis.projectSupport
	// to the sessions that mentioned them.
	ByProject map[string][]ProjectMention
}

// ProjectMention records one session's thematic reference to a project.
type ProjectMention struct {
	SessionID        string `json:"sessionId"`
	SessionTimestamp string `json:"sessionTimestamp"`
	Support          string `json:"support"`
	TabCount         int    `json:"tabCount"`
}

// Aggregator flattens the session store for the longitudinal queries.
type Aggregator struct {
	sessions *session.Store
	logger   logging.Logger
}

func NewAggregator(sessions *session.Store) *Aggregator {
	return &Aggregator{sessions: sessions, logger: logging.NewComponentLogger("Analysis")}
}

// Build walks every stored session. Sessions that fail to load are skipped
// with a warning so one corrupt file cannot blind the whole history.
func (a *Aggregator) Build() (*Aggregate, error) {
	summaries, err := a.sessions.List()
	if err != nil {
		return nil, err
	}
	agg := &Aggregate{
		ByURL:      map[string][]TabOccurrence{},
		ByDomain:   map[string][]TabOccurrence{},
		ByCategory: map[string][]TabOccurrence{},
		ByProject:  map[string][]ProjectMention{},
	}
	for _, summary := range summaries {
		artifact, err := a.sessions.Read(summary.ID)
		if err != nil {
			a.logger.Warn("Skipping session %s in aggregate: %v", summary.ID, err)
			continue
		}
		states := session.FoldDispositions(artifact)
		for _, ref := range artifact.Items() {
			occ := TabOccurrence{
				URL:              ref.URL,
				Title:            ref.Title,
				Category:         ref.Category,
				SessionID:        summary.ID,
				SessionTimestamp: artifact.Timestamp,
				SessionMode:      artifact.Mode,
				Status:           session.StatusPending,
			}
			if state, ok := states[ref.ItemID()]; ok {
				occ.Status = state.Status
				occ.Category = state.CurrentCategory
			}
			agg.Occurrences = append(agg.Occurrences, occ)
			if occ.URL != "" {
				agg.ByURL[occ.URL] = append(agg.ByURL[occ.URL], occ)
				if host := urlx.Hostname(occ.URL); host != "" {
					agg.ByDomain[host] = append(agg.ByDomain[host], occ)
				}
			}
			agg.ByCategory[occ.Category] = append(agg.ByCategory[occ.Category], occ)
		}
		if artifact.ThematicAnalysis != nil {
			for project, support := range artifact.ThematicAnalysis.ProjectSupport {
				agg.ByProject[project] = append(agg.ByProject[project], ProjectMention{
					SessionID:        summary.ID,
					SessionTimestamp: artifact.Timestamp,
					Support:          support,
					TabCount:         artifact.TotalTabs,
				})
			}
		}
	}
	return agg, nil
}

// parseTimestamp tolerates fractional seconds alongside plain RFC3339.
func parseTimestamp(ts string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999Z07:00"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// distinctSessions returns the occurrence list deduplicated by session id,
// oldest first.
func distinctSessions(occs []TabOccurrence) []TabOccurrence {
	seen := map[string]bool{}
	var out []TabOccurrence
	for _, occ := range occs {
		if seen[occ.SessionID] {
			continue
		}
		seen[occ.SessionID] = true
		out = append(out, occ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionTimestamp < out[j].SessionTimestamp })
	return out
}

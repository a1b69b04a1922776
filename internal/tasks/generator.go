package tasks

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"memento/internal/analysis"
	"memento/internal/logging"
)

// Task types.
const (
	TypeGhostTab       = "ghost_tab"
	TypeProjectRevival = "project_revival"
	TypeTabBankruptcy  = "tab_bankruptcy"
)

// bankruptcyStaleDays marks a recurring URL as stale for bankruptcy
// purposes; bankruptcyMinAffected is the smallest pile worth declaring over.
const (
	bankruptcyStaleDays   = 14.0
	bankruptcyMinAffected = 5
)

// Task is one suggestion surfaced to the user.
type Task struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Score       float64  `json:"score"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	URL         string   `json:"url,omitempty"`     // ghost_tab
	Project     string   `json:"project,omitempty"` // project_revival
	URLs        []string `json:"urls,omitempty"`    // tab_bankruptcy

	OpenCount          int     `json:"openCount,omitempty"`
	DaysSinceFirstSeen float64 `json:"daysSinceFirstSeen,omitempty"`
	DaysSinceActive    float64 `json:"daysSinceActive,omitempty"`
	TotalTabs          int     `json:"totalTabs,omitempty"`
	AffectedCount      int     `json:"affectedCount,omitempty"`
	AvgDaysStale       float64 `json:"avgDaysStale,omitempty"`
}

// Generator scores candidate tasks out of the longitudinal aggregate and
// filters them against the durable avoid-lists.
type Generator struct {
	analysis *analysis.Aggregator
	blocked  *Blocklist
	deferred *DeferredList
	paused   *PausedProjects
	logger   logging.Logger
}

func NewGenerator(agg *analysis.Aggregator, blocked *Blocklist, deferred *DeferredList, paused *PausedProjects) *Generator {
	return &Generator{
		analysis: agg,
		blocked:  blocked,
		deferred: deferred,
		paused:   paused,
		logger:   logging.NewComponentLogger("TaskGenerator"),
	}
}

func hashID(prefix string, parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s-%x", prefix, h.Sum64())
}

func daysSince(timestamp string, now time.Time) float64 {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return 0
	}
	return now.Sub(t).Hours() / 24
}

// GenerateGhostTabTasks proposes one task per recurring unfinished URL.
func (g *Generator) GenerateGhostTabTasks() ([]Task, error) {
	recurring, err := g.analysis.GetRecurringUnfinished(2, "all")
	if err != nil {
		return nil, err
	}
	blocked, err := g.blocked.All()
	if err != nil {
		return nil, err
	}
	deferred, err := g.deferred.ActiveKeys()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var out []Task
	for _, tab := range recurring {
		if blocked[tab.URL] || deferred[tab.URL] {
			continue
		}
		task := Task{
			ID:                 hashID("ghost", tab.URL),
			Type:               TypeGhostTab,
			Title:              tab.Title,
			URL:                tab.URL,
			OpenCount:          tab.TimesSeen,
			DaysSinceFirstSeen: daysSince(tab.FirstSeen, now),
			Description: fmt.Sprintf("%q has been open in %d sessions without being finished.",
				tab.Title, tab.TimesSeen),
		}
		if deferred[task.ID] {
			continue
		}
		task.Score = 10*float64(task.OpenCount) + 2*task.DaysSinceFirstSeen
		out = append(out, task)
	}
	sortTasks(out)
	return out, nil
}

// GenerateProjectRevivalTasks proposes reviving projects that went quiet.
func (g *Generator) GenerateProjectRevivalTasks() ([]Task, error) {
	health, err := g.analysis.GetProjectHealth(true)
	if err != nil {
		return nil, err
	}
	paused, err := g.paused.Active()
	if err != nil {
		return nil, err
	}
	deferred, err := g.deferred.ActiveKeys()
	if err != nil {
		return nil, err
	}

	var out []Task
	for _, p := range health {
		if p.Status == analysis.HealthActive || paused[p.Project] {
			continue
		}
		task := Task{
			ID:              hashID("revival", p.Project),
			Type:            TypeProjectRevival,
			Title:           p.Project,
			Project:         p.Project,
			DaysSinceActive: p.DaysSinceActive,
			TotalTabs:       p.TotalTabs,
			Description: fmt.Sprintf("Project %q is %s: no activity for %.0f days across %d sessions.",
				p.Project, p.Status, p.DaysSinceActive, p.TotalSessions),
		}
		if deferred[task.ID] {
			continue
		}
		task.Score = 5*p.DaysSinceActive + 2*float64(p.TotalTabs)
		out = append(out, task)
	}
	sortTasks(out)
	return out, nil
}

// GenerateBankruptcyTask proposes clearing the whole stale backlog at once
// when it has grown past the threshold. Returns nil when the pile is small.
func (g *Generator) GenerateBankruptcyTask() (*Task, error) {
	recurring, err := g.analysis.GetRecurringUnfinished(2, "all")
	if err != nil {
		return nil, err
	}
	blocked, err := g.blocked.All()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var urls []string
	var totalStale float64
	for _, tab := range recurring {
		stale := daysSince(tab.LastSeen, now)
		if stale < bankruptcyStaleDays || blocked[tab.URL] {
			continue
		}
		urls = append(urls, tab.URL)
		totalStale += stale
	}
	if len(urls) < bankruptcyMinAffected {
		return nil, nil
	}
	sort.Strings(urls)
	task := &Task{
		ID:            hashID("bankruptcy", urls...),
		Type:          TypeTabBankruptcy,
		Title:         "Declare tab bankruptcy",
		URLs:          urls,
		AffectedCount: len(urls),
		AvgDaysStale:  totalStale / float64(len(urls)),
		Description: fmt.Sprintf("%d tabs have sat unfinished for %.0f days on average.",
			len(urls), totalStale/float64(len(urls))),
	}
	task.Score = 3*float64(task.AffectedCount) + 2*task.AvgDaysStale
	return task, nil
}

// GenerateAll merges every candidate type, highest score first.
func (g *Generator) GenerateAll() ([]Task, error) {
	ghosts, err := g.GenerateGhostTabTasks()
	if err != nil {
		return nil, err
	}
	revivals, err := g.GenerateProjectRevivalTasks()
	if err != nil {
		return nil, err
	}
	out := append(ghosts, revivals...)
	bankruptcy, err := g.GenerateBankruptcyTask()
	if err != nil {
		return nil, err
	}
	if bankruptcy != nil {
		out = append(out, *bankruptcy)
	}
	sortTasks(out)
	return out, nil
}

func sortTasks(ts []Task) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Score != ts[j].Score {
			return ts[i].Score > ts[j].Score
		}
		return ts[i].ID < ts[j].ID
	})
}

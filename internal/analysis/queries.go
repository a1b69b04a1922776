package analysis

import (
	"sort"
	"strings"
	"time"

	"memento/internal/session"
	"memento/internal/urlx"
)

// RecurringTab is a URL seen across several sessions and never completed.
type RecurringTab struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	TimesSeen     int      `json:"timesSeen"`
	FirstSeen     string   `json:"firstSeen"`
	LastSeen      string   `json:"lastSeen"`
	AvgGapDays    float64  `json:"avgGapDays"`
	Categories    []string `json:"categories"`
	SessionIDs    []string `json:"sessionIds"`
	LatestSession string   `json:"latestSession"`
}

// GetRecurringUnfinished finds URLs seen in at least minOccurrences distinct
// sessions with no completion in any of them. timeRange is "all", "week",
// or "month"; anything else means all.
func (a *Aggregator) GetRecurringUnfinished(minOccurrences int, timeRange string) ([]RecurringTab, error) {
	if minOccurrences < 2 {
		minOccurrences = 2
	}
	agg, err := a.Build()
	if err != nil {
		return nil, err
	}
	cutoff := rangeCutoff(timeRange, time.Now())

	var out []RecurringTab
	for url, occs := range agg.ByURL {
		completed := false
		for _, occ := range occs {
			if occ.Status == session.StatusCompleted {
				completed = true
				break
			}
		}
		if completed {
			continue
		}
		sessions := distinctSessions(occs)
		if !cutoff.IsZero() {
			var kept []TabOccurrence
			for _, occ := range sessions {
				if t, ok := parseTimestamp(occ.SessionTimestamp); ok && !t.Before(cutoff) {
					kept = append(kept, occ)
				}
			}
			sessions = kept
		}
		if len(sessions) < minOccurrences {
			continue
		}

		tab := RecurringTab{
			URL:           url,
			Title:         sessions[len(sessions)-1].Title,
			TimesSeen:     len(sessions),
			FirstSeen:     sessions[0].SessionTimestamp,
			LastSeen:      sessions[len(sessions)-1].SessionTimestamp,
			LatestSession: sessions[len(sessions)-1].SessionID,
		}
		categories := map[string]bool{}
		for _, occ := range sessions {
			tab.SessionIDs = append(tab.SessionIDs, occ.SessionID)
			if !categories[occ.Category] {
				categories[occ.Category] = true
				tab.Categories = append(tab.Categories, occ.Category)
			}
		}
		tab.AvgGapDays = averageGapDays(sessions)
		out = append(out, tab)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimesSeen != out[j].TimesSeen {
			return out[i].TimesSeen > out[j].TimesSeen
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

func averageGapDays(sessions []TabOccurrence) float64 {
	var gaps []float64
	var prev time.Time
	for _, occ := range sessions {
		t, ok := parseTimestamp(occ.SessionTimestamp)
		if !ok {
			continue
		}
		if !prev.IsZero() {
			gaps = append(gaps, t.Sub(prev).Hours()/24)
		}
		prev = t
	}
	if len(gaps) == 0 {
		return 0
	}
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	return sum / float64(len(gaps))
}

func rangeCutoff(timeRange string, now time.Time) time.Time {
	switch strings.ToLower(timeRange) {
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

// Project health statuses by days since last activity.
const (
	HealthActive    = "active"    // <= 3 days
	HealthCooling   = "cooling"   // <= 14 days
	HealthNeglected = "neglected" // <= 30 days
	HealthAbandoned = "abandoned"
)

// ProjectHealth summarizes one project's longitudinal activity.
type ProjectHealth struct {
	Project         string  `json:"project"`
	Status          string  `json:"status"`
	FirstSeen       string  `json:"firstSeen"`
	LastSeen        string  `json:"lastSeen"`
	TotalSessions   int     `json:"totalSessions"`
	TotalTabs       int     `json:"totalTabs"`
	DaysSinceActive float64 `json:"daysSinceActive"`
}

func healthStatus(daysSinceActive float64) string {
	switch {
	case daysSinceActive <= 3:
		return HealthActive
	case daysSinceActive <= 14:
		return HealthCooling
	case daysSinceActive <= 30:
		return HealthNeglected
	default:
		return HealthAbandoned
	}
}

// GetProjectHealth reports activity for every project mentioned by thematic
// analysis, sorted most-recently-active first.
func (a *Aggregator) GetProjectHealth(includeAbandoned bool) ([]ProjectHealth, error) {
	agg, err := a.Build()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var out []ProjectHealth
	for project, mentions := range agg.ByProject {
		sort.Slice(mentions, func(i, j int) bool {
			return mentions[i].SessionTimestamp < mentions[j].SessionTimestamp
		})
		health := ProjectHealth{
			Project:       project,
			FirstSeen:     mentions[0].SessionTimestamp,
			LastSeen:      mentions[len(mentions)-1].SessionTimestamp,
			TotalSessions: len(mentions),
		}
		for _, m := range mentions {
			health.TotalTabs += m.TabCount
		}
		if last, ok := parseTimestamp(health.LastSeen); ok {
			health.DaysSinceActive = now.Sub(last).Hours() / 24
		}
		health.Status = healthStatus(health.DaysSinceActive)
		if !includeAbandoned && health.Status == HealthAbandoned {
			continue
		}
		out = append(out, health)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DaysSinceActive != out[j].DaysSinceActive {
			return out[i].DaysSinceActive < out[j].DaysSinceActive
		}
		return out[i].Project < out[j].Project
	})
	return out, nil
}

// distractionCategories is the fixed set of categories that count toward the
// distraction signature.
var distractionCategories = map[string]bool{
	"Entertainment": true,
	"Social Media":  true,
	"Shopping":      true,
	"News":          true,
}

// DistractionSignature aggregates when and where distraction tabs show up.
type DistractionSignature struct {
	TotalTabs     int            `json:"totalTabs"`
	ByDomain      map[string]int `json:"byDomain"`
	ByHour        [24]int        `json:"byHour"`
	ByDay         [7]int         `json:"byDay"` // 0 = Sunday
	ByMode        map[string]int `json:"byMode"`
	PeakHour      int            `json:"peakHour"`
	PeakDay       time.Weekday   `json:"peakDay"`
	TopCategories map[string]int `json:"topCategories"`
}

// GetDistractionSignature aggregates distraction-category tabs within the
// time range, optionally restricted to one capture mode.
func (a *Aggregator) GetDistractionSignature(timeRange, modeFilter string) (*DistractionSignature, error) {
	agg, err := a.Build()
	if err != nil {
		return nil, err
	}
	cutoff := rangeCutoff(timeRange, time.Now())

	sig := &DistractionSignature{
		ByDomain:      map[string]int{},
		ByMode:        map[string]int{},
		TopCategories: map[string]int{},
	}
	for _, occ := range agg.Occurrences {
		if !distractionCategories[occ.Category] {
			continue
		}
		if modeFilter != "" && occ.SessionMode != modeFilter {
			continue
		}
		t, ok := parseTimestamp(occ.SessionTimestamp)
		if !ok {
			continue
		}
		if !cutoff.IsZero() && t.Before(cutoff) {
			continue
		}
		sig.TotalTabs++
		sig.TopCategories[occ.Category]++
		if occ.URL != "" {
			if host := urlx.Hostname(occ.URL); host != "" {
				sig.ByDomain[host]++
			}
		}
		local := t.Local()
		sig.ByHour[local.Hour()]++
		sig.ByDay[int(local.Weekday())]++
		if occ.SessionMode != "" {
			sig.ByMode[occ.SessionMode]++
		}
	}
	for h, n := range sig.ByHour {
		if n > sig.ByHour[sig.PeakHour] {
			sig.PeakHour = h
		}
	}
	peak := 0
	for d, n := range sig.ByDay {
		if n > sig.ByDay[peak] {
			peak = d
		}
	}
	sig.PeakDay = time.Weekday(peak)
	return sig, nil
}

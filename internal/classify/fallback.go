package classify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"memento/internal/session"
)

// categoryPattern scores a tab against one category. URL hits weigh 3,
// title hits 2, content hits 1.
type categoryPattern struct {
	category string
	urls     []string
	keywords []string
}

// fallbackPatterns is ordered; ties resolve to the earliest entry.
var fallbackPatterns = []categoryPattern{
	{"Development", []string{"github.com", "gitlab.com", "stackoverflow.com", "localhost", "pkg.go.dev", "npmjs.com"}, []string{"api", "docs", "error", "bug", "pull request", "repository", "compile"}},
	{"Research", []string{"arxiv.org", "scholar.google", "wikipedia.org", "jstor.org"}, []string{"paper", "study", "research", "analysis", "theory"}},
	{"Shopping", []string{"amazon.", "ebay.", "etsy.com", "aliexpress."}, []string{"cart", "price", "buy", "order", "review", "deal"}},
	{"Social Media", []string{"twitter.com", "x.com", "facebook.com", "instagram.com", "reddit.com", "linkedin.com"}, []string{"feed", "post", "follow", "thread"}},
	{"Entertainment", []string{"youtube.com", "netflix.com", "twitch.tv", "spotify.com"}, []string{"watch", "episode", "trailer", "playlist", "stream"}},
	{"News", []string{"nytimes.com", "bbc.", "reuters.com", "theguardian.com", "news."}, []string{"breaking", "report", "headline", "politics"}},
	{"Communication", []string{"mail.google.com", "outlook.", "slack.com", "discord.com", "zoom.us"}, []string{"inbox", "message", "meeting", "call"}},
	{"Productivity", []string{"notion.so", "trello.com", "calendar.google", "docs.google.com", "linear.app"}, []string{"task", "todo", "plan", "agenda", "spreadsheet"}},
	{"Education", []string{"coursera.org", "udemy.com", "khanacademy.org", "edx.org"}, []string{"course", "lesson", "tutorial", "learn", "lecture"}},
	{"Transaction (Protected)", []string{"checkout", "payment", "billing", "bank"}, []string{"checkout", "payment", "invoice", "confirm order", "booking"}},
	{"Academic (Synthesis)", []string{"zotero.org", "obsidian.md", "roamresearch.com"}, []string{"notes", "synthesis", "bibliography", "citation"}},
	{"Health", []string{"webmd.com", "mayoclinic.org", "nih.gov"}, []string{"symptom", "health", "doctor", "fitness", "diet"}},
	{"Travel", []string{"booking.com", "airbnb.", "expedia.", "maps.google"}, []string{"flight", "hotel", "itinerary", "trip", "visa"}},
}

func scoreTab(tab session.Tab, p categoryPattern) int {
	url := strings.ToLower(tab.URL)
	title := strings.ToLower(tab.Title)
	content := strings.ToLower(tab.Content)
	score := 0
	for _, u := range p.urls {
		if strings.Contains(url, u) {
			score += 3
		}
	}
	for _, k := range p.keywords {
		if strings.Contains(title, k) {
			score += 2
		}
		if content != "" && strings.Contains(content, k) {
			score++
		}
	}
	return score
}

// MockClassify is the deterministic keyword fallback used when the LLM
// pipeline cannot complete. It never fails.
func MockClassify(req Request) *session.Artifact {
	started := time.Now()
	artifact := &session.Artifact{
		Timestamp:       started.UTC().Format(time.RFC3339),
		Mode:            req.Mode,
		Source:          session.SourceMock,
		TotalTabs:       len(req.Tabs),
		ClassifiedCount: len(req.Tabs),
		Groups:          map[string][]session.GroupItem{},
		Reasoning:       session.Reasoning{PerTab: map[string]session.TabReasoning{}},
		Meta: session.Meta{
			SchemaVersion: session.SchemaVersion,
			Engine:        "mock",
			Passes:        1,
			Timing:        map[string]int64{},
		},
		Dispositions: []session.Disposition{},
	}

	for i, tab := range req.Tabs {
		category := "Other"
		best := 0
		for _, p := range fallbackPatterns {
			if s := scoreTab(tab, p); s > best {
				best = s
				category = p.category
			}
		}
		artifact.Groups[category] = append(artifact.Groups[category], session.GroupItem{
			TabIndex: i + 1,
			Title:    tab.Title,
			URL:      tab.URL,
		})
		artifact.Reasoning.PerTab[fmt.Sprintf("%d", i+1)] = session.TabReasoning{
			Category:   category,
			Confidence: "low",
			Title:      tab.Title,
			URL:        tab.URL,
		}
	}

	artifact.Narrative = mockNarrative(artifact.Groups, len(req.Tabs))
	artifact.Tasks = suggestTasks(artifact.Groups)
	artifact.Visualization = &session.Visualization{}
	artifact.ThematicAnalysis = &session.ThematicAnalysis{}
	artifact.Meta.Timing["total"] = time.Since(started).Milliseconds()
	return artifact
}

// mockNarrative summarizes group sizes in descending order.
func mockNarrative(groups map[string][]session.GroupItem, total int) string {
	if total == 0 {
		return "An empty session with no open tabs."
	}
	type bucket struct {
		category string
		count    int
	}
	buckets := make([]bucket, 0, len(groups))
	for category, items := range groups {
		buckets = append(buckets, bucket{category, len(items)})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].category < buckets[j].category
	})
	parts := make([]string, 0, len(buckets))
	for _, b := range buckets {
		parts = append(parts, fmt.Sprintf("%d %s", b.count, b.category))
	}
	return fmt.Sprintf("A session of %d tabs: %s.", total, strings.Join(parts, ", "))
}

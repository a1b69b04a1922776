package classify

import (
	"fmt"
	"strings"

	"memento/internal/session"
)

// BaseCategories is the fixed category set offered on every pass-1 prompt.
// Custom project categories extend it per request.
var BaseCategories = []string{
	"Development",
	"Research",
	"Shopping",
	"Social Media",
	"Entertainment",
	"News",
	"Communication",
	"Productivity",
	"Education",
	"Transaction (Protected)",
	"Academic (Synthesis)",
	"Health",
	"Travel",
	"Other",
}

// Project is one active user project carried in the capture context. Its
// synthesized category label extends the base set.
type Project struct {
	Name         string   `json:"name"`
	Keywords     []string `json:"keywords,omitempty"`
	CategoryType string   `json:"categoryType,omitempty"`
	Status       string   `json:"status,omitempty"`
}

// CategoryLabel synthesizes the prompt-visible category for a project.
func (p Project) CategoryLabel() string {
	kind := p.CategoryType
	if kind == "" {
		kind = "Project"
	}
	return fmt.Sprintf("%s: %s", kind, p.Name)
}

// AppliedPreference is an approved rule annotated with the tabs it matched
// in the current capture.
type AppliedPreference struct {
	RuleID     string `json:"ruleId"`
	Domain     string `json:"domain"`
	Rule       string `json:"rule"`
	TabIndexes []int  `json:"tabIndexes,omitempty"`
}

func contextBlock(projects []Project) string {
	if len(projects) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("ACTIVE PROJECTS (treat the synthesized labels below as extra categories):\n")
	for _, p := range projects {
		line := fmt.Sprintf("- %s", p.CategoryLabel())
		if len(p.Keywords) > 0 {
			line += fmt.Sprintf(" (keywords: %s)", strings.Join(p.Keywords, ", "))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func preferenceBlock(applied []AppliedPreference) string {
	if len(applied) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("LEARNED USER PREFERENCES (apply these over your own judgement):\n")
	for _, p := range applied {
		line := "- " + p.Rule
		if len(p.TabIndexes) > 0 {
			line += fmt.Sprintf(" [matches tab(s) %s]", joinInts(p.TabIndexes))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%d", x)
	}
	return strings.Join(parts, ", ")
}

func tabList(tabs []session.Tab) string {
	var b strings.Builder
	for i, tab := range tabs {
		b.WriteString(fmt.Sprintf("%d. %s | %s\n", i+1, tab.Title, tab.URL))
	}
	return b.String()
}

// buildPass1Prompt emits the classify-and-triage prompt: context, learned
// preferences, numbered tab list, category set, output schema, and the
// special-category policies.
func buildPass1Prompt(tabs []session.Tab, projects []Project, applied []AppliedPreference) string {
	categories := append([]string{}, BaseCategories...)
	for _, p := range projects {
		categories = append(categories, p.CategoryLabel())
	}

	var b strings.Builder
	b.WriteString("You are classifying a snapshot of the user's open browser tabs.\n\n")
	if ctx := contextBlock(projects); ctx != "" {
		b.WriteString(ctx + "\n")
	}
	if prefs := preferenceBlock(applied); prefs != "" {
		b.WriteString(prefs + "\n")
	}
	b.WriteString("TABS:\n")
	b.WriteString(tabList(tabs))
	b.WriteString("\nCATEGORIES (use these exact names):\n")
	for _, c := range categories {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString(`
SPECIAL CATEGORY POLICIES:
- "Transaction (Protected)" marks high-value in-flight transactions (checkout,
  banking, bookings). These items are protected from trashing downstream.
- "Academic (Synthesis)" marks content the user should roll into notes rather
  than keep browsing.

Respond with ONLY a JSON object of this exact shape:
{
  "assignments": {`)
	b.WriteString(fmt.Sprintf(`
    "1": {"category": "...", "signals": ["..."], "confidence": "high|medium|low"},
    ... exactly %d entries, keyed "1" through "%d"
  },
  "narrative": "one-paragraph story of what this session was about",
  "sessionIntent": "the user's apparent goal",
  "deepDive": [{"tabIndex": 1, "reason": "...", "extractHints": ["..."]}],
  "overallConfidence": "high|medium|low",
  "uncertainties": ["..."]
}
`, len(tabs), len(tabs)))
	b.WriteString("Flag a tab for deepDive only when its content genuinely needs closer analysis.\n")
	return b.String()
}

const deepDiveContentLimit = 4000

func buildDeepDivePrompt(tab session.Tab, req session.DeepDiveRequest) string {
	content := tab.Content
	if len(content) > deepDiveContentLimit {
		content = content[:deepDiveContentLimit]
	}
	var b strings.Builder
	b.WriteString("Analyze this single browser tab in depth.\n\n")
	b.WriteString(fmt.Sprintf("URL: %s\nTITLE: %s\nWHY FLAGGED: %s\n", tab.URL, tab.Title, req.Reason))
	if len(req.ExtractHints) > 0 {
		b.WriteString("EXTRACT: " + strings.Join(req.ExtractHints, ", ") + "\n")
	}
	if content != "" {
		b.WriteString("\nPAGE CONTENT:\n" + content + "\n")
	}
	b.WriteString(`
Respond with ONLY a JSON object:
{"analysis": "what this page is, what state the user left it in, and what they likely need from it"}
`)
	return b.String()
}

func buildVisualizationPrompt(artifact *session.Artifact) string {
	var b strings.Builder
	b.WriteString("Draw a Mermaid diagram summarizing this browsing session.\n\n")
	b.WriteString("GROUPS:\n")
	for category, items := range artifact.Groups {
		b.WriteString(fmt.Sprintf("- %s (%d tabs)\n", category, len(items)))
		for _, item := range items {
			b.WriteString(fmt.Sprintf("  %d. %s\n", item.TabIndex, truncateLabel(item.Title, 40)))
		}
	}
	if len(artifact.DeepDiveResults) > 0 {
		b.WriteString("\nDEEP-DIVE INSIGHTS:\n")
		for _, r := range artifact.DeepDiveResults {
			if r.Error != "" {
				b.WriteString(fmt.Sprintf("- %s: FAILED\n", truncateLabel(r.Title, 40)))
			} else {
				b.WriteString(fmt.Sprintf("- %s: %s\n", truncateLabel(r.Title, 40), truncateLabel(r.Analysis, 80)))
			}
		}
	}
	b.WriteString(`
Rules:
- Start with "graph TD" and nothing before it.
- One subgraph per category; node IDs short (T1, T2, ...); labels truncated.
- Dotted lines (-.->) from tabs to their deep-dive insights.
- Style failed deep-dive nodes with fill:#fdd.

Respond with ONLY the Mermaid code, no fences, no commentary.
`)
	return b.String()
}

func truncateLabel(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// buildThematicPrompt has two shapes: a project-aware one when active
// projects exist, and a simplified one otherwise.
func buildThematicPrompt(artifact *session.Artifact, projects []Project) string {
	var b strings.Builder
	b.WriteString("Step back and analyze the themes of this browsing session.\n\n")
	b.WriteString(fmt.Sprintf("NARRATIVE: %s\nINTENT: %s\n\nGROUPS:\n", artifact.Narrative, artifact.SessionIntent))
	for category, items := range artifact.Groups {
		titles := make([]string, 0, len(items))
		for _, item := range items {
			titles = append(titles, truncateLabel(item.Title, 60))
		}
		b.WriteString(fmt.Sprintf("- %s: %s\n", category, strings.Join(titles, "; ")))
	}

	if len(projects) > 0 {
		b.WriteString("\nACTIVE PROJECTS:\n")
		for _, p := range projects {
			b.WriteString("- " + p.CategoryLabel())
			if len(p.Keywords) > 0 {
				b.WriteString(" (keywords: " + strings.Join(p.Keywords, ", ") + ")")
			}
			b.WriteString("\n")
		}
		b.WriteString(`
Respond with ONLY a JSON object:
{
  "projectSupport": {"<project name>": "how this session advanced or stalled it"},
  "thematicThroughlines": ["..."],
  "alternativeNarrative": "...",
  "hiddenConnection": "...",
  "suggestedActions": ["..."],
  "sessionPattern": "focused|scattered|research-spiral|maintenance"
}
`)
		return b.String()
	}

	b.WriteString(`
Respond with ONLY a JSON object:
{
  "thematicThroughlines": ["..."],
  "alternativeNarrative": "...",
  "suggestedActions": ["..."],
  "sessionPattern": "focused|scattered|research-spiral|maintenance"
}
`)
	return b.String()
}

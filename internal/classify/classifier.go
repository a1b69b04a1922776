// Package classify implements the four-pass classification pipeline that
// turns a captured tab list into a session artifact: pass 1 classifies and
// triages, pass 2 deep-dives flagged tabs, pass 3 renders a Mermaid
// overview, pass 4 extracts themes. Passes 2 through 4 recover locally from
// model failures; only a pass-1 failure aborts, and callers then fall back
// to the deterministic mock classifier.
package classify

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"memento/internal/errors"
	"memento/internal/llm"
	"memento/internal/logging"
	"memento/internal/prefs"
	"memento/internal/session"
	"memento/internal/urlx"
)

// UnclassifiedGroup is the synthetic group for tabs the model dropped.
const UnclassifiedGroup = "Unclassified"

const deepDiveConcurrency = 4

// Pricing converts token usage to cost. Zero values fall back to the
// defaults of $1/M input and $5/M output.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

func (p Pricing) orDefaults() Pricing {
	if p.InputPerMTok == 0 {
		p.InputPerMTok = 1.0
	}
	if p.OutputPerMTok == 0 {
		p.OutputPerMTok = 5.0
	}
	return p
}

// Request is one classification job.
type Request struct {
	Tabs      []session.Tab
	Engine    string
	Projects  []Project
	DebugMode bool
	Mode      string
}

// Classifier orchestrates the passes against a model runner. The preference
// store is optional; without it no learned rules are injected.
type Classifier struct {
	runner  llm.Runner
	rules   *prefs.Store
	pricing Pricing
	logger  logging.Logger
}

func New(runner llm.Runner, rules *prefs.Store) *Classifier {
	return &Classifier{
		runner:  runner,
		rules:   rules,
		pricing: Pricing{}.orDefaults(),
		logger:  logging.NewComponentLogger("Classifier"),
	}
}

// WithPricing overrides the cost model.
func (c *Classifier) WithPricing(p Pricing) *Classifier {
	c.pricing = p.orDefaults()
	return c
}

// run tracks per-job accounting across passes.
type run struct {
	mu           sync.Mutex
	inputTokens  int
	outputTokens int
	trace        []session.TraceEvent
	debug        bool
}

func (r *run) record(pass int, prompt string, result *llm.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if result != nil {
		if result.Usage != nil {
			r.inputTokens += result.Usage.InputTokens
			r.outputTokens += result.Usage.OutputTokens
		} else {
			r.inputTokens += EstimateTokens(prompt)
			r.outputTokens += EstimateTokens(result.Text)
		}
	}
	if !r.debug {
		return
	}
	ev := session.TraceEvent{Pass: pass, Prompt: prompt}
	if result != nil {
		ev.Response = result.Text
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.trace = append(r.trace, ev)
}

func (c *Classifier) call(ctx context.Context, r *run, pass int, engine, prompt string) (string, error) {
	result, err := c.runner.Run(ctx, engine, prompt)
	r.record(pass, prompt, result, err)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// pass1Response is the wire shape of the classify-and-triage answer.
type pass1Response struct {
	Assignments       map[string]assignment     `json:"assignments"`
	Narrative         string                    `json:"narrative"`
	SessionIntent     string                    `json:"sessionIntent"`
	DeepDive          []session.DeepDiveRequest `json:"deepDive"`
	OverallConfidence string                    `json:"overallConfidence"`
	Uncertainties     []string                  `json:"uncertainties"`
}

type deepDiveResponse struct {
	Analysis string `json:"analysis"`
}

// Classify runs the full pipeline. A pass-1 failure is returned as an error;
// failures on later passes are recorded in the artifact and do not abort.
func (c *Classifier) Classify(ctx context.Context, req Request) (*session.Artifact, error) {
	started := time.Now()
	info, err := c.runner.GetEngineInfo(req.Engine)
	if err != nil {
		return nil, err
	}

	artifact := &session.Artifact{
		Timestamp: started.UTC().Format(time.RFC3339),
		Mode:      req.Mode,
		Source:    session.SourceLLM,
		TotalTabs: len(req.Tabs),
		Groups:    map[string][]session.GroupItem{},
		Reasoning: session.Reasoning{PerTab: map[string]session.TabReasoning{}},
		Meta: session.Meta{
			SchemaVersion: session.SchemaVersion,
			Engine:        info.Engine,
			Model:         info.Model,
			Endpoint:      info.Endpoint,
			Timing:        map[string]int64{},
		},
		Dispositions: []session.Disposition{},
	}

	if len(req.Tabs) == 0 {
		artifact.Visualization = &session.Visualization{}
		artifact.ThematicAnalysis = &session.ThematicAnalysis{}
		artifact.Meta.Passes = 1
		artifact.Meta.Timing["total"] = time.Since(started).Milliseconds()
		return artifact, nil
	}

	applied := c.loadPreferences(req.Tabs)
	r := &run{debug: req.DebugMode}

	if err := c.pass1(ctx, r, req, applied, artifact); err != nil {
		return nil, err
	}
	c.pass2(ctx, r, req, artifact)
	c.pass3(ctx, r, req, artifact)
	c.pass4(ctx, r, req, artifact)

	artifact.Meta.Passes = 4
	artifact.Meta.Timing["total"] = time.Since(started).Milliseconds()
	usage := &session.Usage{InputTokens: r.inputTokens, OutputTokens: r.outputTokens}
	artifact.Meta.Usage = usage
	artifact.Meta.Cost = float64(usage.InputTokens)/1e6*c.pricing.InputPerMTok +
		float64(usage.OutputTokens)/1e6*c.pricing.OutputPerMTok

	if req.DebugMode {
		artifact.Trace = r.trace
		artifact.Attribution = BuildAttribution(req.Tabs, req.Projects)
	}
	c.markApplied(applied)
	return artifact, nil
}

// loadPreferences fetches approved rules and matches each rule's domain
// against the tab URLs. A failing store is a warning, never a failure.
func (c *Classifier) loadPreferences(tabs []session.Tab) []AppliedPreference {
	if c.rules == nil {
		return nil
	}
	rules, err := c.rules.GetApprovedRules()
	if err != nil {
		c.logger.Warn("Skipping learned preferences: %v", err)
		return nil
	}
	applied := make([]AppliedPreference, 0, len(rules))
	for _, rule := range rules {
		p := AppliedPreference{RuleID: rule.ID, Domain: rule.Domain, Rule: rule.Rule}
		if rule.Domain != "" {
			for i, tab := range tabs {
				if urlx.MatchesDomain(urlx.Hostname(tab.URL), rule.Domain) {
					p.TabIndexes = append(p.TabIndexes, i+1)
				}
			}
		}
		applied = append(applied, p)
	}
	return applied
}

func (c *Classifier) markApplied(applied []AppliedPreference) {
	if c.rules == nil {
		return
	}
	var ids []string
	for _, p := range applied {
		if len(p.TabIndexes) > 0 {
			ids = append(ids, p.RuleID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := c.rules.IncrementApplications(ids); err != nil {
		c.logger.Warn("Could not record preference applications: %v", err)
	}
}

func (c *Classifier) pass1(ctx context.Context, r *run, req Request, applied []AppliedPreference, artifact *session.Artifact) error {
	began := time.Now()
	defer func() { artifact.Meta.Timing["pass1"] = time.Since(began).Milliseconds() }()

	text, err := c.call(ctx, r, 1, req.Engine, buildPass1Prompt(req.Tabs, req.Projects, applied))
	if err != nil {
		return err
	}
	var resp pass1Response
	if err := ParseLooseJSON(text, &resp); err != nil {
		return err
	}

	var missing []int
	for i, tab := range req.Tabs {
		key := strconv.Itoa(i + 1)
		a, ok := resp.Assignments[key]
		category := a.Category
		if !ok || category == "" {
			missing = append(missing, i+1)
			category = UnclassifiedGroup
		}
		artifact.Groups[category] = append(artifact.Groups[category], session.GroupItem{
			TabIndex: i + 1,
			Title:    tab.Title,
			URL:      tab.URL,
		})
		artifact.Reasoning.PerTab[key] = session.TabReasoning{
			Category:   category,
			Signals:    a.Signals,
			Confidence: a.Confidence,
			Title:      tab.Title,
			URL:        tab.URL,
		}
	}
	if len(missing) > 0 {
		c.logger.Warn("Model dropped %d of %d tabs, forced to %s: %v",
			len(missing), len(req.Tabs), UnclassifiedGroup, missing)
	}

	artifact.ClassifiedCount = len(req.Tabs) - len(missing)
	artifact.Narrative = resp.Narrative
	artifact.SessionIntent = resp.SessionIntent
	artifact.Reasoning.OverallConfidence = resp.OverallConfidence
	artifact.Reasoning.Uncertainties = resp.Uncertainties
	for _, dd := range resp.DeepDive {
		if dd.TabIndex >= 1 && dd.TabIndex <= len(req.Tabs) {
			artifact.DeepDive = append(artifact.DeepDive, dd)
		} else {
			c.logger.Warn("Ignoring deep-dive request for out-of-range tab %d", dd.TabIndex)
		}
	}
	artifact.Tasks = suggestTasks(artifact.Groups)
	return nil
}

// pass2 deep-dives each flagged tab concurrently. Per-tab failures are
// recorded in place and never abort the pass.
func (c *Classifier) pass2(ctx context.Context, r *run, req Request, artifact *session.Artifact) {
	began := time.Now()
	defer func() { artifact.Meta.Timing["pass2"] = time.Since(began).Milliseconds() }()

	if len(artifact.DeepDive) == 0 {
		return
	}
	results := make([]session.DeepDiveResult, len(artifact.DeepDive))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deepDiveConcurrency)
	for i, dd := range artifact.DeepDive {
		g.Go(func() error {
			tab := req.Tabs[dd.TabIndex-1]
			result := session.DeepDiveResult{URL: tab.URL, Title: tab.Title}
			text, err := c.call(gctx, r, 2, req.Engine, buildDeepDivePrompt(tab, dd))
			if err == nil {
				var resp deepDiveResponse
				err = ParseLooseJSON(text, &resp)
				result.Analysis = resp.Analysis
			}
			if err != nil {
				result.Error = err.Error()
				c.logger.Warn("Deep dive failed for tab %d (%s): %v", dd.TabIndex, tab.URL, err)
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	artifact.DeepDiveResults = results
}

func (c *Classifier) pass3(ctx context.Context, r *run, req Request, artifact *session.Artifact) {
	began := time.Now()
	defer func() { artifact.Meta.Timing["pass3"] = time.Since(began).Milliseconds() }()

	viz := &session.Visualization{}
	for _, dd := range artifact.DeepDiveResults {
		if dd.Error != "" {
			viz.FailuresVisualized++
		}
	}
	text, err := c.call(ctx, r, 3, req.Engine, buildVisualizationPrompt(artifact))
	if err != nil {
		viz.Error = err.Error()
	} else {
		diagram := CleanResponse(text)
		if ValidMermaid(diagram) {
			viz.Mermaid = diagram
		} else {
			viz.Error = "response is not a mermaid graph"
			c.logger.Warn("Discarding invalid visualization (starts %q)", truncateLabel(diagram, 40))
		}
	}
	artifact.Visualization = viz
}

func (c *Classifier) pass4(ctx context.Context, r *run, req Request, artifact *session.Artifact) {
	began := time.Now()
	defer func() { artifact.Meta.Timing["pass4"] = time.Since(began).Milliseconds() }()
	artifact.ThematicAnalysis = c.thematic(ctx, r, req.Engine, artifact, req.Projects)
}

func (c *Classifier) thematic(ctx context.Context, r *run, engine string, artifact *session.Artifact, projects []Project) *session.ThematicAnalysis {
	ta := &session.ThematicAnalysis{}
	text, err := c.call(ctx, r, 4, engine, buildThematicPrompt(artifact, projects))
	if err == nil {
		err = ParseLooseJSON(text, ta)
	}
	if err != nil {
		*ta = session.ThematicAnalysis{Error: err.Error()}
		c.logger.Warn("Thematic analysis failed: %v", err)
	}
	return ta
}

// Rethematize re-runs only the thematic pass over an existing artifact,
// returning a copy with the fresh analysis. Used by the reclassification
// flow; the caller persists the copy.
func (c *Classifier) Rethematize(ctx context.Context, engine string, artifact *session.Artifact, projects []Project) (*session.Artifact, error) {
	if artifact == nil {
		return nil, errors.InvalidArgumentf("artifact is required")
	}
	if _, err := c.runner.GetEngineInfo(engine); err != nil {
		return nil, err
	}
	began := time.Now()
	r := &run{}
	copied := *artifact
	copied.ThematicAnalysis = c.thematic(ctx, r, engine, artifact, projects)
	// The shallow copy shares Timing with the input, which callers keep
	// cached; replace it before writing.
	timing := make(map[string]int64, len(artifact.Meta.Timing)+1)
	for pass, ms := range artifact.Meta.Timing {
		timing[pass] = ms
	}
	timing["pass4"] = time.Since(began).Milliseconds()
	copied.Meta.Timing = timing
	return &copied, nil
}

// suggestTasks derives one suggested action per category from group sizes.
func suggestTasks(groups map[string][]session.GroupItem) []session.TaskSuggestion {
	var tasks []session.TaskSuggestion
	for category, items := range groups {
		if len(items) == 0 || category == UnclassifiedGroup {
			continue
		}
		action := "review"
		switch category {
		case "Shopping":
			action = "decide or close"
		case "Transaction (Protected)":
			action = "finish transaction"
		case "Academic (Synthesis)":
			action = "roll into notes"
		case "Entertainment", "Social Media":
			action = "close"
		}
		tasks = append(tasks, session.TaskSuggestion{Category: category, Action: action, Count: len(items)})
	}
	return tasks
}

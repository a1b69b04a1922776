package server

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"memento/internal/errors"
	"memento/internal/prefs"
	"memento/internal/tasks"
	"memento/internal/themes"
)

func (s *Server) handleListSessions(c *gin.Context) {
	summaries, err := s.deps.Sessions.List()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, summaries)
}

func (s *Server) handleGetSession(c *gin.Context) {
	view, err := s.deps.Sessions.GetSessionWithDispositions(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, view)
}

func (s *Server) handleGetSessionApplied(c *gin.Context) {
	view, err := s.deps.Sessions.GetSessionWithDispositionsApplied(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, view)
}

func (s *Server) handleSearch(c *gin.Context) {
	results, err := s.deps.Sessions.Search(c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, results)
}

// handleGetPreferences returns stored rules, the rejected ids, and fresh
// suggestions mined from the disposition history.
func (s *Server) handleGetPreferences(c *gin.Context) {
	rules, rejected, err := s.deps.Rules.GetAllRules()
	if err != nil {
		fail(c, err)
		return
	}
	suggestions, err := s.deps.Analyzer.GenerateRuleSuggestions(2)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"rules":       rules,
		"rejected":    rejected,
		"suggestions": suggestions,
	})
}

func (s *Server) handleApprovePreference(c *gin.Context) {
	id := c.Param("id")
	var rule prefs.Rule
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&rule); err != nil {
			badRequest(c, err)
			return
		}
	}
	if rule.Domain == "" || rule.Rule == "" {
		// Approving a bare id adopts the current suggestion for it.
		suggestions, err := s.deps.Analyzer.GenerateRuleSuggestions(2)
		if err != nil {
			fail(c, err)
			return
		}
		found := false
		for _, sug := range suggestions {
			if sug.ID == id {
				rule = prefs.Rule{
					Domain:     sug.Domain,
					Rule:       sug.Rule,
					Confidence: sug.Confidence,
					Stats: prefs.RuleStats{
						TotalCorrections: sug.CorrectionCount,
						AgreementRatio:   sug.Confidence,
						TargetCategory:   sug.TargetCategory,
					},
					SourceCorrections: sug.SourceCorrections,
				}
				found = true
				break
			}
		}
		if !found {
			fail(c, errors.NotFoundf("no suggestion with id %s", id))
			return
		}
	}
	approved, err := s.deps.Rules.ApproveRule(id, rule)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, approved)
}

func (s *Server) handleRejectPreference(c *gin.Context) {
	if err := s.deps.Rules.RejectRule(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "rule rejected")
}

func (s *Server) handleUnapprovePreference(c *gin.Context) {
	if err := s.deps.Rules.UnapproveRule(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "rule unapproved")
}

func (s *Server) handleGetDomainRules(c *gin.Context) {
	rules, err := s.deps.DomainRules.GetRules()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rules)
}

func (s *Server) handleSetDomainRule(c *gin.Context) {
	var req struct {
		Signal string `json:"signal"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.deps.DomainRules.SetRule(c.Param("host"), req.Signal, req.Reason, prefs.SourceUser); err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "domain rule set")
}

func (s *Server) handleRecurring(c *gin.Context) {
	minOccurrences := 2
	if raw := c.Query("min"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			minOccurrences = n
		}
	}
	recurring, err := s.deps.Aggregator.GetRecurringUnfinished(minOccurrences, c.DefaultQuery("range", "all"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, recurring)
}

func (s *Server) handleProjectHealth(c *gin.Context) {
	includeAbandoned := c.DefaultQuery("includeAbandoned", "true") != "false"
	health, err := s.deps.Aggregator.GetProjectHealth(includeAbandoned)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, health)
}

func (s *Server) handleDistraction(c *gin.Context) {
	sig, err := s.deps.Aggregator.GetDistractionSignature(
		c.DefaultQuery("range", "all"), c.Query("mode"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sig)
}

func (s *Server) handleThemes(c *gin.Context) {
	proposals, err := s.deps.Detector.GetThemeProposals()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, proposals)
}

func (s *Server) handleThemeFeedback(c *gin.Context) {
	var fb themes.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		badRequest(c, err)
		return
	}
	fb.ThemeID = c.Param("id")
	if err := s.deps.Detector.RecordFeedback(fb); err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "feedback recorded")
}

func (s *Server) handleTasks(c *gin.Context) {
	generated, err := s.deps.Generator.GenerateAll()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, generated)
}

// taskActionRequest names the task and the verb to apply to it.
type taskActionRequest struct {
	Action string     `json:"action"`
	Task   tasks.Task `json:"task"`
	Hours  int        `json:"hours,omitempty"`
	Days   int        `json:"days,omitempty"`
}

func (s *Server) handleTaskAction(c *gin.Context) {
	var req taskActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	runner := s.deps.TaskRunner
	var err error
	var data any
	switch req.Action {
	case "engage":
		switch req.Task.Type {
		case tasks.TypeGhostTab:
			err = runner.EngageGhostTab(&req.Task)
		case tasks.TypeProjectRevival:
			data, err = runner.EngageProject(&req.Task)
		default:
			err = errors.InvalidArgumentf("cannot engage task type %s", req.Task.Type)
		}
	case "release":
		err = runner.ReleaseGhostTab(&req.Task)
	case "defer":
		err = runner.DeferGhostTab(&req.Task, req.Hours)
	case "pause":
		err = runner.PauseProject(&req.Task, req.Days)
	case "bankruptcy":
		err = runner.DeclareBankruptcy(&req.Task)
	case "skip":
		err = runner.Skip(&req.Task)
	default:
		err = errors.InvalidArgumentf("unknown task action: %s", req.Action)
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, data)
}

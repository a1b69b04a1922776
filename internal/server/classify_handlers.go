package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"memento/internal/classify"
	"memento/internal/config"
	"memento/internal/errors"
	"memento/internal/session"
)

// classifyRequest is the extension capture payload.
type classifyRequest struct {
	Tabs    []session.Tab `json:"tabs"`
	Engine  string        `json:"engine"`
	Context *struct {
		ActiveProjects []classify.Project `json:"activeProjects"`
	} `json:"context"`
	DebugMode bool   `json:"debugMode"`
	Mode      string `json:"mode"`
}

// handleClassify runs the pipeline, falls back to the deterministic
// classifier when the LLM path fails, and persists the artifact either way.
// The response carries meta.sessionId when the store accepted the write;
// a store failure still returns the classification, just unpersisted.
func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = session.ModeResults
	}
	// A held lock means another launchpad is open; reject before spending
	// a model run on a capture that cannot take the lock anyway.
	if mode == session.ModeLaunchpad {
		if status := s.deps.Locks.GetLockStatus(); status.Locked {
			fail(c, errors.AlreadyLockedf("launchpad session %s is still open", status.SessionID))
			return
		}
	}
	engine := req.Engine
	if engine == "" {
		engine = s.deps.Config.DefaultEngine
	}

	job := classify.Request{
		Tabs:      req.Tabs,
		Engine:    engine,
		DebugMode: req.DebugMode || s.deps.Config.Debug,
		Mode:      mode,
	}
	if req.Context != nil {
		job.Projects = req.Context.ActiveProjects
	}
	if len(job.Projects) == 0 {
		job.Projects = s.activeProjects()
	}

	started := time.Now()
	artifact, err := s.deps.Classifier.Classify(c.Request.Context(), job)
	if err != nil {
		s.logger.Warn("LLM classification failed, using fallback: %v", err)
		artifact = classify.MockClassify(job)
	}
	s.metrics.classifyTime.Observe(time.Since(started).Seconds())
	s.metrics.classifications.WithLabelValues(artifact.Source).Inc()

	// A store failure must not cost the caller the finished classification:
	// return the artifact without a session id and skip the lock.
	sessionID, err := s.deps.Sessions.Save(artifact)
	if err != nil {
		s.logger.Warn("Session not persisted, returning artifact anyway: %v", err)
		artifact.Meta.SessionID = ""
		ok(c, artifact)
		return
	}
	if mode == session.ModeLaunchpad {
		if _, err := s.deps.Locks.AcquireLock(sessionID, groupedItemCount(artifact)); err != nil {
			fail(c, err)
			return
		}
	}
	ok(c, artifact)
}

// groupedItemCount is the number of items a launchpad view will show,
// including tabs the model left unclassified. The lock's itemsRemaining
// starts here so it agrees with the view's unresolvedCount.
func groupedItemCount(artifact *session.Artifact) int {
	n := 0
	for _, items := range artifact.Groups {
		n += len(items)
	}
	return n
}

// activeProjects pulls projects from the user context file when the capture
// itself carried none. Stale contexts are ignored.
func (s *Server) activeProjects() []classify.Project {
	ctx, stale, err := config.LoadUserContext(s.deps.Config.ContextFile)
	if err != nil {
		s.logger.Warn("User context unavailable: %v", err)
		return nil
	}
	if ctx == nil || stale {
		return nil
	}
	return ctx.ActiveProjects
}

// handleReclassify re-runs the thematic pass over a stored session and
// persists the result as a reclassification artifact.
func (s *Server) handleReclassify(c *gin.Context) {
	sessionID := c.Param("id")
	var req struct {
		Engine string `json:"engine"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	engine := req.Engine
	if engine == "" {
		engine = s.deps.Config.DefaultEngine
	}

	artifact, err := s.deps.Sessions.Read(sessionID)
	if err != nil {
		fail(c, err)
		return
	}
	updated, err := s.deps.Classifier.Rethematize(c.Request.Context(), engine, artifact, s.activeProjects())
	if err != nil {
		fail(c, err)
		return
	}
	path, err := s.deps.Sessions.SaveReclassification(sessionID, updated)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"artifact": updated, "savedAs": path})
}

package server

import (
	"github.com/gin-gonic/gin"

	"memento/internal/errors"
	"memento/internal/session"
)

func (s *Server) handleAcquireLock(c *gin.Context) {
	var req struct {
		SessionID      string `json:"sessionId"`
		ItemsRemaining int    `json:"itemsRemaining"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := s.deps.Locks.AcquireLock(req.SessionID, req.ItemsRemaining); err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "lock acquired")
}

func (s *Server) handleLockStatus(c *gin.Context) {
	ok(c, s.deps.Locks.GetLockStatus())
}

func (s *Server) handleDisposition(c *gin.Context) {
	sessionID := c.Param("id")
	var d session.Disposition
	if err := c.ShouldBindJSON(&d); err != nil {
		badRequest(c, err)
		return
	}
	stamped, err := s.deps.Sessions.AppendDisposition(sessionID, d)
	if err != nil {
		fail(c, err)
		return
	}
	s.metrics.dispositions.WithLabelValues(stamped.Action).Inc()
	s.afterDisposition(sessionID)
	ok(c, stamped)
}

func (s *Server) handleBatchDisposition(c *gin.Context) {
	sessionID := c.Param("id")
	var req struct {
		Dispositions []session.Disposition `json:"dispositions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	stamped, err := s.deps.Sessions.AppendBatchDisposition(sessionID, req.Dispositions)
	if err != nil {
		fail(c, err)
		return
	}
	for _, d := range stamped {
		s.metrics.dispositions.WithLabelValues(d.Action).Inc()
	}
	s.afterDisposition(sessionID)
	ok(c, stamped)
}

// afterDisposition refreshes the lock's remaining-item count when the
// session holds the lock. Best effort; the count is advisory.
func (s *Server) afterDisposition(sessionID string) {
	status := s.deps.Locks.GetLockStatus()
	if !status.Locked || status.SessionID != sessionID {
		return
	}
	view, err := s.deps.Sessions.GetSessionWithDispositions(sessionID)
	if err != nil {
		return
	}
	if err := s.deps.Locks.UpdateItemsRemaining(view.UnresolvedCount); err != nil {
		s.logger.Warn("Could not update lock items remaining: %v", err)
	}
}

// handleClearLock validates every item is resolved before releasing.
func (s *Server) handleClearLock(c *gin.Context) {
	sessionID := c.Param("id")
	var req struct {
		Override bool `json:"override"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if !req.Override {
		view, err := s.deps.Sessions.GetSessionWithDispositions(sessionID)
		if err != nil {
			fail(c, err)
			return
		}
		if !view.AllResolved {
			fail(c, errors.PreconditionFailedf("%d items still unresolved", view.UnresolvedCount))
			return
		}
	}
	if err := s.deps.Locks.ClearLock(sessionID, req.Override); err != nil {
		fail(c, err)
		return
	}
	okMessage(c, "lock cleared")
}

func (s *Server) handleCreateEffort(c *gin.Context) {
	sessionID := c.Param("id")
	var req struct {
		Name  string   `json:"name"`
		Items []string `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	items := make([]session.EffortItem, 0, len(req.Items))
	for _, id := range req.Items {
		items = append(items, session.EffortItem{ItemID: id})
	}
	effort, err := s.deps.Sessions.CreateEffort(sessionID, req.Name, items)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, effort)
}

func (s *Server) handleCompleteEffort(c *gin.Context) {
	effort, err := s.deps.Sessions.CompleteEffort(c.Param("id"), c.Param("eid"))
	if err != nil {
		fail(c, err)
		return
	}
	s.afterDisposition(c.Param("id"))
	ok(c, effort)
}

func (s *Server) handleDeferEffort(c *gin.Context) {
	effort, err := s.deps.Sessions.DeferEffort(c.Param("id"), c.Param("eid"))
	if err != nil {
		fail(c, err)
		return
	}
	s.afterDisposition(c.Param("id"))
	ok(c, effort)
}

package tasks

import (
	"sort"
	"time"

	"memento/internal/errors"
	"memento/internal/logging"
	"memento/internal/session"
)

// Durations for the avoidance actions.
const (
	DefaultDeferHours = 24
	DefaultPauseDays  = 30
	SkipDuration      = time.Hour
)

// Runner executes task actions, writing their durable effects through the
// session store and the avoid-lists, and appending every outcome to the
// task log.
type Runner struct {
	sessions *session.Store
	blocked  *Blocklist
	deferred *DeferredList
	paused   *PausedProjects
	log      *TaskLog
	logger   logging.Logger
}

func NewRunner(sessions *session.Store, blocked *Blocklist, deferred *DeferredList, paused *PausedProjects, log *TaskLog) *Runner {
	return &Runner{
		sessions: sessions,
		blocked:  blocked,
		deferred: deferred,
		paused:   paused,
		log:      log,
		logger:   logging.NewComponentLogger("TaskActions"),
	}
}

func (r *Runner) logAction(task *Task, action, outcome string) {
	entry := LogEntry{Action: action, Outcome: outcome, Task: task}
	if task != nil {
		entry.TaskID = task.ID
		entry.TaskType = task.Type
	}
	if err := r.log.Append(entry); err != nil {
		r.logger.Warn("Task log append failed: %v", err)
	}
}

// sessionsContaining returns ids of every session holding the URL, newest
// first.
func (r *Runner) sessionsContaining(url string) ([]string, error) {
	summaries, err := r.sessions.List()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, summary := range summaries {
		artifact, err := r.sessions.Read(summary.ID)
		if err != nil {
			r.logger.Warn("Skipping session %s while resolving %s: %v", summary.ID, url, err)
			continue
		}
		if _, ok := artifact.FindItem(url); ok {
			ids = append(ids, summary.ID)
		}
	}
	return ids, nil
}

// EngageGhostTab marks the URL complete in its most recent session and
// defers it for a day so the task list moves on.
func (r *Runner) EngageGhostTab(task *Task) error {
	if task == nil || task.URL == "" {
		return errors.InvalidArgumentf("ghost tab task needs a url")
	}
	ids, err := r.sessionsContaining(task.URL)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.NotFoundf("no session contains %s", task.URL)
	}
	if _, err := r.sessions.AppendDisposition(ids[0], session.Disposition{
		Action: session.ActionComplete,
		ItemID: task.URL,
	}); err != nil {
		return err
	}
	if err := r.deferred.Defer(task.URL, DefaultDeferHours*time.Hour); err != nil {
		return err
	}
	r.logAction(task, "engage", "completed in "+ids[0])
	return nil
}

// ReleaseGhostTab trashes the URL in every session that contains it and
// blocklists it for good.
func (r *Runner) ReleaseGhostTab(task *Task) error {
	if task == nil || task.URL == "" {
		return errors.InvalidArgumentf("ghost tab task needs a url")
	}
	ids, err := r.sessionsContaining(task.URL)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.NotFoundf("no session contains %s", task.URL)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := r.sessions.AppendDisposition(id, session.Disposition{
			Action: session.ActionTrash,
			ItemID: task.URL,
		}); err != nil {
			return err
		}
	}
	if err := r.blocked.Add(task.URL, "released"); err != nil {
		return err
	}
	r.logAction(task, "release", "trashed everywhere, blocklisted")
	return nil
}

// DeferGhostTab hides the URL for the given hours (default 24).
func (r *Runner) DeferGhostTab(task *Task, hours int) error {
	if task == nil || task.URL == "" {
		return errors.InvalidArgumentf("ghost tab task needs a url")
	}
	if hours <= 0 {
		hours = DefaultDeferHours
	}
	if err := r.deferred.Defer(task.URL, time.Duration(hours)*time.Hour); err != nil {
		return err
	}
	r.logAction(task, "defer", "deferred")
	return nil
}

// EngageProject records engagement with the most recent session that
// mentioned the project.
func (r *Runner) EngageProject(task *Task) (string, error) {
	if task == nil || task.Project == "" {
		return "", errors.InvalidArgumentf("project task needs a project")
	}
	summaries, err := r.sessions.List()
	if err != nil {
		return "", err
	}
	for _, summary := range summaries {
		artifact, err := r.sessions.Read(summary.ID)
		if err != nil {
			continue
		}
		if artifact.ThematicAnalysis != nil {
			if _, ok := artifact.ThematicAnalysis.ProjectSupport[task.Project]; ok {
				r.logAction(task, "engage", "resumed via "+summary.ID)
				return summary.ID, nil
			}
		}
	}
	return "", errors.NotFoundf("no session mentions project %s", task.Project)
}

// PauseProject hides the project's revival tasks for the given days
// (default 30).
func (r *Runner) PauseProject(task *Task, days int) error {
	if task == nil || task.Project == "" {
		return errors.InvalidArgumentf("project task needs a project")
	}
	if days <= 0 {
		days = DefaultPauseDays
	}
	if err := r.paused.Pause(task.Project, time.Duration(days)*24*time.Hour); err != nil {
		return err
	}
	r.logAction(task, "pause", "paused")
	return nil
}

// DeclareBankruptcy blocklists every stale URL carried by the task.
func (r *Runner) DeclareBankruptcy(task *Task) error {
	if task == nil || len(task.URLs) == 0 {
		return errors.InvalidArgumentf("bankruptcy task needs urls")
	}
	for _, url := range task.URLs {
		if err := r.blocked.Add(url, "bankruptcy"); err != nil {
			return err
		}
	}
	r.logAction(task, "bankruptcy", "blocklisted stale backlog")
	return nil
}

// Skip defers any task for one hour.
func (r *Runner) Skip(task *Task) error {
	if task == nil || task.ID == "" {
		return errors.InvalidArgumentf("task id is required")
	}
	key := task.ID
	if task.URL != "" {
		key = task.URL
	}
	if err := r.deferred.Defer(key, SkipDuration); err != nil {
		return err
	}
	r.logAction(task, "skip", "deferred one hour")
	return nil
}

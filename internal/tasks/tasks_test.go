package tasks

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memento/internal/analysis"
	"memento/internal/session"
)

type fixture struct {
	sessions  *session.Store
	generator *Generator
	runner    *Runner
	blocked   *Blocklist
	deferred  *DeferredList
	paused    *PausedProjects
	log       *TaskLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	sessions := session.NewStore(filepath.Join(dir, "sessions"))
	blocked := NewBlocklist(filepath.Join(dir, "released-urls.json"))
	deferred := NewDeferredList(filepath.Join(dir, "deferred-tasks.json"))
	paused := NewPausedProjects(filepath.Join(dir, "paused-projects.json"))
	log := NewTaskLog(filepath.Join(dir, "task-log.json"))
	agg := analysis.NewAggregator(sessions)
	return &fixture{
		sessions:  sessions,
		generator: NewGenerator(agg, blocked, deferred, paused),
		runner:    NewRunner(sessions, blocked, deferred, paused, log),
		blocked:   blocked,
		deferred:  deferred,
		paused:    paused,
		log:       log,
	}
}

func (f *fixture) seedSession(t *testing.T, age time.Duration, urls ...string) string {
	t.Helper()
	ts := time.Now().Add(-age).UTC().Truncate(time.Second)
	groups := map[string][]session.GroupItem{"Research": {}}
	for i, u := range urls {
		groups["Research"] = append(groups["Research"], session.GroupItem{
			TabIndex: i + 1,
			Title:    fmt.Sprintf("tab %d", i+1),
			URL:      u,
		})
	}
	id, err := f.sessions.Save(&session.Artifact{
		Timestamp: ts.Format(time.RFC3339),
		TotalTabs: len(urls),
		Groups:    groups,
		Meta:      session.Meta{SchemaVersion: session.SchemaVersion},
	})
	require.NoError(t, err)
	return id
}

func TestGenerateGhostTabTasks_Scoring(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ghost := "https://ghost.example.com/"
	f.seedSession(t, 5*24*time.Hour, ghost)
	f.seedSession(t, 3*24*time.Hour, ghost)
	f.seedSession(t, 24*time.Hour, ghost, "https://once.example.com/")

	tasks, err := f.generator.GenerateGhostTabTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1, "single-occurrence urls are not ghosts")

	task := tasks[0]
	assert.Equal(t, TypeGhostTab, task.Type)
	assert.Equal(t, ghost, task.URL)
	assert.Equal(t, 3, task.OpenCount)
	assert.InDelta(t, 10*3+2*5.0, task.Score, 0.2)
}

func TestGhostTabRelease(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ghost := "https://ghost.example.com/"
	s1 := f.seedSession(t, 48*time.Hour, ghost)
	s2 := f.seedSession(t, 24*time.Hour, ghost)

	tasks, err := f.generator.GenerateGhostTabTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, f.runner.ReleaseGhostTab(&tasks[0]))

	for _, id := range []string{s1, s2} {
		artifact, err := f.sessions.Read(id)
		require.NoError(t, err)
		require.Len(t, artifact.Dispositions, 1)
		assert.Equal(t, session.ActionTrash, artifact.Dispositions[0].Action)
		assert.Equal(t, ghost, artifact.Dispositions[0].ItemID)
	}
	blocked, err := f.blocked.Contains(ghost)
	require.NoError(t, err)
	assert.True(t, blocked)

	tasks, err = f.generator.GenerateGhostTabTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks, "released urls never resurface")

	entries, err := f.log.All()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "release", entries[0].Action)
	assert.Equal(t, TypeGhostTab, entries[0].TaskType)
}

func TestGhostTabEngageAndDefer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ghost := "https://ghost.example.com/"
	f.seedSession(t, 48*time.Hour, ghost)
	latest := f.seedSession(t, 24*time.Hour, ghost)

	tasks, err := f.generator.GenerateGhostTabTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, f.runner.EngageGhostTab(&tasks[0]))

	artifact, err := f.sessions.Read(latest)
	require.NoError(t, err)
	require.Len(t, artifact.Dispositions, 1)
	assert.Equal(t, session.ActionComplete, artifact.Dispositions[0].Action)

	// Completion plus the 24h defer both keep it off the list.
	tasks, err = f.generator.GenerateGhostTabTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestProjectRevivalAndPause(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ts := time.Now().Add(-20 * 24 * time.Hour).UTC().Truncate(time.Second)
	id, err := f.sessions.Save(&session.Artifact{
		Timestamp: ts.Format(time.RFC3339),
		TotalTabs: 3,
		Groups:    map[string][]session.GroupItem{"Research": {{TabIndex: 1, Title: "t", URL: "https://p.example.com/"}}},
		ThematicAnalysis: &session.ThematicAnalysis{
			ProjectSupport: map[string]string{"side-quest": "stalled"},
		},
		Meta: session.Meta{SchemaVersion: session.SchemaVersion},
	})
	require.NoError(t, err)

	tasks, err := f.generator.GenerateProjectRevivalTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, TypeProjectRevival, task.Type)
	assert.Equal(t, "side-quest", task.Project)
	assert.InDelta(t, 5*20.0+2*3, task.Score, 0.5)

	resumed, err := f.runner.EngageProject(&task)
	require.NoError(t, err)
	assert.Equal(t, id, resumed)

	require.NoError(t, f.runner.PauseProject(&task, 0))
	tasks, err = f.generator.GenerateProjectRevivalTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks, "paused projects generate no revival tasks")
}

func TestBankruptcy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	var urls []string
	for i := 0; i < 6; i++ {
		urls = append(urls, fmt.Sprintf("https://stale.example.com/%d", i))
	}
	f.seedSession(t, 40*24*time.Hour, urls...)
	f.seedSession(t, 30*24*time.Hour, urls...)

	task, err := f.generator.GenerateBankruptcyTask()
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 6, task.AffectedCount)
	assert.InDelta(t, 30.0, task.AvgDaysStale, 0.5)
	assert.InDelta(t, 3*6+2*task.AvgDaysStale, task.Score, 0.01)

	require.NoError(t, f.runner.DeclareBankruptcy(task))
	blocked, err := f.blocked.All()
	require.NoError(t, err)
	assert.Len(t, blocked, 6)

	task, err = f.generator.GenerateBankruptcyTask()
	require.NoError(t, err)
	assert.Nil(t, task, "blocklisted urls drop below the threshold")
}

func TestSkipHidesTaskBriefly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ghost := "https://ghost.example.com/"
	f.seedSession(t, 48*time.Hour, ghost)
	f.seedSession(t, 24*time.Hour, ghost)

	tasks, err := f.generator.GenerateGhostTabTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, f.runner.Skip(&tasks[0]))
	tasks, err = f.generator.GenerateGhostTabTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)

	active, err := f.deferred.ActiveKeys()
	require.NoError(t, err)
	assert.True(t, active[ghost])
}

func TestDeferredListExpiry(t *testing.T) {
	t.Parallel()
	d := NewDeferredList(filepath.Join(t.TempDir(), "deferred.json"))
	require.NoError(t, d.Defer("expired", -time.Hour))
	require.NoError(t, d.Defer("live", time.Hour))

	active, err := d.ActiveKeys()
	require.NoError(t, err)
	assert.False(t, active["expired"])
	assert.True(t, active["live"])
}

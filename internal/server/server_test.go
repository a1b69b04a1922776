package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memento/internal/analysis"
	"memento/internal/classify"
	"memento/internal/config"
	"memento/internal/lock"
	"memento/internal/llm"
	"memento/internal/prefs"
	"memento/internal/session"
	"memento/internal/tasks"
	"memento/internal/themes"
)

const pass1Response = `{
  "assignments": {"1": "Research", "2": "Development"},
  "narrative": "n", "sessionIntent": "s", "deepDive": [],
  "overallConfidence": "high", "uncertainties": []
}`

func newTestServer(t *testing.T, responses ...string) (*Server, *session.Store, *lock.Manager, *llm.MockDriver) {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		ListenAddr:    ":0",
		BaseDir:       dir,
		DefaultEngine: "mock",
		ContextFile:   filepath.Join(dir, "context.json"),
		Engines:       map[string]config.EngineConfig{},
	}
	sessions := session.NewStore(filepath.Join(dir, "sessions"))
	locks := lock.NewManager(filepath.Join(dir, "lock.json"))
	rules := prefs.NewStore(filepath.Join(dir, "learned-rules.json"))

	registry := llm.NewRegistry()
	driver := llm.NewMockDriver(responses...)
	registry.Register("mock", driver)

	blocked := tasks.NewBlocklist(filepath.Join(dir, "released-urls.json"))
	deferred := tasks.NewDeferredList(filepath.Join(dir, "deferred-tasks.json"))
	paused := tasks.NewPausedProjects(filepath.Join(dir, "paused-projects.json"))
	taskLog := tasks.NewTaskLog(filepath.Join(dir, "task-log.json"))
	aggregator := analysis.NewAggregator(sessions)

	srv := New(Deps{
		Config:      cfg,
		Sessions:    sessions,
		Locks:       locks,
		Classifier:  classify.New(registry, rules),
		Rules:       rules,
		Analyzer:    prefs.NewAnalyzer(sessions, rules),
		Aggregator:  aggregator,
		Detector:    themes.NewDetector(sessions, themes.NewFeedbackStore(filepath.Join(dir, "theme-feedback.json"))),
		Generator:   tasks.NewGenerator(aggregator, blocked, deferred, paused),
		TaskRunner:  tasks.NewRunner(sessions, blocked, deferred, paused, taskLog),
		DomainRules: prefs.NewDomainRuleStore(filepath.Join(dir, "domain-rules.json")),
	})
	return srv, sessions, locks, driver
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return w, resp
}

// seedClock spaces seeded sessions one minute apart so second-resolution
// session ids never collide within a test.
var seedClock int64

func seedSession(t *testing.T, store *session.Store, urls ...string) string {
	t.Helper()
	groups := map[string][]session.GroupItem{"Research": {}}
	for i, u := range urls {
		groups["Research"] = append(groups["Research"], session.GroupItem{
			TabIndex: i + 1, Title: fmt.Sprintf("tab %d", i+1), URL: u,
		})
	}
	seedClock++
	ts := time.Now().Add(time.Duration(-seedClock) * time.Minute)
	id, err := store.Save(&session.Artifact{
		Timestamp: ts.UTC().Truncate(time.Second).Format(time.RFC3339),
		TotalTabs: len(urls),
		Groups:    groups,
		Meta:      session.Meta{SchemaVersion: session.SchemaVersion},
	})
	require.NoError(t, err)
	return id
}

func TestClassifyEndpoint_PersistsArtifact(t *testing.T) {
	srv, sessions, _, _ := newTestServer(t, pass1Response, "graph TD\n  T1", `{"sessionPattern":"focused"}`)

	w, resp := doJSON(t, srv, http.MethodPost, "/classifyBrowserContext", gin.H{
		"tabs": []map[string]string{
			{"url": "https://arxiv.org/abs/1", "title": "paper"},
			{"url": "https://github.com/x", "title": "repo"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, resp.Success)

	summaries, err := sessions.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].TabCount)
}

func TestClassifyEndpoint_FallbackOnModelFailure(t *testing.T) {
	// No scripted responses: the mock driver errors, the fallback kicks in.
	srv, sessions, _, _ := newTestServer(t)

	w, resp := doJSON(t, srv, http.MethodPost, "/classifyBrowserContext", gin.H{
		"tabs": []map[string]string{{"url": "https://github.com/x", "title": "repo"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, resp.Success)

	_, artifact, err := sessions.GetLatest()
	require.NoError(t, err)
	assert.Equal(t, session.SourceMock, artifact.Source)
}

func TestLaunchpadModeAcquiresLock(t *testing.T) {
	// Tab 2 gets no assignment, so it lands in Unclassified. The lock
	// still counts it: every grouped item is launchpad work.
	partial := `{
	  "assignments": {"1": "Research"},
	  "narrative": "n", "sessionIntent": "s", "deepDive": [],
	  "overallConfidence": "medium", "uncertainties": []
	}`
	srv, sessions, locks, _ := newTestServer(t, partial, "graph TD\n  T1", `{}`)

	w, _ := doJSON(t, srv, http.MethodPost, "/classifyBrowserContext", gin.H{
		"mode": session.ModeLaunchpad,
		"tabs": []map[string]string{
			{"url": "https://arxiv.org/abs/1", "title": "paper"},
			{"url": "https://github.com/x", "title": "repo"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	_, artifact, err := sessions.GetLatest()
	require.NoError(t, err)
	require.Equal(t, 1, artifact.ClassifiedCount)

	status := locks.GetLockStatus()
	assert.True(t, status.Locked)
	assert.Equal(t, 2, status.ItemsRemaining)
}

func TestLaunchpadModeRejectsWhileLocked(t *testing.T) {
	srv, _, locks, driver := newTestServer(t, pass1Response, "graph TD\n  T1", `{}`)
	_, err := locks.AcquireLock("2026-01-01T00-00-00Z", 3)
	require.NoError(t, err)

	w, resp := doJSON(t, srv, http.MethodPost, "/classifyBrowserContext", gin.H{
		"mode": session.ModeLaunchpad,
		"tabs": []map[string]string{{"url": "https://github.com/x", "title": "repo"}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, resp.Success)
	assert.Empty(t, driver.Prompts, "a rejected capture must not reach the model")

	// Results mode is unaffected by the lock.
	w, _ = doJSON(t, srv, http.MethodPost, "/classifyBrowserContext", gin.H{
		"tabs": []map[string]string{{"url": "https://github.com/x", "title": "repo"}},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClassifyEndpoint_SaveFailureStillReturnsArtifact(t *testing.T) {
	srv, sessions, locks, _ := newTestServer(t, pass1Response, "graph TD\n  T1", `{}`)

	// Replace the sessions directory with a file so every write fails.
	dir := sessions.BaseDir()
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0644))

	w, resp := doJSON(t, srv, http.MethodPost, "/classifyBrowserContext", gin.H{
		"mode": session.ModeLaunchpad,
		"tabs": []map[string]string{
			{"url": "https://arxiv.org/abs/1", "title": "paper"},
			{"url": "https://github.com/x", "title": "repo"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, "a store failure must not cost the classification")
	require.True(t, resp.Success)

	var artifact session.Artifact
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &artifact))
	assert.NotEmpty(t, artifact.Groups)
	assert.Empty(t, artifact.Meta.SessionID, "no session id without a persisted session")
	assert.False(t, locks.GetLockStatus().Locked, "no lock without a persisted session")
}

func TestClearLockPrecondition(t *testing.T) {
	srv, sessions, locks, _ := newTestServer(t)
	id := seedSession(t, sessions, "https://a.example.com/", "https://b.example.com/")
	_, err := locks.AcquireLock(id, 2)
	require.NoError(t, err)

	// Unresolved items block the clear.
	w, resp := doJSON(t, srv, http.MethodPost, "/api/launchpad/"+id+"/clear-lock", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.False(t, resp.Success)

	for _, u := range []string{"https://a.example.com/", "https://b.example.com/"} {
		w, _ := doJSON(t, srv, http.MethodPost, "/api/launchpad/"+id+"/disposition",
			gin.H{"action": "complete", "itemId": u})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, resp = doJSON(t, srv, http.MethodPost, "/api/launchpad/"+id+"/clear-lock", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.False(t, locks.GetLockStatus().Locked)
}

func TestDispositionEndpoint_Validation(t *testing.T) {
	srv, sessions, _, _ := newTestServer(t)
	id := seedSession(t, sessions, "https://a.example.com/")

	w, resp := doJSON(t, srv, http.MethodPost, "/api/launchpad/"+id+"/disposition",
		gin.H{"action": "detonate", "itemId": "https://a.example.com/"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)

	w, _ = doJSON(t, srv, http.MethodPost, "/api/launchpad/missing/disposition",
		gin.H{"action": "trash", "itemId": "https://a.example.com/"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchDispositionEndpoint(t *testing.T) {
	srv, sessions, _, _ := newTestServer(t)
	id := seedSession(t, sessions, "https://a.example.com/", "https://b.example.com/")

	w, resp := doJSON(t, srv, http.MethodPost, "/api/launchpad/"+id+"/batch-disposition", gin.H{
		"dispositions": []gin.H{
			{"action": "trash", "itemId": "https://a.example.com/"},
			{"action": "later", "itemId": "https://b.example.com/"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, resp.Success)

	artifact, err := sessions.Read(id)
	require.NoError(t, err)
	require.Len(t, artifact.Dispositions, 2)
	assert.True(t, artifact.Dispositions[0].Batch)
}

func TestEffortEndpoints(t *testing.T) {
	srv, sessions, _, _ := newTestServer(t)
	id := seedSession(t, sessions, "https://a.example.com/", "https://b.example.com/")

	w, resp := doJSON(t, srv, http.MethodPost, "/api/launchpad/"+id+"/effort", gin.H{
		"name":  "reading sprint",
		"items": []string{"https://a.example.com/", "https://b.example.com/"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var effort session.Effort
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &effort))

	w, _ = doJSON(t, srv, http.MethodPost, "/api/launchpad/"+id+"/effort/"+effort.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)

	artifact, err := sessions.Read(id)
	require.NoError(t, err)
	assert.Len(t, artifact.Dispositions, 2, "effort completion disposes every member")

	// A second resolution hits the pending precondition.
	w, _ = doJSON(t, srv, http.MethodPost, "/api/launchpad/"+id+"/effort/"+effort.ID+"/defer", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestPreferenceEndpoints(t *testing.T) {
	srv, sessions, _, _ := newTestServer(t)
	// Three agreeing regroups make example.com suggestible.
	for i := 0; i < 3; i++ {
		u := fmt.Sprintf("https://example.com/p%d", i)
		id := seedSession(t, sessions, u)
		_, err := sessions.AppendDisposition(id, session.Disposition{
			Action: session.ActionRegroup, ItemID: u, From: "Research", To: "Shopping",
		})
		require.NoError(t, err)
	}

	w, resp := doJSON(t, srv, http.MethodGet, "/api/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	suggestions := data["suggestions"].([]any)
	require.Len(t, suggestions, 1)
	id := suggestions[0].(map[string]any)["id"].(string)

	w, _ = doJSON(t, srv, http.MethodPost, "/api/preferences/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, srv, http.MethodGet, "/api/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = resp.Data.(map[string]any)
	rules := data["rules"].([]any)
	require.Len(t, rules, 1)
	assert.Equal(t, true, rules[0].(map[string]any)["approved"])
	assert.Empty(t, data["suggestions"], "approved domains stop being suggested")

	w, _ = doJSON(t, srv, http.MethodPost, "/api/preferences/"+id+"/reject", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	srv, sessions, _, _ := newTestServer(t)
	seedSession(t, sessions, "https://quarks.example.com/paper")

	w, resp := doJSON(t, srv, http.MethodGet, "/api/search?q=quarks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp.Data)

	w, _ = doJSON(t, srv, http.MethodGet, "/api/search?q=", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDomainRuleEndpoints(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w, _ := doJSON(t, srv, http.MethodPut, "/api/domain-rules/news.ycombinator.com",
		gin.H{"signal": "contextual", "reason": "depends on the thread"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, srv, http.MethodPut, "/api/domain-rules/example.com",
		gin.H{"signal": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := doJSON(t, srv, http.MethodGet, "/api/domain-rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rules := resp.Data.(map[string]any)
	require.Contains(t, rules, "news.ycombinator.com")
	rule := rules["news.ycombinator.com"].(map[string]any)
	assert.Equal(t, "user", rule["source"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTaskEndpoints(t *testing.T) {
	srv, sessions, _, _ := newTestServer(t)
	ghost := "https://ghost.example.com/"
	ts1 := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	ts2 := time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Second)
	for _, ts := range []time.Time{ts1, ts2} {
		_, err := sessions.Save(&session.Artifact{
			Timestamp: ts.Format(time.RFC3339),
			TotalTabs: 1,
			Groups:    map[string][]session.GroupItem{"Research": {{TabIndex: 1, Title: "t", URL: ghost}}},
			Meta:      session.Meta{SchemaVersion: session.SchemaVersion},
		})
		require.NoError(t, err)
	}

	w, resp := doJSON(t, srv, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw, _ := json.Marshal(resp.Data)
	var generated []tasks.Task
	require.NoError(t, json.Unmarshal(raw, &generated))
	require.Len(t, generated, 1)

	w, _ = doJSON(t, srv, http.MethodPost, "/api/tasks/action", gin.H{
		"action": "release",
		"task":   generated[0],
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, srv, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Data)
}

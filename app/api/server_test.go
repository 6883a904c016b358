package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/research-comb/app/cfg"
	"github.com/lysyi3m/research-comb/app/database"
	"github.com/lysyi3m/research-comb/app/monitor"
	"github.com/lysyi3m/research-comb/app/research"
	"github.com/lysyi3m/research-comb/app/search"
	"github.com/lysyi3m/research-comb/app/tasks"
)

const testAPIKey = "secret"

type stubProvider struct {
	name    string
	results []search.Result
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) Search(ctx context.Context, req search.Request) ([]search.Result, error) {
	return p.results, nil
}

type fakeScheduler struct {
	reloaded []string
	runs     []string
	archives []string
	err      error
}

func (f *fakeScheduler) Start() {}
func (f *fakeScheduler) Stop() {}
func (f *fakeScheduler) EnqueueTask(task tasks.TaskInterface) error { return f.err }
func (f *fakeScheduler) RemoveMonitor(name string) {}

func (f *fakeScheduler) ReloadMonitor(name string) error {
	f.reloaded = append(f.reloaded, name)
	return f.err
}

func (f *fakeScheduler) RunMonitor(name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.runs = append(f.runs, name)
	return "task-run", nil
}

func (f *fakeScheduler) ArchiveResult(userID, resultID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.archives = append(f.archives, resultID)
	return "task-archive", nil
}

type testEnv struct {
	router    *gin.Engine
	queries   database.QueryRepository
	results   database.ResultRepository
	archives  database.ArchiveRepository
	monitors  database.MonitorRepository
	scheduler *fakeScheduler
	provider  *stubProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	oldArgs := os.Args
	os.Args = []string{"test"}
	t.Cleanup(func() { os.Args = oldArgs })
	t.Setenv("TZ", "UTC")
	t.Setenv("BASE_URL", "https://research.example.com")
	_, err := cfg.Load()
	require.NoError(t, err)

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	monitorsDir := t.TempDir()
	monitorYAML := "user_id: user-1\ntier: pro\nquery: acme lawsuit\nsources: [web]\nsettings:\n  enabled: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(monitorsDir, "acme.yml"), []byte(monitorYAML), 0644))
	configCache := monitor.NewConfigCache(monitorsDir)
	require.NoError(t, configCache.Run())

	env := &testEnv{
		queries:   database.NewQueryRepository(db),
		results:   database.NewResultRepository(db),
		archives:  database.NewArchiveRepository(db),
		monitors:  database.NewMonitorRepository(db),
		scheduler: &fakeScheduler{},
		provider: &stubProvider{name: search.SourceWeb, results: []search.Result{
			{SourceType: search.TypeWeb, SourceURL: "https://example.com/a", SourceDomain: "example.com", Title: "Smith v. Jones"},
			{SourceType: search.TypeWeb, SourceURL: "https://www.example.com/a/", SourceDomain: "example.com", Title: "Smith v. Jones"},
			{SourceType: search.TypeWeb, SourceURL: "https://news.example.org/b", SourceDomain: "news.example.org", Title: "Acme settles"},
		}},
	}

	quota := research.NewQuota(env.queries, env.monitors)
	service := research.NewService(env.queries, env.results, quota, env.provider)
	handler := NewHandler(env.queries, env.results, env.archives, env.monitors, configCache, service, quota, env.scheduler)
	env.router = NewServer(handler, testAPIKey, "test")

	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
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
	req.Header.Set("X-API-Key", testAPIKey)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func (e *testEnv) runSearch(t *testing.T) map[string]interface{} {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/searches", map[string]interface{}{
		"user_id": "user-1",
		"tier":    "pro",
		"query":   "acme lawsuit",
		"sources": []string{"web"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "API key required", decode(t, w)["error"])

	req = httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid API key", decode(t, w)["error"])

	req = httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	env := newTestEnv(t)
	router := NewServer(NewHandler(env.queries, env.results, env.archives, env.monitors,
		monitor.NewConfigCache(t.TempDir()), nil, nil, env.scheduler), "", "test")

	req := httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)["api_status"].(map[string]interface{})
	assert.Equal(t, false, status["enabled"])
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["loaded_configurations"])

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")

	req = httptest.NewRequest(http.MethodOptions, "/api/searches", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestValidateURL(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		url    string
		valid  bool
		reason string
	}{
		{"https://example.com/page", true, ""},
		{"http://localhost:8080", false, "Localhost URLs are not allowed"},
		{"http://169.254.169.254/latest/meta-data", false, "Cloud metadata URLs are not allowed"},
		{"ftp://example.com", false, "Only HTTP and HTTPS URLs are allowed"},
		{"not a url", false, "Invalid URL format"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/urls/validate", map[string]string{"url": tt.url})
			require.Equal(t, http.StatusOK, w.Code)

			body := decode(t, w)
			assert.Equal(t, tt.valid, body["valid"])
			if !tt.valid {
				assert.Equal(t, tt.reason, body["reason"])
			}
		})
	}
}

func TestCreateAndGetSearch(t *testing.T) {
	env := newTestEnv(t)

	body := env.runSearch(t)
	assert.EqualValues(t, 3, body["fetched"])
	assert.EqualValues(t, 1, body["duplicates"])
	results := body["results"].([]interface{})
	require.Len(t, results, 2)

	queryID := body["query_id"].(string)
	w := env.do(t, http.MethodGet, "/api/searches/"+queryID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	searchInfo := detail["search"].(map[string]interface{})
	assert.Equal(t, database.QueryStatusCompleted, searchInfo["status"])
	assert.Len(t, detail["results"], 2)

	w = env.do(t, http.MethodGet, "/api/searches?user=user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = env.do(t, http.MethodGet, "/api/searches", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/searches/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The same search again only finds results the user already has.
	again := env.runSearch(t)
	assert.Empty(t, again["results"])
	assert.EqualValues(t, 3, again["duplicates"])
}

func TestCreateSearchErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/searches", map[string]interface{}{"user_id": "user-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/searches", map[string]interface{}{
		"user_id": "user-1", "tier": "pro", "query": "acme", "mode": "exhaustive",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/searches", map[string]interface{}{
		"user_id": "user-1", "tier": "free", "query": "acme",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Web Search requires a paid subscription (Starter or higher)", decode(t, w)["error"])
}

func TestUsage(t *testing.T) {
	env := newTestEnv(t)
	env.runSearch(t)

	w := env.do(t, http.MethodGet, "/api/users/user-1/usage?tier=starter", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "starter", body["tier"])
	usage := body["usage"].(map[string]interface{})
	assert.EqualValues(t, 1, usage["searches"])
	remaining := body["remaining"].(map[string]interface{})
	assert.EqualValues(t, 49, remaining["monthly_searches"])
}

func TestResultSaveAndArchive(t *testing.T) {
	env := newTestEnv(t)
	results := env.runSearch(t)["results"].([]interface{})
	resultID := results[0].(map[string]interface{})["id"].(string)

	w := env.do(t, http.MethodGet, "/api/results/"+resultID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["citation_alwd"])

	w = env.do(t, http.MethodGet, "/api/results/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/results/"+resultID+"/save", map[string]interface{}{
		"user_id": "user-1", "project_id": "case-7", "notes": "key precedent", "tags": []string{"appeal"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode(t, w)
	assert.Equal(t, true, saved["is_saved"])
	assert.Equal(t, "case-7", saved["saved_project_id"])
	assert.Equal(t, []interface{}{"appeal"}, saved["user_tags"])

	w = env.do(t, http.MethodPost, "/api/results/"+resultID+"/save", map[string]interface{}{"user_id": "user-2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/results/"+resultID+"/archive", map[string]interface{}{"user_id": "user-2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/results/missing/archive", map[string]interface{}{"user_id": "user-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/results/"+resultID+"/archive", map[string]interface{}{"user_id": "user-1"})
	require.Equal(t, http.StatusAccepted, w.Code)
	task := decode(t, w)["task"].(map[string]interface{})
	assert.Equal(t, "task-archive", task["id"])
	assert.Equal(t, []string{resultID}, env.scheduler.archives)
}

func TestGetArchive(t *testing.T) {
	env := newTestEnv(t)

	archive := &database.Archive{
		UserID:      "user-1",
		OriginalURL: "https://example.com/a",
		FinalURL:    "https://example.com/a",
		Title:       "Smith v. Jones",
		ContentType: "text/html",
		Content:     "<html></html>",
		Markdown:    "# Smith v. Jones",
		ContentHash: "abc",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, env.archives.CreateArchive(archive))

	w := env.do(t, http.MethodGet, "/api/archives/"+archive.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "# Smith v. Jones", body["markdown"])
	assert.Equal(t, "abc", body["content_hash"])

	w = env.do(t, http.MethodGet, "/api/archives/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMonitorEndpoints(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.monitors.UpsertMonitor(database.Monitor{
		Name: "acme", UserID: "user-1", QueryText: "acme lawsuit", Sources: []string{"web"}, Frequency: "daily", IsActive: true,
	}))

	w := env.do(t, http.MethodGet, "/api/monitors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["total"])
	first := body["monitors"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "acme", first["name"])
	assert.Equal(t, true, first["active"])

	w = env.do(t, http.MethodGet, "/api/monitors/acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "30s", decode(t, w)["timeout"])

	w = env.do(t, http.MethodGet, "/api/monitors/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/monitors/acme/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"acme"}, env.scheduler.runs)

	w = env.do(t, http.MethodPost, "/api/monitors/missing/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/monitors/acme/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"acme"}, env.scheduler.reloaded)

	env.scheduler.err = tasks.ErrQueueFull
	w = env.do(t, http.MethodPost, "/api/monitors/acme/reload", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = env.do(t, http.MethodPost, "/api/monitors/acme/run", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMonitorFeed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/monitors/acme/feed", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "monitor not yet synced")

	require.NoError(t, env.monitors.UpsertMonitor(database.Monitor{
		Name: "acme", UserID: "user-1", QueryText: "acme lawsuit", Sources: []string{"web"}, Frequency: "daily", IsActive: true,
	}))

	query := &database.Query{UserID: "user-1", MonitorName: "acme", QueryText: "acme lawsuit", SearchMode: research.ModeQuick, Status: database.QueryStatusCompleted}
	require.NoError(t, env.queries.CreateQuery(query))
	require.NoError(t, env.results.InsertResults([]database.Result{
		{QueryID: query.ID, UserID: "user-1", SourceType: search.TypeWeb, SourceURL: "https://example.com/a", NormalizedURL: "example.com/a", ResultHash: "h1", Title: "Acme & Sons sued"},
		{QueryID: query.ID, UserID: "user-1", SourceType: search.TypeWeb, SourceURL: "https://spam.example.com/b", NormalizedURL: "spam.example.com/b", ResultHash: "h2", Title: "Hidden", IsFiltered: true, FilterReason: "spam"},
	}))

	req = httptest.NewRequest(http.MethodGet, "/monitors/acme/feed", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "application/xml; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "1", w.Header().Get("X-Monitor-Results"))
	assert.Equal(t, "acme", w.Header().Get("X-Monitor-Name"))
	assert.True(t, strings.Contains(w.Body.String(), "Acme &amp; Sons sued"))
	assert.False(t, strings.Contains(w.Body.String(), "Hidden"))
	assert.Contains(t, w.Body.String(), "https://research.example.com/monitors/acme/feed")
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/internal/middleware"
	"github.com/teampulse/insight/internal/models"
	"github.com/teampulse/insight/internal/services"
	"github.com/teampulse/insight/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-handlers")
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"error_code"`
	Retryable bool            `json:"retryable"`
	Data      json.RawMessage `json:"data"`
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	sse    *services.SSEHub
}

func uptr(v uint) *uint { return &v }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

// seed creates two teams with one active project each.
//
//	team 1 "Platform": lead 10, member 11; project 100 (items 1001 done, 1002 in progress)
//	team 2 "Mobile":   lead 20;            project 200
//	manager 1 has no team
func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	now := time.Now().UTC()
	start, end := now.AddDate(0, 0, -30), now.AddDate(0, 0, 30)
	done := now.AddDate(0, 0, -2)

	require.NoError(t, db.Create(&[]models.Team{
		{ID: 1, Name: "Platform", ProjectID: uptr(100)},
		{ID: 2, Name: "Mobile", ProjectID: uptr(200)},
	}).Error)
	require.NoError(t, db.Create(&[]models.User{
		{ID: 1, Username: "morgan", Role: "manager", IsActive: true},
		{ID: 10, Username: "lena", Role: "team_lead", TeamID: uptr(1), IsActive: true},
		{ID: 11, Username: "ari", Nickname: "Ari", Role: "user", TeamID: uptr(1), IsActive: true},
		{ID: 20, Username: "kai", Role: "team_lead", TeamID: uptr(2), IsActive: true},
	}).Error)
	require.NoError(t, db.Create(&[]models.Project{
		{ID: 100, Name: "Gateway", TeamID: uptr(1), Status: analytics.ProjectActive, StartDate: &start, EndDate: &end},
		{ID: 200, Name: "App", TeamID: uptr(2), Status: analytics.ProjectActive, StartDate: &start, EndDate: &end},
	}).Error)
	require.NoError(t, db.Create(&[]models.WorkItem{
		{ID: 1001, ProjectID: 100, Position: 1, Title: "Token service", Status: "completed", AssigneeID: uptr(11), CompletedAt: &done, CreatedAt: now.AddDate(0, 0, -20)},
		{ID: 1002, ProjectID: 100, Position: 2, Title: "Rate limits", Status: "in-progress", AssigneeID: uptr(11), CreatedAt: now.AddDate(0, 0, -10)},
		{ID: 2001, ProjectID: 200, Position: 1, Title: "Onboarding", Status: "not-started", CreatedAt: now.AddDate(0, 0, -5)},
	}).Error)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	seed(t, db)

	store := services.NewGormStore(db)
	planner := services.NewScopePlanner(store)
	gens := services.NewGenerationsWith(services.NewDBGenerationCounter(db))
	insights := services.NewInsightService(services.InsightDeps{
		Planner:     planner,
		Cache:       services.NewDBCacheStore(db),
		Renderer:    services.NewPDFRenderer(),
		Artifacts:   services.NewGormArtifactRepository(db),
		Generations: gens,
		ReportDir:   t.TempDir(),
	})
	sse := services.NewSSEHub()
	ws := services.NewWSHub()
	items := services.NewWorkItemService(services.WorkItemDeps{
		Planner:     planner,
		Store:       store,
		Items:       store,
		Generations: gens,
		Notifier:    services.NewNotifier(sse, ws),
	})

	analyticsHandler := NewAnalyticsHandler(insights)
	advisoryHandler := NewAdvisoryHandler(insights)
	reportHandler := NewReportHandler(insights)
	workItemHandler := NewWorkItemHandler(planner, items)
	eventsHandler := NewEventsHandler(insights, sse, ws, services.NewUpgrader(nil))

	r := gin.New()
	r.GET("/health", NewHealthHandler(db, services.NewSyncQueue(), sse, ws).CheckHealth)
	api := r.Group("/api")
	api.GET("/events/stream", middleware.StreamAuthRequired(), eventsHandler.Stream)
	protected := api.Group("", middleware.AuthRequired())
	protected.GET("/analytics/summary", analyticsHandler.Summary)
	protected.GET("/analytics/projects/:id", analyticsHandler.Project)
	protected.GET("/analytics/teams/:id", analyticsHandler.Team)
	protected.GET("/analytics/users/:id", analyticsHandler.User)
	protected.POST("/advisory/query", advisoryHandler.Query)
	protected.POST("/reports", reportHandler.Generate)
	protected.GET("/reports/:id/download", reportHandler.Download)
	protected.PUT("/work-items/:id/status", workItemHandler.UpdateStatus)

	return &testEnv{router: r, db: db, sse: sse}
}

func tokenFor(t *testing.T, userID uint) string {
	t.Helper()
	token, err := utils.GenerateToken(userID, "user"+strconv.Itoa(int(userID)), "user", 1)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, userID uint, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestAnalytics_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/analytics/summary", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, w).ErrorCode)

	// a valid token for a user that does not exist
	w = env.do(t, "GET", "/api/analytics/summary", 999, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAnalytics_Summary(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/analytics/summary", 1, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary services.SummaryResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &summary))
	assert.Equal(t, services.AccessFull, summary.AccessLevel)
	assert.Equal(t, 2, summary.Overview.TotalProjects)
	assert.Equal(t, 3, summary.Overview.TotalItems)
	assert.Equal(t, 1, summary.Overview.Completed)
}

func TestAnalytics_ProjectScope(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		path      string
		user      uint
		wantCode  int
		wantError string
	}{
		{"own team lead", "/api/analytics/projects/100", 10, http.StatusOK, ""},
		{"manager", "/api/analytics/projects/200", 1, http.StatusOK, ""},
		{"other team lead", "/api/analytics/projects/100", 20, http.StatusForbidden, "FORBIDDEN"},
		{"unknown project", "/api/analytics/projects/999", 1, http.StatusNotFound, "NOT_FOUND"},
		{"malformed id", "/api/analytics/projects/abc", 1, http.StatusBadRequest, "INVALID_INPUT"},
		{"team of another lead", "/api/analytics/teams/2", 10, http.StatusForbidden, "FORBIDDEN"},
		{"own team", "/api/analytics/teams/1", 10, http.StatusOK, ""},
		{"own user analytics", "/api/analytics/users/11", 11, http.StatusOK, ""},
		{"peer user analytics", "/api/analytics/users/10", 11, http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", tt.path, tt.user, nil)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode(t, w).ErrorCode)
			}
		})
	}
}

func TestAdvisory_QueryIsCached(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/advisory/query", 10, gin.H{"query": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/advisory/query", 10, gin.H{"query": "How is the team doing?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first services.AdvisoryResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &first))
	assert.False(t, first.Cached)
	assert.Equal(t, services.InsightFromTemplate, first.InsightSource)

	w = env.do(t, "POST", "/api/advisory/query", 10, gin.H{"query": "how is the TEAM doing?"})
	require.Equal(t, http.StatusOK, w.Code)
	var second services.AdvisoryResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &second))
	assert.True(t, second.Cached)
	assert.Equal(t, first.HealthScore, second.HealthScore)
}

func TestWorkItem_UpdateStatusPublishesDelta(t *testing.T) {
	env := newTestEnv(t)
	events := env.sse.Subscribe("watcher", []string{"project:100"})
	defer env.sse.Unsubscribe("watcher")

	w := env.do(t, "PUT", "/api/work-items/1002/status", 11, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var change services.StatusChange
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &change))
	assert.True(t, change.Changed)
	assert.Equal(t, analytics.StatusInProgress, change.PreviousStatus)
	require.NotNil(t, change.Overview)
	assert.Equal(t, 100, change.Overview.CompletionRate)

	var stored models.WorkItem
	require.NoError(t, env.db.First(&stored, 1002).Error)
	assert.Equal(t, "completed", stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	select {
	case ev := <-events:
		var delta services.Delta
		require.NoError(t, json.Unmarshal(ev.Data, &delta))
		assert.Equal(t, services.DeltaTaskUpdated, delta.Type)
		assert.Equal(t, uint(1002), delta.ItemID)
	case <-time.After(time.Second):
		t.Fatal("no delta published")
	}
}

func TestWorkItem_UpdateStatusErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		path      string
		user      uint
		body      interface{}
		wantCode  int
		wantError string
	}{
		{"missing status", "/api/work-items/1002/status", 11, gin.H{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown status", "/api/work-items/1002/status", 11, gin.H{"status": "done"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown item", "/api/work-items/9999/status", 1, gin.H{"status": "blocked"}, http.StatusNotFound, "NOT_FOUND"},
		{"other team", "/api/work-items/1002/status", 20, gin.H{"status": "blocked"}, http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "PUT", tt.path, tt.user, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantError, decode(t, w).ErrorCode)
		})
	}
}

func TestReports_GenerateAndDownload(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/reports", 10, gin.H{"project_id": 100})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var report services.ReportResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &report))
	assert.Equal(t, "/api/reports/"+report.ArtifactID+"/download", report.DownloadRef)

	w = env.do(t, "POST", "/api/reports", 10, gin.H{"project_id": 100})
	require.Equal(t, http.StatusOK, w.Code)
	var again services.ReportResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &again))
	assert.True(t, again.Cached)
	assert.Equal(t, report.ArtifactID, again.ArtifactID)

	w = env.do(t, "GET", report.DownloadRef, 10, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "%PDF", w.Body.String()[:4])

	w = env.do(t, "GET", report.DownloadRef, 11, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "GET", "/api/reports/not-a-uuid/download", 10, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReports_SummaryWithoutBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/reports", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, 1))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, "POST", "/api/reports", 20, gin.H{"project_id": 100})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEvents_StreamRejectsForbiddenChannel(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/events/stream?channel=all&token="+tokenFor(t, 10), nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, env.sse.ClientCount())

	req = httptest.NewRequest("GET", "/api/events/stream?channel=bogus", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, 1))
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// closeNotifyingRecorder satisfies the http.CloseNotifier that gin's Stream
// requires.
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool { return r.closed }

func TestEvents_StreamDeliversSubscribedEvent(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/events/stream?channel=team:1&token="+tokenFor(t, 10), nil).WithContext(ctx)
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return env.sse.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "event: subscribed")
	assert.Contains(t, w.Body.String(), `"team:1"`)
	assert.Equal(t, 0, env.sse.ClientCount())
}

func TestRequestedChannels(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?channel=team:1,%20user:2&channel=project:3&channel=", nil)
	assert.Equal(t, []string{"team:1", "user:2", "project:3"}, requestedChannels(c))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/health", 0, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status     string                 `json:"status"`
		Components map[string]interface{} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Components["database"])
	assert.Equal(t, "sync", body.Components["queue_mode"])
}

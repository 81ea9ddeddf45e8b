package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/app"
	"github.com/hugorneri/RPA-DCTFWEB/internal/common"
	"github.com/hugorneri/RPA-DCTFWEB/internal/handlers"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/events"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/runs"
)

type staticStore struct {
	batch []models.Entity
}

func (s *staticStore) LoadBatch(ctx context.Context) ([]models.Entity, error) { return s.batch, nil }
func (s *staticStore) Persist(ctx context.Context, batch []models.Entity) error { return nil }
func (s *staticStore) Location() string { return "memory" }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := arbor.NewLogger()
	config := common.NewDefaultConfig()
	eventService := events.NewService(logger)
	store := &staticStore{batch: []models.Entity{
		{ID: "11.111.111/0001-11", Code: "A1", Status: models.StatusCompleted, Row: 2},
		{ID: "22.222.222/0001-22", Code: "B2", Row: 3},
	}}
	runService := runs.NewService(config, runs.Dependencies{Store: store, Events: eventService}, logger)

	application := &app.App{
		Config:       config,
		Logger:       logger,
		RowStore:     store,
		EventService: eventService,
		RunService:   runService,
		WSHandler:    handlers.NewWebSocketHandler(eventService, runService, 0, logger),
		RunHandler:   handlers.NewRunHandler(runService, logger),
		PageHandler:  handlers.NewPageHandler(handlers.PageData{Period: config.Run.Period}, logger),
	}
	t.Cleanup(func() {
		application.WSHandler.Close()
		_ = eventService.Close()
	})
	return New(application)
}

func TestRoutes_Health(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRoutes_ControlPage(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "06 2025")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_StatusReadsLedger(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, runs.StateIdle, resp.Run.State)
	assert.Len(t, resp.Entities, 2)
	assert.Equal(t, 1, resp.Counts["Completed"])
	assert.Equal(t, 1, resp.Counts["Pending"])
}

func TestRoutes_ControlsWithoutRun(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/stop", "/api/login/confirm"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusConflict, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/run", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(t)
	h := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

package recordings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classdeck/recordings-backend/internal/pipeline"
)

type fakeSyncer struct {
	res   pipeline.SyncResult
	err   error
	froms []time.Time
	tos   []time.Time
}

func (f *fakeSyncer) SyncRange(_ context.Context, from, to time.Time) (pipeline.SyncResult, error) {
	f.froms = append(f.froms, from)
	f.tos = append(f.tos, to)
	return f.res, f.err
}

func newSyncRouter(syncer *fakeSyncer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, nil, syncer, nil, 2*time.Hour, 7, nil)
	r := gin.New()
	r.POST("/recordings/sync", h.Sync)
	r.GET("/recordings/:id", h.Get)
	r.POST("/recordings/:id/process", h.Process)
	r.DELETE("/recordings/:id", h.Delete)
	return r
}

func TestSyncDefaultWindow(t *testing.T) {
	syncer := &fakeSyncer{res: pipeline.SyncResult{Meetings: 4}}
	r := newSyncRouter(syncer)

	req := httptest.NewRequest(http.MethodPost, "/recordings/sync", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, syncer.tos, 1)
	assert.Equal(t, 7*24*time.Hour, syncer.tos[0].Sub(syncer.froms[0]))
	assert.WithinDuration(t, time.Now().UTC().Truncate(24*time.Hour), syncer.tos[0], time.Minute)
	assert.Contains(t, w.Body.String(), `"meetings":4`)
}

func TestSyncExplicitWindow(t *testing.T) {
	syncer := &fakeSyncer{}
	r := newSyncRouter(syncer)

	req := httptest.NewRequest(http.MethodPost, "/recordings/sync?start_date=2024-03-01&end_date=2024-03-07", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, syncer.froms, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), syncer.froms[0])
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), syncer.tos[0])
}

func TestSyncBodyWindow(t *testing.T) {
	syncer := &fakeSyncer{}
	r := newSyncRouter(syncer)

	body := `{"start_date": "2024-03-01", "end_date": "2024-03-02"}`
	req := httptest.NewRequest(http.MethodPost, "/recordings/sync", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, syncer.froms, 1)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), syncer.tos[0])
}

func TestSyncRejectsBadWindows(t *testing.T) {
	syncer := &fakeSyncer{}
	r := newSyncRouter(syncer)

	tests := []struct {
		name  string
		query string
	}{
		{"bad start date", "?start_date=03-01-2024"},
		{"bad end date", "?end_date=yesterday"},
		{"inverted window", "?start_date=2024-03-07&end_date=2024-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/recordings/sync"+tt.query, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, syncer.froms)
}

func TestSyncFailure(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("zoom api error: status 500")}
	r := newSyncRouter(syncer)

	req := httptest.NewRequest(http.MethodPost, "/recordings/sync", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandlersRejectBadIDs(t *testing.T) {
	r := newSyncRouter(&fakeSyncer{})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/recordings/not-a-uuid", nil),
		httptest.NewRequest(http.MethodPost, "/recordings/42/process", nil),
		httptest.NewRequest(http.MethodDelete, "/recordings/not-a-uuid", nil),
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, req.URL.Path)
	}
}

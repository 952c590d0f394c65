package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fimiwatch/tweetvault/config"
	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/mocks"
	"github.com/fimiwatch/tweetvault/internal/service"
)

func TestRouter_HealthzBypassesAuth(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	auth := config.AuthConfig{Enabled: true, APIKeys: []string{"key-1"}}
	router := newTaskRouter(t, mocks.NewMockTaskRepository(ctrl), auth)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_HealthzHead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := newTaskRouter(t, mocks.NewMockTaskRepository(ctrl), config.AuthConfig{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRouter_AuthGuardsAPIRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	auth := config.AuthConfig{Enabled: true, APIKeys: []string{"key-1"}}
	router := newTaskRouter(t, mocks.NewMockTaskRepository(ctrl), auth)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/task_stats", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_EstimateRouteAbsentWithoutService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := newTaskRouter(t, mocks.NewMockTaskRepository(ctrl), config.AuthConfig{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/estimate", bytes.NewBufferString("{}")))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_EstimateEndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := mocks.NewMockSourceGateway(ctrl)
	source.EXPECT().Count(gomock.Any(), gomock.Any()).Return(321, nil)

	taskSvc, err := service.NewTaskService(service.TaskServiceOptions{
		Repo:         mocks.NewMockTaskRepository(ctrl),
		DefaultLease: 30 * time.Second,
	})
	require.NoError(t, err)
	estSvc, err := service.NewEstimateService(service.EstimateServiceOptions{Source: source})
	require.NoError(t, err)

	router := NewRouter(RouterServices{Tasks: taskSvc, Estimates: estSvc})

	body, err := json.Marshal(map[string]any{
		"accounts":   []string{"acme"},
		"start_date": "2024-01-01T00:00:00Z",
		"end_date":   "2024-01-31T00:00:00Z",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/estimate", bytes.NewBuffer(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Total int `json:"total"`
		Pairs []struct {
			Count  int  `json:"count"`
			Cached bool `json:"cached"`
		} `json:"pairs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 321, resp.Total)
	require.Len(t, resp.Pairs, 1)
	assert.False(t, resp.Pairs[0].Cached)
}

func TestRouter_DriveFilesRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sink := mocks.NewMockSinkGateway(ctrl)
	sink.EXPECT().EnsureFolder(gomock.Any(), "", []string{"TweetVault", "jan-incident"}).
		Return(&core.Folder{ID: "f1", Path: "TweetVault/jan-incident"}, nil)
	sink.EXPECT().ListFolder(gomock.Any(), "", "f1").Return([]core.SinkEntry{
		{ID: "e1", Name: "acme", IsFolder: true},
	}, nil)

	taskSvc, err := service.NewTaskService(service.TaskServiceOptions{
		Repo:         mocks.NewMockTaskRepository(ctrl),
		DefaultLease: 30 * time.Second,
	})
	require.NoError(t, err)

	router := NewRouter(RouterServices{Tasks: taskSvc, Sink: sink, RootFolder: "TweetVault"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/drive/files?path=jan-incident", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"acme"`)
	assert.Contains(t, rec.Body.String(), `"is_folder":true`)
}

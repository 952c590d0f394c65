package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fimiwatch/tweetvault/config"
	"github.com/fimiwatch/tweetvault/internal/data"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
	"github.com/fimiwatch/tweetvault/internal/mocks"
	"github.com/fimiwatch/tweetvault/internal/service"
)

func newTaskRouter(t *testing.T, repo *mocks.MockTaskRepository, auth config.AuthConfig) http.Handler {
	t.Helper()
	svc, err := service.NewTaskService(service.TaskServiceOptions{Repo: repo, DefaultLease: 30 * time.Second})
	require.NoError(t, err)
	return NewRouter(RouterServices{Tasks: svc, Auth: auth})
}

func downloadBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"accounts":    []string{"acme"},
		"queries":     []string{"outage"},
		"start_date":  "2024-01-01T00:00:00Z",
		"end_date":    "2024-01-31T00:00:00Z",
		"event_label": "jan-incident",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestDownload_Returns202WithTaskID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockTaskRepository(ctrl)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CreateTaskRequest) (*model.TaskRecord, error) {
			assert.Equal(t, []string{"acme"}, req.Spec.Accounts)
			assert.Equal(t, "jan-incident", req.Spec.EventLabel)
			return &model.TaskRecord{ID: "task-1", State: model.TaskStatePending, Spec: req.Spec}, nil
		},
	)

	router := newTaskRouter(t, repo, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodPost, "/download", downloadBody(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp["task_id"])
}

func TestDownload_ValidationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockTaskRepository(ctrl)
	router := newTaskRouter(t, repo, config.AuthConfig{})

	body := bytes.NewBufferString(`{"accounts":["acme"]}`)
	req := httptest.NewRequest(http.MethodPost, "/download", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_failed", resp["error"])
}

func TestDownload_RejectsUnknownFields(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := newTaskRouter(t, mocks.NewMockTaskRepository(ctrl), config.AuthConfig{})

	body := bytes.NewBufferString(`{"acounts":["typo"]}`)
	req := httptest.NewRequest(http.MethodPost, "/download", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")
}

func TestDownload_DuplicateInFlightSpec(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockTaskRepository(ctrl)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, data.ErrTaskInFlight)

	router := newTaskRouter(t, repo, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodPost, "/download", downloadBody(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate_task")
}

func TestDownload_InheritsCredentialRefFromBearerKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockTaskRepository(ctrl)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req *model.CreateTaskRequest) (*model.TaskRecord, error) {
			assert.Equal(t, "key-1", req.Spec.CredentialRef)
			return &model.TaskRecord{ID: "task-1", Spec: req.Spec}, nil
		},
	)

	auth := config.AuthConfig{Enabled: true, APIKeys: []string{"key-1"}}
	router := newTaskRouter(t, repo, auth)

	req := httptest.NewRequest(http.MethodPost, "/download", downloadBody(t))
	req.Header.Set("Authorization", "Bearer key-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestGetStatus_ReturnsTaskState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	completed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	repo := mocks.NewMockTaskRepository(ctrl)
	repo.EXPECT().GetByID(gomock.Any(), "task-1").Return(&model.TaskRecord{
		ID:    "task-1",
		State: model.TaskStateSuccess,
		Result: &model.TaskResult{
			Summaries: []model.ResultSummary{{TweetsFetched: 12, FilesWritten: 2}},
		},
		SubmittedAt: completed.Add(-time.Hour),
		CompletedAt: &completed,
	}, nil)

	router := newTaskRouter(t, repo, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodGet, "/task_status/task-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.TaskStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, model.TaskStateSuccess, resp.State)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 12, resp.Result.Summaries[0].TweetsFetched)
}

func TestGetStatus_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockTaskRepository(ctrl)
	repo.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, data.ErrTaskNotFound)

	router := newTaskRouter(t, repo, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodGet, "/task_status/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "task_not_found")
}

func TestTaskStats_ReturnsCounts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockTaskRepository(ctrl)
	repo.EXPECT().Stats(gomock.Any()).Return(&model.TaskStats{Pending: 1, Success: 4}, nil)

	router := newTaskRouter(t, repo, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodGet, "/task_stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.TaskStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 4, stats.Success)
}

func TestListTasks_ParsesFilters(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockTaskRepository(ctrl)
	repo.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, opts *model.TaskListOptions) ([]*model.TaskRecord, error) {
			require.NotNil(t, opts.State)
			assert.Equal(t, model.TaskStateFailure, *opts.State)
			require.NotNil(t, opts.EventLabel)
			assert.Equal(t, "jan-incident", *opts.EventLabel)
			assert.Equal(t, "asc", opts.SortOrder)
			assert.Equal(t, 10, opts.Limit)
			assert.Equal(t, 20, opts.Offset)
			return []*model.TaskRecord{{ID: "task-1"}}, nil
		},
	)

	router := newTaskRouter(t, repo, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodGet,
		"/tasks?state=failure&event_label=jan-incident&order=asc&limit=10&offset=20", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "task-1")
}

func TestListTasks_RejectsBadState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := newTaskRouter(t, mocks.NewMockTaskRepository(ctrl), config.AuthConfig{})
	req := httptest.NewRequest(http.MethodGet, "/tasks?state=bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_query")
}

func TestDeleteTask_NoContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockTaskRepository(ctrl)
	repo.EXPECT().Delete(gomock.Any(), "task-1").Return(nil)

	router := newTaskRouter(t, repo, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodDelete, "/tasks/task-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestDeleteTask_RunningConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockTaskRepository(ctrl)
	repo.EXPECT().Delete(gomock.Any(), "task-1").Return(data.ErrTaskNotDeletable)

	router := newTaskRouter(t, repo, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodDelete, "/tasks/task-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "task_running")
}

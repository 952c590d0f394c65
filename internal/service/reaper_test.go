package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fimiwatch/tweetvault/config"
	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
	"github.com/fimiwatch/tweetvault/internal/mocks"
)

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:      5 * time.Minute,
		RunningMaxAge: time.Hour,
		SuccessMaxAge: 168 * time.Hour,
		PartialMaxAge: 168 * time.Hour,
		FailedMaxAge:  168 * time.Hour,
		BatchSize:     1000,
	}
}

func newTestReaperService(t *testing.T, repo *mocks.MockReaperRepository) *ReaperService {
	t.Helper()
	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig()})
	require.NoError(t, err)
	return svc
}

func TestNewReaperService_RequiresRepo(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ReaperRepository")
}

func TestReaperService_RunCleanup_AllSteps(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	repo := mocks.NewMockReaperRepository(ctrl)
	svc := newTestReaperService(t, repo)

	repo.EXPECT().FailStaleRunningTasks(ctx, time.Hour, 1000).Return(int64(2), nil)
	repo.EXPECT().FailStaleRunningTasks(ctx, time.Hour, 1000).Return(int64(0), nil)

	for _, state := range []model.TaskState{
		model.TaskStateSuccess, model.TaskStatePartialFailure, model.TaskStateFailure,
	} {
		repo.EXPECT().DeleteOldTasks(ctx, core.DeleteOldTasksParams{
			State:     state,
			MaxAge:    168 * time.Hour,
			BatchSize: 1000,
		}).Return(int64(0), nil)
	}

	require.NoError(t, svc.runCleanup(ctx))
}

func TestReaperService_RunCleanup_BatchesUntilEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	repo := mocks.NewMockReaperRepository(ctrl)
	svc := newTestReaperService(t, repo)

	repo.EXPECT().FailStaleRunningTasks(ctx, gomock.Any(), gomock.Any()).Return(int64(0), nil)

	gomock.InOrder(
		repo.EXPECT().DeleteOldTasks(ctx, gomock.Any()).Return(int64(1000), nil),
		repo.EXPECT().DeleteOldTasks(ctx, gomock.Any()).Return(int64(400), nil),
		repo.EXPECT().DeleteOldTasks(ctx, gomock.Any()).Return(int64(0), nil),
		repo.EXPECT().DeleteOldTasks(ctx, gomock.Any()).Return(int64(0), nil),
		repo.EXPECT().DeleteOldTasks(ctx, gomock.Any()).Return(int64(0), nil),
	)

	require.NoError(t, svc.runCleanup(ctx))
}

func TestReaperService_RunCleanup_ContinuesPastStepErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	repo := mocks.NewMockReaperRepository(ctrl)
	svc := newTestReaperService(t, repo)

	stepErr := errors.New("deadlock detected")
	repo.EXPECT().FailStaleRunningTasks(ctx, gomock.Any(), gomock.Any()).Return(int64(0), stepErr)
	// remaining steps still run
	repo.EXPECT().DeleteOldTasks(ctx, gomock.Any()).Return(int64(0), nil).Times(3)

	err := svc.runCleanup(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, stepErr)
	assert.Contains(t, err.Error(), "fail stale running tasks")
}

func TestReaperService_RunCleanup_AllCanceledCollapsesToCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	repo := mocks.NewMockReaperRepository(ctrl)
	svc := newTestReaperService(t, repo)

	repo.EXPECT().FailStaleRunningTasks(ctx, gomock.Any(), gomock.Any()).
		Return(int64(0), context.Canceled)
	repo.EXPECT().DeleteOldTasks(ctx, gomock.Any()).
		Return(int64(0), context.Canceled).Times(3)

	err := svc.runCleanup(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaperService_Run_StopsOnContextCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockReaperRepository(ctrl)
	cfg := testReaperConfig()
	cfg.Interval = time.Hour // no tick fires during the test
	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	// initial cleanup runs once after jitter; allow cancellation mid-step
	repo.EXPECT().FailStaleRunningTasks(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), nil).AnyTimes()
	repo.EXPECT().DeleteOldTasks(gomock.Any(), gomock.Any()).
		Return(int64(0), nil).AnyTimes()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case runErr := <-done:
		assert.NoError(t, runErr)
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop after context cancellation")
	}
}

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
	apperrors "github.com/fimiwatch/tweetvault/internal/errors"
	"github.com/fimiwatch/tweetvault/internal/mocks"
)

func testTaskRecord() *model.TaskRecord {
	return &model.TaskRecord{
		ID: testTaskID,
		Spec: model.JobSpec{
			Accounts:   []string{"acme"},
			StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			EventLabel: "jan-incident",
		},
	}
}

func testRecords(ids ...string) []model.Record {
	recs := make([]model.Record, 0, len(ids))
	for _, id := range ids {
		raw, _ := json.Marshal(map[string]string{"id": id, "text": "t"})
		recs = append(recs, model.Record{ID: id, Text: "t", Raw: raw})
	}
	return recs
}

func newTestPipeline(t *testing.T, opts ArchivePipelineOptions) *ArchivePipeline {
	t.Helper()
	if opts.Sleep == nil {
		opts.Sleep = func(context.Context, time.Duration) error { return nil }
	}
	p, err := NewArchivePipeline(opts)
	require.NoError(t, err)
	return p
}

func TestArchivePipeline_Run_SinglePairSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink, RootFolder: "TweetVault"})

	task := testTaskRecord()

	sink.EXPECT().EnsureFolder(ctx, "", []string{"TweetVault", "jan-incident"}).
		Return(&core.Folder{ID: "f-event", Path: "TweetVault/jan-incident"}, nil)
	sink.EXPECT().EnsureFolder(ctx, "", []string{"TweetVault", "jan-incident", "acme"}).
		Return(&core.Folder{ID: "f-acme", Path: "TweetVault/jan-incident/acme"}, nil)

	source.EXPECT().Search(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.SearchParams) (*core.SearchPage, error) {
			assert.Equal(t, "from:acme", params.Query)
			return &core.SearchPage{Records: testRecords("1", "2")}, nil
		},
	)
	sink.EXPECT().Upload(ctx, "", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, params core.UploadParams) (string, error) {
			assert.Equal(t, "f-acme", params.FolderID)
			assert.Contains(t, params.Filename, "jan-incident_acme_download_")
			assert.Equal(t, "application/json", params.MimeType)
			return "file-1", nil
		},
	)

	result := p.Run(ctx, task)
	require.Empty(t, result.Errors)
	require.Len(t, result.Summaries, 1)
	assert.Equal(t, 2, result.Summaries[0].TweetsFetched)
	assert.Equal(t, 1, result.Summaries[0].FilesWritten)
	assert.Equal(t, model.TaskStateSuccess, result.State())
}

func TestArchivePipeline_Run_MultiPagePagination(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink})

	sink.EXPECT().EnsureFolder(ctx, "", gomock.Any()).
		Return(&core.Folder{ID: "f", Path: "jan-incident"}, nil).Times(2)

	first := source.EXPECT().Search(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.SearchParams) (*core.SearchPage, error) {
			assert.Empty(t, params.NextToken)
			return &core.SearchPage{Records: testRecords("1", "2"), NextToken: "page2"}, nil
		},
	)
	source.EXPECT().Search(ctx, gomock.Any()).After(first).DoAndReturn(
		func(_ context.Context, params core.SearchParams) (*core.SearchPage, error) {
			assert.Equal(t, "page2", params.NextToken)
			return &core.SearchPage{Records: testRecords("3")}, nil
		},
	)
	sink.EXPECT().Upload(ctx, "", gomock.Any()).Return("file", nil).Times(2)

	result := p.Run(ctx, testTaskRecord())
	require.Empty(t, result.Errors)
	require.Len(t, result.Summaries, 1)
	assert.Equal(t, 3, result.Summaries[0].TweetsFetched)
	assert.Equal(t, 2, result.Summaries[0].FilesWritten)
}

func TestArchivePipeline_Run_PerTaskLimitTruncates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink})

	task := testTaskRecord()
	task.Spec.PerTaskLimit = 3

	sink.EXPECT().EnsureFolder(ctx, "", gomock.Any()).
		Return(&core.Folder{ID: "f", Path: "jan-incident"}, nil).Times(2)
	// second page would carry more, but the limit stops pagination after 3 tweets
	source.EXPECT().Search(ctx, gomock.Any()).Return(
		&core.SearchPage{Records: testRecords("1", "2", "3", "4", "5"), NextToken: "more"}, nil)
	sink.EXPECT().Upload(ctx, "", gomock.Any()).Return("file", nil)

	result := p.Run(ctx, task)
	require.Empty(t, result.Errors)
	require.Len(t, result.Summaries, 1)
	assert.Equal(t, 3, result.Summaries[0].TweetsFetched)
	require.NotEmpty(t, result.Summaries[0].Warnings)
	assert.Contains(t, result.Summaries[0].Warnings[0], "per-task limit")
}

func TestArchivePipeline_Run_PartialFailureContinues(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink})

	task := testTaskRecord()
	task.Spec.Accounts = []string{"a1", "a2"}

	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident"}).
		Return(&core.Folder{ID: "f-event", Path: "jan-incident"}, nil)
	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident", "a1"}).
		Return(&core.Folder{ID: "f1", Path: "jan-incident/a1"}, nil)
	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident", "a2"}).
		Return(&core.Folder{ID: "f2", Path: "jan-incident/a2"}, nil)

	source.EXPECT().Search(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.SearchParams) (*core.SearchPage, error) {
			if params.Query == "from:a1" {
				return &core.SearchPage{Records: testRecords("1")}, nil
			}
			return &core.SearchPage{Records: testRecords("2")}, nil
		},
	).Times(2)

	uploadFailed := apperrors.Upload("folder quota exceeded")
	sink.EXPECT().Upload(ctx, "", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, params core.UploadParams) (string, error) {
			if params.FolderID == "f1" {
				return "", uploadFailed
			}
			return "file", nil
		},
	).Times(2)

	result := p.Run(ctx, task)
	require.Len(t, result.Summaries, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.ErrorKindUpload, result.Errors[0].Kind)
	assert.Equal(t, "a1", result.Errors[0].Pair.Account)
	assert.Equal(t, model.TaskStatePartialFailure, result.State())
}

func TestArchivePipeline_Run_AuthFailureAbortsRemainingPairs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink})

	task := testTaskRecord()
	task.Spec.Accounts = []string{"a1", "a2", "a3"}

	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident"}).
		Return(&core.Folder{ID: "f-event", Path: "jan-incident"}, nil)
	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident", "a1"}).
		Return(&core.Folder{ID: "f1", Path: "jan-incident/a1"}, nil)

	// first pair hits an auth wall; a2 and a3 are never attempted
	source.EXPECT().Search(ctx, gomock.Any()).Return(nil, apperrors.Auth("bearer token revoked"))

	result := p.Run(ctx, task)
	assert.Empty(t, result.Summaries)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.ErrorKindAuth, result.Errors[0].Kind)
	assert.Equal(t, model.TaskStateFailure, result.State())
}

func TestArchivePipeline_Run_AuthFailureAfterSuccessIsTaskFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink})

	task := testTaskRecord()
	task.Spec.Accounts = []string{"a1", "a2", "a3"}

	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident"}).
		Return(&core.Folder{ID: "f-event", Path: "jan-incident"}, nil)
	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident", "a1"}).
		Return(&core.Folder{ID: "f1", Path: "jan-incident/a1"}, nil)
	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident", "a2"}).
		Return(&core.Folder{ID: "f2", Path: "jan-incident/a2"}, nil)

	// a1 archives cleanly, then a2 hits an auth wall; a3 is never attempted
	// and the finished summary does not soften the terminal state.
	source.EXPECT().Search(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.SearchParams) (*core.SearchPage, error) {
			if params.Query == "from:a1" {
				return &core.SearchPage{Records: testRecords("1")}, nil
			}
			return nil, apperrors.Auth("bearer token revoked")
		},
	).Times(2)
	sink.EXPECT().Upload(ctx, "", gomock.Any()).Return("file", nil)

	result := p.Run(ctx, task)
	require.Len(t, result.Summaries, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.ErrorKindAuth, result.Errors[0].Kind)
	assert.Equal(t, model.TaskStateFailure, result.State())
}

func TestArchivePipeline_Run_DeadlineRecordsSingleTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink})

	task := testTaskRecord()
	task.Spec.Accounts = []string{"a1", "a2", "a3"}

	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident"}).
		Return(&core.Folder{ID: "f-event", Path: "jan-incident"}, nil)
	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident", "a1"}).
		Return(&core.Folder{ID: "f1", Path: "jan-incident/a1"}, nil)
	sink.EXPECT().EnsureFolder(ctx, "", []string{"jan-incident", "a2"}).
		Return(&core.Folder{ID: "f2", Path: "jan-incident/a2"}, nil)

	source.EXPECT().Search(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params core.SearchParams) (*core.SearchPage, error) {
			if params.Query == "from:a1" {
				return &core.SearchPage{Records: testRecords("1")}, nil
			}
			return nil, context.DeadlineExceeded
		},
	).Times(2)
	sink.EXPECT().Upload(ctx, "", gomock.Any()).Return("file", nil)

	result := p.Run(ctx, task)
	require.Len(t, result.Summaries, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.ErrorKindTimeout, result.Errors[0].Kind)
	assert.Zero(t, result.Errors[0].Pair, "deadline entry is task-scoped")
	assert.Equal(t, model.TaskStateFailure, result.State())
}

func TestArchivePipeline_Run_SinkUnreachableFailsTask(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink})

	sink.EXPECT().EnsureFolder(ctx, "", gomock.Any()).
		Return(nil, apperrors.Upload("drive api unreachable"))

	result := p.Run(ctx, testTaskRecord())
	assert.Empty(t, result.Summaries)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.ErrorKindUpload, result.Errors[0].Kind)
	assert.Equal(t, model.TaskStateFailure, result.State())
}

func TestArchivePipeline_Run_RateLimitBackoffRecovers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)

	var slept []time.Duration
	p := newTestPipeline(t, ArchivePipelineOptions{
		Source:      source,
		Sink:        sink,
		BackoffBase: time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})

	sink.EXPECT().EnsureFolder(ctx, "", gomock.Any()).
		Return(&core.Folder{ID: "f", Path: "jan-incident"}, nil).Times(2)

	limited := apperrors.RateLimit("429 from source", 5*time.Second)
	first := source.EXPECT().Search(ctx, gomock.Any()).Return(nil, limited)
	source.EXPECT().Search(ctx, gomock.Any()).After(first).
		Return(&core.SearchPage{Records: testRecords("1")}, nil)
	sink.EXPECT().Upload(ctx, "", gomock.Any()).Return("file", nil)

	result := p.Run(ctx, testTaskRecord())
	require.Empty(t, result.Errors)
	require.Len(t, result.Summaries, 1)
	// server hint wins over the exponential schedule
	require.Len(t, slept, 1)
	assert.Equal(t, 5*time.Second, slept[0])
	require.NotEmpty(t, result.Summaries[0].Warnings)
	assert.Contains(t, result.Summaries[0].Warnings[0], "rate limited")
}

func TestArchivePipeline_Run_RateLimitExhaustsRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{
		Source:           source,
		Sink:             sink,
		RateLimitRetries: 2,
	})

	sink.EXPECT().EnsureFolder(ctx, "", gomock.Any()).
		Return(&core.Folder{ID: "f", Path: "jan-incident"}, nil).Times(2)

	limited := apperrors.RateLimit("429 from source", 0)
	source.EXPECT().Search(ctx, gomock.Any()).Return(nil, limited).Times(3)

	result := p.Run(ctx, testTaskRecord())
	assert.Empty(t, result.Summaries)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.ErrorKindRateLimit, result.Errors[0].Kind)
}

func TestArchivePipeline_Run_CredentialRefWithoutStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink})

	task := testTaskRecord()
	task.Spec.CredentialRef = "ref-1"

	result := p.Run(context.Background(), task)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.ErrorKindAuth, result.Errors[0].Kind)
	assert.Equal(t, model.TaskStateFailure, result.State())
}

func TestArchivePipeline_Run_ResolvesCredentialFromStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	source := mocks.NewMockSourceGateway(ctrl)
	sink := mocks.NewMockSinkGateway(ctrl)
	creds := mocks.NewMockCredentialStore(ctrl)
	p := newTestPipeline(t, ArchivePipelineOptions{Source: source, Sink: sink, Credentials: creds})

	task := testTaskRecord()
	task.Spec.CredentialRef = "ref-1"

	creds.EXPECT().Resolve(ctx, "ref-1").Return("oauth-token", nil)
	sink.EXPECT().EnsureFolder(ctx, "oauth-token", gomock.Any()).
		Return(&core.Folder{ID: "f", Path: "jan-incident"}, nil).Times(2)
	source.EXPECT().Search(ctx, gomock.Any()).Return(&core.SearchPage{}, nil)

	result := p.Run(ctx, task)
	require.Empty(t, result.Errors)
	require.Len(t, result.Summaries, 1)
	assert.Zero(t, result.Summaries[0].TweetsFetched)
	assert.Zero(t, result.Summaries[0].FilesWritten)
}

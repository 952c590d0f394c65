package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fimiwatch/tweetvault/internal/domain/model"
)

// This file contains repository and gateway interface definitions (ports in
// hexagonal architecture). Service implementations should depend on these
// interfaces, not concrete implementations.

// TaskRepository defines the interface for archive task data operations.
type TaskRepository interface {
	Create(ctx context.Context, req *model.CreateTaskRequest) (*model.TaskRecord, error)
	GetByID(ctx context.Context, id string) (*model.TaskRecord, error)
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.TaskRecord, error)
	WaitForNotification(ctx context.Context) error
	Heartbeat(ctx context.Context, taskID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string, result *model.TaskResult) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context) (*model.TaskStats, error)
	List(ctx context.Context, opts *model.TaskListOptions) ([]*model.TaskRecord, error)
	Delete(ctx context.Context, id string) error
}

// DeleteOldTasksParams groups parameters for DeleteOldTasks to keep param count ≤3.
type DeleteOldTasksParams struct {
	State     model.TaskState
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for task cleanup operations.
type ReaperRepository interface {
	// FailStaleRunningTasks marks running tasks whose lease expired more than
	// maxAge ago as failed. Processes up to batchSize tasks per call to
	// prevent long locks. Returns the number of tasks marked as failed.
	FailStaleRunningTasks(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldTasks deletes terminal tasks in the given state older than
	// maxAge. Processes up to batchSize tasks per call.
	DeleteOldTasks(ctx context.Context, params DeleteOldTasksParams) (int64, error)
}

// SearchPage holds one page of records from the source along with the
// pagination token for the next page, if any. Includes carries the raw
// expansion objects (users, media, polls, places) so archives stay
// self-contained.
type SearchPage struct {
	Records   []model.Record
	Includes  json.RawMessage
	NextToken string
}

// SearchParams groups parameters for SourceGateway.Search.
type SearchParams struct {
	Query     string
	StartDate time.Time
	EndDate   time.Time
	NextToken string
	PageSize  int
}

// CountParams groups parameters for SourceGateway.Count.
type CountParams struct {
	Query     string
	StartDate time.Time
	EndDate   time.Time
}

// SourceGateway defines the interface for fetching records from the upstream
// data source.
type SourceGateway interface {
	Search(ctx context.Context, params SearchParams) (*SearchPage, error)
	Count(ctx context.Context, params CountParams) (int, error)
}

// Folder identifies a folder in the sink by its remote ID and display path.
type Folder struct {
	ID   string
	Path string
}

// UploadParams groups parameters for SinkGateway.Upload.
type UploadParams struct {
	FolderID string
	Filename string
	Content  []byte
	MimeType string
}

// SinkEntry describes one file or folder listed from the sink.
type SinkEntry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	IsFolder bool      `json:"is_folder"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// SinkGateway defines the interface for the remote file store that archived
// records are written to.
type SinkGateway interface {
	// EnsureFolder resolves the folder at the given path segments under the
	// root, creating any missing segments. Repeated calls with the same path
	// return the same folder.
	EnsureFolder(ctx context.Context, credential string, path []string) (*Folder, error)
	Upload(ctx context.Context, credential string, params UploadParams) (string, error)
	ListFolder(ctx context.Context, credential string, folderID string) ([]SinkEntry, error)
}

// EstimateCache defines the interface for short-lived caching of count
// estimates keyed by the request fingerprint.
type EstimateCache interface {
	Get(ctx context.Context, key string) (int, bool, error)
	Set(ctx context.Context, key string, count int, ttl time.Duration) error
}

// CredentialStore defines the interface for resolving sink credentials from
// opaque references carried on task specs.
type CredentialStore interface {
	Resolve(ctx context.Context, ref string) (string, error)
	Store(ctx context.Context, ref, credential string, ttl time.Duration) error
}

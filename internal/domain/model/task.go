// Package model defines the core data types and structures used throughout the tweetvault task system.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TaskState represents the current lifecycle state of an archive task.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type TaskState string

const (
	// TaskStatePending indicates a task is waiting to be picked up by a worker.
	TaskStatePending TaskState = "pending"
	// TaskStateRunning indicates a worker has claimed the task and is processing it.
	TaskStateRunning TaskState = "running"
	// TaskStateSuccess indicates every (account, query) pair completed without error.
	TaskStateSuccess TaskState = "success"
	// TaskStatePartialFailure indicates some pairs succeeded and at least one failed.
	TaskStatePartialFailure TaskState = "partial_failure"
	// TaskStateFailure indicates the task failed as a whole (auth, timeout, or sink unreachable).
	TaskStateFailure TaskState = "failure"
)

// ErrNoTasksAvailable is returned when no tasks are available for reservation.
var ErrNoTasksAvailable = errors.New("no tasks available")

// UnmarshalText implements encoding.TextUnmarshaler for TaskState to allow env parsing.
func (s *TaskState) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	ts := TaskState(v)
	if ts.Valid() {
		*s = ts
		return nil
	}
	return fmt.Errorf("invalid TaskState: %q", v)
}

// Valid returns true if the TaskState is one of the known lifecycle states.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateRunning, TaskStateSuccess, TaskStatePartialFailure, TaskStateFailure:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition can occur from this state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateSuccess, TaskStatePartialFailure, TaskStateFailure:
		return true
	default:
		return false
	}
}

// JobSpec is the immutable description of one download request.
type JobSpec struct {
	Accounts     []string  `json:"accounts"`
	Queries      []string  `json:"queries"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	EventLabel   string    `json:"event_label"`
	PerTaskLimit int       `json:"per_task_limit,omitempty"`

	// CredentialRef names the session whose stored source/sink tokens the
	// worker uses. Tokens themselves never land in the task row.
	CredentialRef string `json:"credential_ref,omitempty"`
}

// Validate checks the JobSpec invariants: at least one account or query,
// a non-decreasing date range, and a non-negative limit.
func (s *JobSpec) Validate() error {
	if len(s.Accounts) == 0 && len(s.Queries) == 0 {
		return errors.New("at least one account or query is required")
	}
	for _, a := range s.Accounts {
		if strings.TrimSpace(a) == "" {
			return errors.New("account names must be non-empty")
		}
	}
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return errors.New("start and end dates are required")
	}
	if s.EndDate.Before(s.StartDate) {
		return errors.New("end date must not precede start date")
	}
	if s.PerTaskLimit < 0 {
		return errors.New("per task limit must be >= 0")
	}
	return nil
}

// ValidateForDownload applies the extra constraints a download submission
// carries on top of the base invariants.
func (s *JobSpec) ValidateForDownload() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(s.EventLabel) == "" {
		return errors.New("event label is required")
	}
	return nil
}

// Pair is one (account, query) work unit processed independently within a task.
type Pair struct {
	Account string `json:"account"`
	Query   string `json:"query"`
}

// Key returns a stable identifier for the pair, used in summaries and cache keys.
func (p Pair) Key() string {
	return p.Account + "\x1f" + p.Query
}

// Label returns the human-readable destination subfolder name for the pair.
// Accounts win over bare queries, matching the folder layout on the sink.
func (p Pair) Label() string {
	if p.Account != "" {
		return p.Account
	}
	return p.Query
}

// SearchQuery builds the upstream search expression for the pair.
func (p Pair) SearchQuery() string {
	switch {
	case p.Account != "" && p.Query != "":
		return "from:" + p.Account + " " + p.Query
	case p.Account != "":
		return "from:" + p.Account
	default:
		return p.Query
	}
}

// Pairs returns the Cartesian product of accounts and queries in deterministic
// order: accounts outer, queries inner. An empty side contributes the empty
// string once, so a spec with only accounts still yields one pair per account.
func (s *JobSpec) Pairs() []Pair {
	accounts := s.Accounts
	if len(accounts) == 0 {
		accounts = []string{""}
	}
	queries := s.Queries
	if len(queries) == 0 {
		queries = []string{""}
	}

	pairs := make([]Pair, 0, len(accounts)*len(queries))
	for _, a := range accounts {
		for _, q := range queries {
			if a == "" && q == "" {
				continue
			}
			pairs = append(pairs, Pair{Account: a, Query: q})
		}
	}
	return pairs
}

// Fingerprint returns a stable digest of the spec's filter fields. Two specs
// that would archive the same data share a fingerprint regardless of the
// order accounts and queries were supplied in.
func (s *JobSpec) Fingerprint() string {
	accounts := append([]string(nil), s.Accounts...)
	queries := append([]string(nil), s.Queries...)
	sort.Strings(accounts)
	sort.Strings(queries)

	h := sha256.New()
	for _, a := range accounts {
		h.Write([]byte("a:" + a + "\n"))
	}
	for _, q := range queries {
		h.Write([]byte("q:" + q + "\n"))
	}
	h.Write([]byte(s.StartDate.UTC().Format(time.RFC3339) + "\n"))
	h.Write([]byte(s.EndDate.UTC().Format(time.RFC3339) + "\n"))
	h.Write([]byte(s.EventLabel + "\n"))
	fmt.Fprintf(h, "limit:%d\n", s.PerTaskLimit)
	return hex.EncodeToString(h.Sum(nil))
}

// ErrorKind classifies a work-unit or task failure.
type ErrorKind string

const (
	// ErrorKindAuth indicates the gateway rejected our credentials; fatal to the task.
	ErrorKindAuth ErrorKind = "auth"
	// ErrorKindRateLimit indicates the source rate limit stayed exhausted after backoff.
	ErrorKindRateLimit ErrorKind = "rate_limit"
	// ErrorKindUpload indicates the sink rejected a folder or file write.
	ErrorKindUpload ErrorKind = "upload"
	// ErrorKindMalformed indicates the source returned a response we could not decode.
	ErrorKindMalformed ErrorKind = "malformed_response"
	// ErrorKindTimeout indicates the per-task wall-clock ceiling was exceeded.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindInternal indicates an unclassified failure.
	ErrorKindInternal ErrorKind = "internal"
)

// ResultSummary records the outcome of one successfully processed pair.
type ResultSummary struct {
	Pair          Pair     `json:"pair"`
	TweetsFetched int      `json:"tweets_fetched"`
	FilesWritten  int      `json:"files_written"`
	FolderPath    string   `json:"folder_path"`
	FolderID      string   `json:"folder_id,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// ErrorDetail records one classified failure, scoped to a pair unless the
// whole task failed (in which case Pair is zero).
type ErrorDetail struct {
	Pair    Pair      `json:"pair,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// TaskResult aggregates per-pair outcomes for a terminal task.
type TaskResult struct {
	Summaries []ResultSummary `json:"summaries,omitempty"`
	Errors    []ErrorDetail   `json:"errors,omitempty"`
}

// State derives the terminal state a result implies. Auth and timeout errors
// sink the whole task even when earlier pairs finished; their summaries stay
// in the payload.
func (r *TaskResult) State() TaskState {
	if len(r.Errors) == 0 {
		return TaskStateSuccess
	}
	if r.HasErrorKind(ErrorKindAuth) || r.HasErrorKind(ErrorKindTimeout) {
		return TaskStateFailure
	}
	if len(r.Summaries) == 0 {
		return TaskStateFailure
	}
	return TaskStatePartialFailure
}

// HasErrorKind reports whether any recorded error carries the given kind.
func (r *TaskResult) HasErrorKind(kind ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// TaskRecord is the lifecycle and result state for one submitted job.
type TaskRecord struct {
	ID             string      `json:"id"                         db:"id"`
	State          TaskState   `json:"state"                      db:"state"`
	Spec           JobSpec     `json:"spec"                       db:"spec"`
	Result         *TaskResult `json:"result,omitempty"           db:"result"`
	LastError      *string     `json:"last_error,omitempty"       db:"last_error"`
	Attempts       int         `json:"attempts"                   db:"attempts"`
	MaxAttempts    int         `json:"max_attempts"               db:"max_attempts"`
	SubmittedAt    time.Time   `json:"submitted_at"               db:"submitted_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"     db:"completed_at"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time   `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"                 db:"updated_at"`
}

// CreateTaskRequest represents a request to create a new archive task.
type CreateTaskRequest struct {
	Spec JobSpec `json:"spec"`
}

// Validate validates the CreateTaskRequest fields.
func (r *CreateTaskRequest) Validate() error {
	return r.Spec.ValidateForDownload()
}

// TaskStats represents counts of tasks in each lifecycle state.
type TaskStats struct {
	Pending        int `json:"pending"`
	Running        int `json:"running"`
	Success        int `json:"success"`
	PartialFailure int `json:"partial_failure"`
	Failure        int `json:"failure"`
}

// TaskStatusResponse is the polling payload for one task.
type TaskStatusResponse struct {
	TaskID      string      `json:"task_id"`
	State       TaskState   `json:"state"`
	Result      *TaskResult `json:"result,omitempty"`
	LastError   *string     `json:"error,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

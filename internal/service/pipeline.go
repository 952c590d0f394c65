package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
	apperrors "github.com/fimiwatch/tweetvault/internal/errors"
)

const (
	defaultPipelinePageSize = 100
	defaultBackoffBase      = 2 * time.Second
	defaultBackoffCap       = time.Minute
	defaultRateLimitRetries = 3

	archiveMimeType = "application/json"
)

// ArchivePipelineOptions groups dependencies for ArchivePipeline.
type ArchivePipelineOptions struct {
	Source      core.SourceGateway   // Required: tweet search gateway
	Sink        core.SinkGateway     // Required: archive file store
	Credentials core.CredentialStore // Optional: resolves sink credentials from task refs
	Serializer  *PageSerializer      // Optional: defaults to a fresh serializer
	Logger      *slog.Logger         // Optional: structured logger

	PageSize   int    // Optional: records per search page (default 100)
	RootFolder string // Optional: sink folder all event folders live under

	BackoffBase      time.Duration // Optional: first rate-limit backoff (default 2s)
	BackoffCap       time.Duration // Optional: backoff ceiling (default 1m)
	RateLimitRetries int           // Optional: backoff attempts before giving up on a pair (default 3)

	// Sleep overrides the backoff sleep, letting tests skip real waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ArchivePipeline executes one archive task: it walks every (account, query)
// pair, pages through the source, and uploads each page to the sink under
// <root>/<event>/<target>.
//
// Per-pair failures are recorded and iteration continues; auth failures abort
// the task since every remaining pair would hit the same wall.
type ArchivePipeline struct {
	source      core.SourceGateway
	sink        core.SinkGateway
	credentials core.CredentialStore
	serializer  *PageSerializer
	logger      *slog.Logger

	pageSize   int
	rootFolder string

	backoffBase time.Duration
	backoffCap  time.Duration
	retries     int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewArchivePipeline constructs a new ArchivePipeline.
func NewArchivePipeline(opts ArchivePipelineOptions) (*ArchivePipeline, error) {
	if opts.Source == nil {
		return nil, errors.New("SourceGateway is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("SinkGateway is required")
	}

	serializer := opts.Serializer
	if serializer == nil {
		serializer = NewPageSerializer(PageSerializerOptions{})
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPipelinePageSize
	}

	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}
	backoffCap := opts.BackoffCap
	if backoffCap <= 0 {
		backoffCap = defaultBackoffCap
	}
	retries := opts.RateLimitRetries
	if retries <= 0 {
		retries = defaultRateLimitRetries
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "archive_pipeline")
	}

	return &ArchivePipeline{
		source:      opts.Source,
		sink:        opts.Sink,
		credentials: opts.Credentials,
		serializer:  serializer,
		logger:      logger,
		pageSize:    pageSize,
		rootFolder:  opts.RootFolder,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		retries:     retries,
		sleep:       sleep,
	}, nil
}

// MustNewArchivePipeline constructs a new ArchivePipeline and panics on error.
func MustNewArchivePipeline(opts ArchivePipelineOptions) *ArchivePipeline {
	p, err := NewArchivePipeline(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ArchivePipeline: %v", err))
	}
	return p
}

// Run executes the task and returns its result. Run never returns an error:
// every failure mode lands in the result so the terminal state can be derived
// from it.
func (p *ArchivePipeline) Run(ctx context.Context, task *model.TaskRecord) *model.TaskResult {
	result := &model.TaskResult{}
	spec := &task.Spec

	credential, err := p.resolveCredential(ctx, spec)
	if err != nil {
		result.Errors = append(result.Errors, model.ErrorDetail{
			Kind:    model.ErrorKindAuth,
			Message: err.Error(),
		})
		return result
	}

	eventPath := p.eventFolderPath(spec.EventLabel)
	eventFolder, err := p.sink.EnsureFolder(ctx, credential, eventPath)
	if err != nil {
		result.Errors = append(result.Errors, model.ErrorDetail{
			Kind:    classifyErrorKind(err),
			Message: fmt.Sprintf("ensure event folder: %v", err),
		})
		return result
	}

	for _, pair := range spec.Pairs() {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, model.ErrorDetail{
				Kind:    model.ErrorKindTimeout,
				Message: "task deadline exceeded before pair started",
			})
			break
		}

		summary, detail := p.runPair(ctx, pairContext{
			Credential: credential,
			Spec:       spec,
			Pair:       pair,
			EventPath:  eventPath,
		})
		if detail != nil {
			if detail.Kind == model.ErrorKindTimeout {
				// The deadline sinks every remaining pair too; record it
				// once at task scope rather than per pair.
				result.Errors = append(result.Errors, model.ErrorDetail{
					Kind:    model.ErrorKindTimeout,
					Message: detail.Message,
				})
				break
			}
			result.Errors = append(result.Errors, *detail)
			if detail.Kind == model.ErrorKindAuth {
				if p.logger != nil {
					p.logger.WarnContext(ctx, "aborting task on auth failure",
						"task_id", task.ID, "pair", pair.Label())
				}
				break
			}
			continue
		}
		result.Summaries = append(result.Summaries, *summary)
	}

	if p.logger != nil {
		p.logger.InfoContext(ctx, "archive task processed",
			"task_id", task.ID,
			"event_folder", eventFolder.Path,
			"pairs_ok", len(result.Summaries),
			"pairs_failed", len(result.Errors),
		)
	}

	return result
}

// pairContext groups per-pair inputs to keep param count ≤3.
type pairContext struct {
	Credential string
	Spec       *model.JobSpec
	Pair       model.Pair
	EventPath  []string
}

func (p *ArchivePipeline) runPair(
	ctx context.Context,
	pc pairContext,
) (*model.ResultSummary, *model.ErrorDetail) {
	pairPath := append(append([]string(nil), pc.EventPath...), SanitizeFilename(pc.Pair.Label()))
	folder, err := p.sink.EnsureFolder(ctx, pc.Credential, pairPath)
	if err != nil {
		return nil, p.pairError(pc.Pair, err, "ensure pair folder")
	}

	summary := &model.ResultSummary{
		Pair:       pc.Pair,
		FolderPath: folder.Path,
		FolderID:   folder.ID,
	}

	limit := pc.Spec.PerTaskLimit
	nextToken := ""
	pageNum := 0

	for {
		page, warnings, err := p.searchWithBackoff(ctx, core.SearchParams{
			Query:     pc.Pair.SearchQuery(),
			StartDate: pc.Spec.StartDate,
			EndDate:   pc.Spec.EndDate,
			NextToken: nextToken,
			PageSize:  p.pageSize,
		})
		summary.Warnings = append(summary.Warnings, warnings...)
		if err != nil {
			return nil, p.pairError(pc.Pair, err, "search")
		}

		records := page.Records
		if limit > 0 && summary.TweetsFetched+len(records) > limit {
			records = records[:limit-summary.TweetsFetched]
		}

		if len(records) > 0 {
			pageNum++
			serialized, err := p.serializer.Serialize(PageInput{
				Spec:       pc.Spec,
				Pair:       pc.Pair,
				Page:       &core.SearchPage{Records: records, Includes: page.Includes},
				PageNumber: pageNum,
			})
			if err != nil {
				return nil, p.pairError(pc.Pair, err, "serialize page")
			}

			if _, err := p.sink.Upload(ctx, pc.Credential, core.UploadParams{
				FolderID: folder.ID,
				Filename: serialized.Filename,
				Content:  serialized.Content,
				MimeType: archiveMimeType,
			}); err != nil {
				return nil, p.pairError(pc.Pair, err, "upload page")
			}

			summary.TweetsFetched += len(records)
			summary.FilesWritten++

			if p.logger != nil {
				p.logger.DebugContext(ctx, "archived page",
					"pair", pc.Pair.Label(),
					"page", pageNum,
					"records", serialized.RecordCount,
					"first_id", serialized.FirstID,
					"last_id", serialized.LastID,
				)
			}
		}

		if limit > 0 && summary.TweetsFetched >= limit {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("stopped at per-task limit of %d tweets", limit))
			break
		}
		nextToken = page.NextToken
		if nextToken == "" {
			break
		}
	}

	return summary, nil
}

// searchWithBackoff fetches one page, retrying over rate-limit responses with
// bounded exponential backoff. A recovered backoff surfaces as a warning so
// operators can see slow pairs without digging through logs.
func (p *ArchivePipeline) searchWithBackoff(
	ctx context.Context,
	params core.SearchParams,
) (*core.SearchPage, []string, error) {
	var warnings []string

	for attempt := 0; ; attempt++ {
		page, err := p.source.Search(ctx, params)
		if err == nil {
			if attempt > 0 {
				warnings = append(warnings,
					fmt.Sprintf("rate limited, recovered after %d backoff(s)", attempt))
			}
			return page, warnings, nil
		}

		if !apperrors.IsRateLimit(err) || attempt >= p.retries {
			return nil, warnings, err
		}

		wait := p.backoffDelay(attempt, err)
		if p.logger != nil {
			p.logger.DebugContext(ctx, "backing off on rate limit",
				"query", params.Query, "attempt", attempt+1, "wait", wait)
		}
		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return nil, warnings, err
		}
	}
}

// backoffDelay picks the wait before the next attempt: the server's hint when
// present, otherwise base doubled per attempt, always capped.
func (p *ArchivePipeline) backoffDelay(attempt int, err error) time.Duration {
	wait := p.backoffBase << attempt
	if hint, ok := apperrors.RetryAfterHint(err); ok && hint > 0 {
		wait = hint
	}
	if wait > p.backoffCap {
		wait = p.backoffCap
	}
	return wait
}

func (p *ArchivePipeline) resolveCredential(ctx context.Context, spec *model.JobSpec) (string, error) {
	if spec.CredentialRef == "" {
		return "", nil
	}
	if p.credentials == nil {
		return "", errors.New("task carries a credential ref but no credential store is configured")
	}
	credential, err := p.credentials.Resolve(ctx, spec.CredentialRef)
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	return credential, nil
}

func (p *ArchivePipeline) eventFolderPath(eventLabel string) []string {
	var path []string
	if p.rootFolder != "" {
		path = append(path, p.rootFolder)
	}
	return append(path, SanitizeFilename(eventLabel))
}

func (p *ArchivePipeline) pairError(pair model.Pair, err error, op string) *model.ErrorDetail {
	return &model.ErrorDetail{
		Pair:    pair,
		Kind:    classifyErrorKind(err),
		Message: fmt.Sprintf("%s: %v", op, err),
	}
}

// classifyErrorKind maps an error to the result taxonomy.
func classifyErrorKind(err error) model.ErrorKind {
	switch {
	case apperrors.IsAuth(err):
		return model.ErrorKindAuth
	case apperrors.IsRateLimit(err):
		return model.ErrorKindRateLimit
	case apperrors.IsUpload(err):
		return model.ErrorKindUpload
	case apperrors.IsMalformed(err):
		return model.ErrorKindMalformed
	case apperrors.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return model.ErrorKindTimeout
	default:
		return model.ErrorKindInternal
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
	apperrors "github.com/fimiwatch/tweetvault/internal/errors"
)

const defaultEstimateTTL = 5 * time.Minute

// EstimateServiceOptions groups dependencies for EstimateService.
type EstimateServiceOptions struct {
	Source   core.SourceGateway // Required: upstream count endpoint
	Cache    core.EstimateCache // Optional: short-lived count cache
	CacheTTL time.Duration      // Optional: cache entry lifetime (default 5m)
	Logger   *slog.Logger       // Optional: structured logger
}

// EstimateService answers "how many tweets would this download fetch" without
// submitting a task. Counts are resolved per (account, query) pair so repeat
// requests over the same window hit the cache instead of the source.
type EstimateService struct {
	source   core.SourceGateway
	cache    core.EstimateCache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewEstimateService constructs a new EstimateService.
func NewEstimateService(opts EstimateServiceOptions) (*EstimateService, error) {
	if opts.Source == nil {
		return nil, errors.New("SourceGateway is required")
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultEstimateTTL
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "estimate_service")
	}

	return &EstimateService{
		source:   opts.Source,
		cache:    opts.Cache,
		cacheTTL: ttl,
		logger:   logger,
	}, nil
}

// MustNewEstimateService constructs a new EstimateService and panics on error.
func MustNewEstimateService(opts EstimateServiceOptions) *EstimateService {
	svc, err := NewEstimateService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create EstimateService: %v", err))
	}
	return svc
}

// Estimate resolves the expected tweet count for every pair in the request.
// Cache lookups are best-effort: a cache failure degrades to a source call,
// never to a request failure.
func (s *EstimateService) Estimate(
	ctx context.Context,
	req *model.EstimateRequest,
) (*model.EstimateResponse, error) {
	if req == nil {
		return nil, apperrors.Validation("estimate request is required")
	}

	spec := req.Spec()
	if err := spec.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	resp := &model.EstimateResponse{}
	for _, pair := range spec.Pairs() {
		est, err := s.estimatePair(ctx, spec, pair)
		if err != nil {
			return nil, err
		}
		resp.Pairs = append(resp.Pairs, est)
		resp.Total += est.Count
	}

	return resp, nil
}

func (s *EstimateService) estimatePair(
	ctx context.Context,
	spec *model.JobSpec,
	pair model.Pair,
) (model.PairEstimate, error) {
	key := pairEstimateKey(spec, pair)

	if s.cache != nil {
		count, ok, err := s.cache.Get(ctx, key)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "estimate cache read failed", "pair", pair.Label(), "error", err)
		}
		if ok {
			return model.PairEstimate{Pair: pair, Count: count, Cached: true}, nil
		}
	}

	count, err := s.source.Count(ctx, core.CountParams{
		Query:     pair.SearchQuery(),
		StartDate: spec.StartDate,
		EndDate:   spec.EndDate,
	})
	if err != nil {
		return model.PairEstimate{}, fmt.Errorf("count for %q: %w", pair.Label(), err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, count, s.cacheTTL); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "estimate cache write failed", "pair", pair.Label(), "error", err)
		}
	}

	return model.PairEstimate{Pair: pair, Count: count}, nil
}

// pairEstimateKey derives a stable cache key for one pair over one window.
func pairEstimateKey(spec *model.JobSpec, pair model.Pair) string {
	h := sha256.New()
	h.Write([]byte(pair.SearchQuery() + "\n"))
	h.Write([]byte(spec.StartDate.UTC().Format(time.RFC3339) + "\n"))
	h.Write([]byte(spec.EndDate.UTC().Format(time.RFC3339) + "\n"))
	return hex.EncodeToString(h.Sum(nil))
}

// Package twitterapi implements the source gateway against the Twitter v2
// recent search and counts endpoints.
package twitterapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
	apperrors "github.com/fimiwatch/tweetvault/internal/errors"
)

const (
	defaultBaseURL  = "https://api.twitter.com"
	defaultPageSize = 100
	maxPageSize     = 100

	// defaultCooldown is applied to a rate-limited token when the response
	// carries no usable reset header.
	defaultCooldown = 15 * time.Minute
)

// Field sets requested on every search call so archives are self-contained.
var (
	tweetFields = strings.Join([]string{
		"attachments", "author_id", "context_annotations", "conversation_id",
		"created_at", "edit_controls", "edit_history_tweet_ids", "entities",
		"geo", "id", "in_reply_to_user_id", "lang", "possibly_sensitive",
		"public_metrics", "referenced_tweets", "reply_settings", "source", "text",
		"withheld",
	}, ",")

	expansions = strings.Join([]string{
		"attachments.media_keys", "attachments.poll_ids", "author_id",
		"edit_history_tweet_ids", "entities.mentions.username", "geo.place_id",
		"in_reply_to_user_id", "referenced_tweets.id", "referenced_tweets.id.author_id",
	}, ",")

	userFields = strings.Join([]string{
		"created_at", "description", "entities", "id", "location", "name",
		"pinned_tweet_id", "profile_image_url", "protected", "public_metrics",
		"url", "username", "verified", "verified_type", "withheld",
	}, ",")

	mediaFields = strings.Join([]string{
		"alt_text", "duration_ms", "height", "media_key", "preview_image_url",
		"public_metrics", "type", "url", "variants", "width",
	}, ",")

	pollFields = strings.Join([]string{
		"duration_minutes", "end_datetime", "id", "options", "voting_status",
	}, ",")

	placeFields = strings.Join([]string{
		"contained_within", "country", "country_code", "full_name", "geo", "id",
		"name", "place_type",
	}, ",")
)

// Config holds configuration for the Twitter gateway.
type Config struct {
	BaseURL      string
	BearerTokens []string
	PageSize     int
	// RatePerSecond caps outbound calls across all tokens; zero disables the limiter.
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
	Client        *http.Client
	Logger        *slog.Logger
}

// Client talks to the Twitter v2 search and counts endpoints with a bearer
// token pool and a shared call budget.
type Client struct {
	baseURL  string
	pool     *tokenPool
	pageSize int
	limiter  *rate.Limiter
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewClient builds a Twitter gateway client.
func NewClient(cfg Config) (*Client, error) {
	tokens := make([]string, 0, len(cfg.BearerTokens))
	for _, t := range cfg.BearerTokens {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	if len(tokens) == 0 {
		return nil, errors.New("at least one bearer token is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Client{
		baseURL:  baseURL,
		pool:     newTokenPool(tokens),
		pageSize: pageSize,
		limiter:  limiter,
		client:   hc,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// MustNewClient builds a Twitter gateway client and panics on invalid config.
func MustNewClient(cfg Config) *Client {
	c, err := NewClient(cfg)
	if err != nil {
		panic(fmt.Sprintf("twitterapi.NewClient: %v", err))
	}
	return c
}

type searchResponse struct {
	Data     []json.RawMessage `json:"data"`
	Includes json.RawMessage   `json:"includes"`
	Meta     struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type tweetEnvelope struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type includedUsers struct {
	Users []struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"users"`
}

// Search fetches one page of recent-search results.
func (c *Client) Search(ctx context.Context, params core.SearchParams) (*core.SearchPage, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, apperrors.Validation("search query is required")
	}

	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > c.pageSize {
		pageSize = c.pageSize
	}
	// The endpoint rejects max_results below 10.
	if pageSize < 10 {
		pageSize = 10
	}

	q := url.Values{}
	q.Set("query", params.Query)
	q.Set("start_time", params.StartDate.UTC().Format(time.RFC3339))
	q.Set("end_time", params.EndDate.UTC().Format(time.RFC3339))
	q.Set("max_results", strconv.Itoa(pageSize))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", expansions)
	q.Set("user.fields", userFields)
	q.Set("media.fields", mediaFields)
	q.Set("poll.fields", pollFields)
	q.Set("place.fields", placeFields)
	if params.NextToken != "" {
		q.Set("next_token", params.NextToken)
	}

	body, err := c.get(ctx, "/2/tweets/search/recent", q)
	if err != nil {
		return nil, err
	}

	var decoded searchResponse
	if decodeErr := json.Unmarshal(body, &decoded); decodeErr != nil {
		return nil, apperrors.Wrap(decodeErr, apperrors.ErrCodeMalformed, "decode search response")
	}

	usernames := usernamesByID(decoded.Includes)
	records := make([]model.Record, 0, len(decoded.Data))
	for _, raw := range decoded.Data {
		var env tweetEnvelope
		if envErr := json.Unmarshal(raw, &env); envErr != nil {
			return nil, apperrors.Wrap(envErr, apperrors.ErrCodeMalformed, "decode tweet object")
		}
		if env.ID == "" {
			return nil, apperrors.Malformed("tweet object missing id")
		}
		records = append(records, model.Record{
			ID:        env.ID,
			AuthorID:  env.AuthorID,
			Username:  usernames[env.AuthorID],
			Text:      env.Text,
			CreatedAt: env.CreatedAt,
			Raw:       append(json.RawMessage(nil), raw...),
		})
	}

	return &core.SearchPage{
		Records:   records,
		Includes:  decoded.Includes,
		NextToken: decoded.Meta.NextToken,
	}, nil
}

type countsResponse struct {
	Meta struct {
		TotalTweetCount *int `json:"total_tweet_count"`
	} `json:"meta"`
}

// Count returns the total tweet count for the query over the window.
func (c *Client) Count(ctx context.Context, params core.CountParams) (int, error) {
	if strings.TrimSpace(params.Query) == "" {
		return 0, apperrors.Validation("count query is required")
	}

	q := url.Values{}
	q.Set("query", params.Query)
	q.Set("start_time", params.StartDate.UTC().Format(time.RFC3339))
	q.Set("end_time", params.EndDate.UTC().Format(time.RFC3339))
	q.Set("granularity", "day")

	body, err := c.get(ctx, "/2/tweets/counts/recent", q)
	if err != nil {
		return 0, err
	}

	var decoded countsResponse
	if decodeErr := json.Unmarshal(body, &decoded); decodeErr != nil {
		return 0, apperrors.Wrap(decodeErr, apperrors.ErrCodeMalformed, "decode counts response")
	}
	if decoded.Meta.TotalTweetCount == nil {
		return 0, apperrors.Malformed("counts response missing total_tweet_count")
	}
	return *decoded.Meta.TotalTweetCount, nil
}

// get performs one authenticated GET against the API, rotating the token
// pool and classifying error statuses.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if waitErr := c.limiter.Wait(ctx); waitErr != nil {
			return nil, waitErr
		}
	}

	token, ok := c.pool.next(c.now())
	if !ok {
		soonest := c.pool.soonestAvailable()
		return nil, apperrors.RateLimit("all bearer tokens are cooling down", time.Until(soonest))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "source request failed")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, apperrors.Wrap(readErr, apperrors.ErrCodeInternal, "read source response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.Auth(fmt.Sprintf("source rejected credentials (%d)", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := c.cooldownFromHeaders(resp.Header)
		c.pool.markLimited(token, c.now().Add(retryAfter))
		if c.logger != nil {
			c.logger.WarnContext(ctx, "source rate limited",
				"path", path,
				"retry_after", retryAfter,
			)
		}
		return nil, apperrors.RateLimit("source rate limit exhausted", retryAfter)
	case resp.StatusCode >= 500:
		return nil, apperrors.Internalf("source error %d: %s", resp.StatusCode, truncateBody(body))
	default:
		return nil, apperrors.Malformed(fmt.Sprintf("unexpected source status %d: %s", resp.StatusCode, truncateBody(body)))
	}
}

// cooldownFromHeaders reads the x-rate-limit-reset epoch header, falling back
// to a fixed cooldown.
func (c *Client) cooldownFromHeaders(h http.Header) time.Duration {
	reset := h.Get("x-rate-limit-reset")
	if reset == "" {
		return defaultCooldown
	}
	epoch, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return defaultCooldown
	}
	until := time.Unix(epoch, 0).Sub(c.now())
	if until <= 0 {
		return time.Second
	}
	return until
}

func usernamesByID(includes json.RawMessage) map[string]string {
	if len(includes) == 0 {
		return nil
	}
	var inc includedUsers
	if err := json.Unmarshal(includes, &inc); err != nil {
		return nil
	}
	out := make(map[string]string, len(inc.Users))
	for _, u := range inc.Users {
		out[u.ID] = u.Username
	}
	return out
}

func truncateBody(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

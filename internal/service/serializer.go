package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/domain/model"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

const archiveTimestampLayout = "20060102150405"

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\s]`)
	repeatedUnderscores = regexp.MustCompile(`__+`)
)

// SanitizeFilename makes a name safe for the sink's filesystem view:
// reserved characters and whitespace become underscores, runs of
// underscores collapse, and trailing spaces or dots are stripped.
func SanitizeFilename(name string) string {
	out := unsafeFilenameChars.ReplaceAllString(name, "_")
	out = repeatedUnderscores.ReplaceAllString(out, "_")
	return strings.Trim(out, " .")
}

// PageInput carries one fetched page plus the context needed to name and
// frame its archive file.
type PageInput struct {
	Spec       *model.JobSpec
	Pair       model.Pair
	Page       *core.SearchPage
	PageNumber int
	FetchedAt  time.Time
}

// SerializedPage is one ready-to-upload archive file.
type SerializedPage struct {
	Filename    string
	Content     []byte
	RecordCount int
	FirstID     string
	LastID      string
}

// archiveEnvelope is the on-sink JSON layout for one page. Tweets keep their
// raw upstream shape; includes carry the expansion objects so each file is
// readable on its own.
type archiveEnvelope struct {
	Event       string            `json:"event"`
	Target      string            `json:"target"`
	Query       string            `json:"query"`
	WindowStart time.Time         `json:"window_start"`
	WindowEnd   time.Time         `json:"window_end"`
	FetchedAt   time.Time         `json:"fetched_at"`
	Page        int               `json:"page"`
	TweetCount  int               `json:"tweet_count"`
	Tweets      []json.RawMessage `json:"tweets"`
	Includes    json.RawMessage   `json:"includes,omitempty"`
}

// PageSerializer turns fetched pages into named archive files.
type PageSerializer struct {
	jems  JMESPathEvaluator
	clock func() time.Time
}

// PageSerializerOptions groups optional dependencies for PageSerializer.
type PageSerializerOptions struct {
	Evaluator JMESPathEvaluator // Optional: defaults to go-jmespath
	Clock     func() time.Time  // Optional: defaults to time.Now
}

// NewPageSerializer constructs a PageSerializer.
func NewPageSerializer(opts PageSerializerOptions) *PageSerializer {
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PageSerializer{jems: jems, clock: clock}
}

// Serialize frames one page as an archive file and derives its filename:
// <event>_<target>_download_<start>_<end>_<fetched>.json, all segments
// sanitized.
func (s *PageSerializer) Serialize(in PageInput) (*SerializedPage, error) {
	if in.Spec == nil || in.Page == nil {
		return nil, fmt.Errorf("serialize page: spec and page are required")
	}

	fetchedAt := in.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = s.clock()
	}
	fetchedAt = fetchedAt.UTC()

	tweets := make([]json.RawMessage, 0, len(in.Page.Records))
	for _, rec := range in.Page.Records {
		tweets = append(tweets, rec.Raw)
	}

	env := archiveEnvelope{
		Event:       in.Spec.EventLabel,
		Target:      in.Pair.Label(),
		Query:       in.Pair.SearchQuery(),
		WindowStart: in.Spec.StartDate.UTC(),
		WindowEnd:   in.Spec.EndDate.UTC(),
		FetchedAt:   fetchedAt,
		Page:        in.PageNumber,
		TweetCount:  len(tweets),
		Tweets:      tweets,
		Includes:    in.Page.Includes,
	}

	content, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal archive page: %w", err)
	}

	firstID, lastID := s.boundaryIDs(tweets)

	name := fmt.Sprintf("%s_%s_download_%s_%s_%s",
		SanitizeFilename(in.Spec.EventLabel),
		SanitizeFilename(in.Pair.Label()),
		in.Spec.StartDate.UTC().Format(archiveTimestampLayout),
		in.Spec.EndDate.UTC().Format(archiveTimestampLayout),
		fetchedAt.Format(archiveTimestampLayout),
	)

	return &SerializedPage{
		Filename:    SanitizeFilename(name) + ".json",
		Content:     content,
		RecordCount: len(tweets),
		FirstID:     firstID,
		LastID:      lastID,
	}, nil
}

// boundaryIDs extracts the first and last tweet IDs from the page for
// progress logging. Extraction failures are cosmetic and return empty IDs.
func (s *PageSerializer) boundaryIDs(tweets []json.RawMessage) (string, string) {
	if len(tweets) == 0 {
		return "", ""
	}

	raw, err := json.Marshal(tweets)
	if err != nil {
		return "", ""
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", ""
	}

	ids, err := s.jems.Evaluate("[].id", decoded)
	if err != nil {
		return "", ""
	}
	list, ok := ids.([]any)
	if !ok || len(list) == 0 {
		return "", ""
	}

	first, _ := list[0].(string)
	last, _ := list[len(list)-1].(string)
	return first, last
}

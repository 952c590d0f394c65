package metrics

import (
	"time"

	obserrors "github.com/fimiwatch/tweetvault/internal/observability/errors"
	"github.com/fimiwatch/tweetvault/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultPartial = "partial_failure"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// TaskMetric captures details about a task lifecycle event for metric emission.
type TaskMetric struct {
	Transition string
	Result     string
	Pairs      int
	Duration   time.Duration
	Err        error
}

// EmitTaskLifecycle emits standardised task lifecycle metrics.
func EmitTaskLifecycle(sink statsd.Sink, in TaskMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("task.transition", 1, tags)

	if in.Pairs > 0 {
		sink.Gauge("task.pairs", float64(in.Pairs), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("task.duration", in.Duration, CloneTags(tags))
	}
}

// PairMetric captures details about one (account, query) work unit outcome.
type PairMetric struct {
	Result   string
	Fetched  int
	Uploaded int
	Err      error
}

// EmitPairOutcome emits per-work-unit metrics.
func EmitPairOutcome(sink statsd.Sink, in PairMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("pair.processed", 1, tags)
	if in.Fetched > 0 {
		sink.Count("pair.tweets_fetched", int64(in.Fetched), CloneTags(tags))
	}
	if in.Uploaded > 0 {
		sink.Count("pair.files_written", int64(in.Uploaded), CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty maps.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

package config

import (
	"strings"
	"time"
)

// TwitterConfig contains source API configuration.
type TwitterConfig struct {
	// BaseURL is the API root. Override for tests or proxies.
	BaseURL string `env:"BASE_URL" envDefault:"https://api.twitter.com"`

	// BearerTokens is the pool of app-only tokens rotated on rate limits.
	BearerTokens []string `env:"BEARER_TOKENS" envSeparator:","`

	// PageSize is the max_results value per search request (API allows 10-100).
	PageSize int `env:"PAGE_SIZE" envDefault:"100"`

	// RatePerSecond throttles outbound requests across all workers in this process.
	RatePerSecond float64 `env:"RATE_PER_SECOND" envDefault:"1"`

	// Burst is the rate limiter burst size.
	Burst int `env:"RATE_BURST" envDefault:"1"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to source API configuration values.
func (t *TwitterConfig) Sanitize() {
	tokens := t.BearerTokens[:0]
	for _, token := range t.BearerTokens {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	t.BearerTokens = tokens

	if t.PageSize < 10 {
		t.PageSize = 10
	}
	if t.PageSize > 100 {
		t.PageSize = 100
	}
	if t.RatePerSecond <= 0 {
		t.RatePerSecond = 1
	}
	if t.Burst < 1 {
		t.Burst = 1
	}
	if t.Timeout < time.Second {
		t.Timeout = time.Second
	}
}

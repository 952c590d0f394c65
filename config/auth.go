package config

import (
	"strings"
	"time"
)

// AuthConfig groups API authentication configuration.
//
// Requests authenticate with a bearer API key. The key doubles as the
// credential reference under which callers store their sink tokens, so a
// submitted task can name the session that holds its Drive credential.
type AuthConfig struct {
	// Enabled turns bearer authentication on. When disabled (the default for
	// development) all requests pass and credential refs resolve as-is.
	Enabled bool `env:"AUTH_ENABLED" envDefault:"false"`

	// APIKeys is the list of accepted bearer keys.
	APIKeys []string `env:"AUTH_API_KEYS" envSeparator:","`

	// CredentialTTL is how long stored sink credentials live.
	CredentialTTL time.Duration `env:"AUTH_CREDENTIAL_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to authentication configuration values.
func (a *AuthConfig) Sanitize() {
	keys := a.APIKeys[:0]
	for _, key := range a.APIKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	a.APIKeys = keys

	if a.Enabled && len(a.APIKeys) == 0 {
		a.Enabled = false
	}
	if a.CredentialTTL < time.Minute {
		a.CredentialTTL = time.Minute
	}
}

// Allows reports whether the given bearer key is accepted.
func (a *AuthConfig) Allows(key string) bool {
	if !a.Enabled {
		return true
	}
	for _, k := range a.APIKeys {
		if k == key {
			return true
		}
	}
	return false
}

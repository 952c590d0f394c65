package config

import (
	"strings"
	"time"
)

// DriveConfig contains sink configuration.
type DriveConfig struct {
	// BaseURL is the metadata API root. Override for tests.
	BaseURL string `env:"BASE_URL" envDefault:"https://www.googleapis.com/drive/v3"`

	// UploadURL is the upload API root. Override for tests.
	UploadURL string `env:"UPLOAD_URL" envDefault:"https://www.googleapis.com/upload/drive/v3"`

	// Timeout is the per-request HTTP timeout. Uploads carry whole pages, so
	// this is deliberately generous.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"2m"`

	// RootFolder is the folder all event folders are created under.
	RootFolder string `env:"ROOT_FOLDER" envDefault:"TweetVault"`

	// OAuth holds the service-level token refresh settings used when a task
	// carries no credential reference of its own.
	OAuth DriveOAuthConfig `envPrefix:"OAUTH_"`
}

// DriveOAuthConfig contains OAuth token refresh configuration for the sink.
type DriveOAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	TokenURL     string `env:"TOKEN_URL"     envDefault:"https://oauth2.googleapis.com/token"`
	RefreshToken string `env:"REFRESH_TOKEN"`
}

// Enabled returns true when service-level token refresh is configured.
func (o *DriveOAuthConfig) Enabled() bool {
	return o.ClientID != "" && o.RefreshToken != ""
}

// Sanitize applies guardrails to sink configuration values.
func (d *DriveConfig) Sanitize() {
	d.BaseURL = strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")
	d.UploadURL = strings.TrimRight(strings.TrimSpace(d.UploadURL), "/")
	d.RootFolder = strings.TrimSpace(d.RootFolder)
	if d.Timeout < time.Second {
		d.Timeout = time.Second
	}
}

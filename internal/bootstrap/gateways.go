package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/fimiwatch/tweetvault/config"
	"github.com/fimiwatch/tweetvault/internal/adapters/drive"
	"github.com/fimiwatch/tweetvault/internal/adapters/twitterapi"
)

// BuildSourceGateway builds the Twitter search/counts client from config.
func BuildSourceGateway(cfg config.TwitterConfig, logger *slog.Logger) (*twitterapi.Client, error) {
	client, err := twitterapi.NewClient(twitterapi.Config{
		BaseURL:       cfg.BaseURL,
		BearerTokens:  cfg.BearerTokens,
		PageSize:      cfg.PageSize,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		Timeout:       cfg.Timeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create twitter client: %w", err)
	}
	return client, nil
}

// BuildSinkGateway builds the Drive client from config. When service-level
// OAuth is configured, requests go through an auto-refreshing oauth2 client so
// tasks without a stored per-caller token still authenticate.
func BuildSinkGateway(ctx context.Context, cfg config.DriveConfig, logger *slog.Logger) (*drive.Client, error) {
	var httpClient *http.Client
	if cfg.OAuth.Enabled() {
		httpClient = oauthHTTPClient(ctx, cfg)
		if logger != nil {
			logger.Info("drive service-level oauth enabled", "token_url", cfg.OAuth.TokenURL)
		}
	}

	client, err := drive.NewClient(drive.Config{
		BaseURL:   cfg.BaseURL,
		UploadURL: cfg.UploadURL,
		Timeout:   cfg.Timeout,
		Client:    httpClient,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return client, nil
}

func oauthHTTPClient(ctx context.Context, cfg config.DriveConfig) *http.Client {
	oc := &oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuth.TokenURL},
	}
	ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.OAuth.RefreshToken})
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, ts))
}

package httpx

import (
	"net/http"

	"github.com/fimiwatch/tweetvault/config"
	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Tasks     *service.TaskService
	Estimates *service.EstimateService
	// Optional: sink access for the archive listing endpoint.
	Sink core.SinkGateway
	// Optional: per-caller stored sink tokens.
	Credentials core.CredentialStore
	Auth        config.AuthConfig
	RootFolder  string
}

// NewRouter creates and configures the archive API router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	auth := RequireAPIKey(services.Auth)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(h))
	}

	taskHandlers := &TaskHandlers{Svc: services.Tasks}
	handle("POST /download", taskHandlers.Download)
	handle("GET /task_status/{id}", taskHandlers.GetStatus)
	handle("GET /task_stats", taskHandlers.Stats)
	handle("GET /tasks", taskHandlers.List)
	handle("DELETE /tasks/{id}", taskHandlers.Delete)

	if services.Estimates != nil {
		estimateHandlers := &EstimateHandlers{Svc: services.Estimates}
		handle("POST /estimate", estimateHandlers.Estimate)
	}

	if services.Sink != nil {
		driveHandlers := &DriveHandlers{
			Sink:        services.Sink,
			Credentials: services.Credentials,
			RootFolder:  services.RootFolder,
		}
		handle("GET /drive/files", driveHandlers.ListFiles)
	}

	if services.Credentials != nil {
		credentialHandlers := &CredentialHandlers{
			Credentials: services.Credentials,
			TTL:         services.Auth.CredentialTTL,
		}
		handle("POST /credentials", credentialHandlers.Store)
	}

	// Health probes bypass auth.
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	return mux
}

package httpx

import (
	"net/http"
	"strings"

	"github.com/fimiwatch/tweetvault/internal/core"
	apperrors "github.com/fimiwatch/tweetvault/internal/errors"
)

// DriveHandlers exposes read access to the archive folder tree in the sink.
type DriveHandlers struct {
	Sink        core.SinkGateway
	Credentials core.CredentialStore
	RootFolder  string
}

// ListFiles lists the entries under an archive folder path. The path query
// parameter uses "/" separators relative to the root folder; empty lists the
// root itself.
func (h *DriveHandlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	credential, ok := h.resolveCredential(w, r)
	if !ok {
		return
	}

	segments := []string{h.RootFolder}
	if raw := strings.Trim(r.URL.Query().Get("path"), "/"); raw != "" {
		segments = append(segments, strings.Split(raw, "/")...)
	}

	folder, err := h.Sink.EnsureFolder(r.Context(), credential, segments)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	entries, err := h.Sink.ListFolder(r.Context(), credential, folder.ID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"folder":  folder,
		"entries": entries,
	})
}

// resolveCredential loads the caller's stored sink token when a credential
// store is wired; otherwise the service-level OAuth client carries auth and
// an empty credential is fine.
func (h *DriveHandlers) resolveCredential(w http.ResponseWriter, r *http.Request) (string, bool) {
	ref, ok := CredentialRefFromContext(r.Context())
	if !ok || h.Credentials == nil {
		return "", true
	}

	credential, err := h.Credentials.Resolve(r.Context(), ref)
	if err != nil {
		// No stored token under this key: fall back to the service-level
		// client rather than refusing the request.
		if apperrors.IsAuth(err) {
			return "", true
		}
		WriteServiceError(w, err)
		return "", false
	}
	return credential, true
}

package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fimiwatch/tweetvault/internal/core"
)

// CredentialHandlers stores caller sink tokens under opaque references.
// Tokens live only in the store under a TTL; task rows carry the reference.
type CredentialHandlers struct {
	Credentials core.CredentialStore
	TTL         time.Duration
}

type storeCredentialRequest struct {
	Credential string `json:"credential"`
}

// Store saves the caller's sink token. Authenticated callers get it keyed
// under their bearer key so later downloads pick it up implicitly; anonymous
// callers get a fresh opaque reference to pass along in the job spec.
func (h *CredentialHandlers) Store(w http.ResponseWriter, r *http.Request) {
	var req storeCredentialRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Credential == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation_failed",
			Err:     errors.New("credential is required"),
		})
		return
	}

	ref, ok := CredentialRefFromContext(r.Context())
	if !ok {
		ref = uuid.NewString()
	}

	if err := h.Credentials.Store(r.Context(), ref, req.Credential, h.TTL); err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"credential_ref": ref,
		"expires_in":     int(h.TTL.Seconds()),
	})
}

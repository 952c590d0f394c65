package httpx

import (
	"net/http"

	"github.com/fimiwatch/tweetvault/internal/domain/model"
	"github.com/fimiwatch/tweetvault/internal/service"
)

// EstimateHandlers provides the synchronous tweet-count estimate endpoint.
type EstimateHandlers struct {
	Svc *service.EstimateService
}

// Estimate returns the estimated tweet count per account/query pair. Counts
// come from the source counts endpoint, short-circuited by the Redis cache.
func (h *EstimateHandlers) Estimate(w http.ResponseWriter, r *http.Request) {
	var req model.EstimateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Svc.Estimate(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

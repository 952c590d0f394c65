package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fimiwatch/tweetvault/internal/data"
	apperrors "github.com/fimiwatch/tweetvault/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError to adhere to the ≤3 params guideline.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// WriteServiceError maps repository sentinels and typed application errors to
// HTTP status codes. Unknown errors fall through to 500.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, data.ErrTaskNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "task_not_found", Err: errors.New("task not found")})
	case errors.Is(err, data.ErrTaskInFlight):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "duplicate_task", Err: err})
	case errors.Is(err, data.ErrTaskNotDeletable):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "task_running", Err: err})
	case apperrors.IsValidation(err):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
	case apperrors.IsNotFound(err):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	case apperrors.IsConflict(err):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "conflict", Err: err})
	case apperrors.IsAuth(err):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "unauthorized", Err: err})
	case apperrors.IsRateLimit(err):
		WriteError(w, ErrorParams{Code: http.StatusTooManyRequests, ErrCode: "rate_limited", Err: err})
	default:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal_error", Err: err})
	}
}

package httpx

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/fimiwatch/tweetvault/config"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// credentialRefKey is an unexported context key type for the caller's credential reference.
type credentialRefKey struct{}

// RequireAPIKey returns a middleware that validates the bearer API key.
// The accepted key doubles as the caller's credential reference: stored sink
// tokens are keyed under it, and the submit path snapshots it into the task
// spec when the request itself carries none.
func RequireAPIKey(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := bearerToken(r)
			if key == "" || !cfg.Allows(key) {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("a valid bearer API key is required"),
				})
				return
			}

			ctx := context.WithValue(r.Context(), credentialRefKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CredentialRefFromContext returns the credential reference established by
// RequireAPIKey, if any.
func CredentialRefFromContext(ctx context.Context) (string, bool) {
	ref, ok := ctx.Value(credentialRefKey{}).(string)
	return ref, ok && ref != ""
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// gzipPool reuses gzip writers across requests.
var gzipPool = sync.Pool{ //nolint:gochecknoglobals // writer pool, safe for concurrent use
	New: func() any { return gzip.NewWriter(io.Discard) },
}

// Compression returns a middleware that gzips JSON responses when the client
// accepts gzip encoding. HEAD requests and already-encoded responses pass
// through unchanged.
func Compression() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Accept-Encoding")

			gz, _ := gzipPool.Get().(*gzip.Writer)
			gzw := &gzipResponseWriter{ResponseWriter: w, gz: gz}
			defer func() {
				gzw.close()
				gz.Reset(io.Discard)
				gzipPool.Put(gz)
			}()

			next.ServeHTTP(gzw, r)
		})
	}
}

// acceptsGzip checks if the client accepts gzip encoding, honoring an explicit q=0.
func acceptsGzip(acceptEncoding string) bool {
	for part := range strings.SplitSeq(acceptEncoding, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		encoding, params, _ := strings.Cut(part, ";")
		if strings.TrimSpace(encoding) != "gzip" {
			continue
		}
		params = strings.ReplaceAll(params, " ", "")
		if params == "q=0" || params == "q=0.0" {
			return false
		}
		return true
	}
	return false
}

// gzipResponseWriter compresses the body when the response is compressible.
type gzipResponseWriter struct {
	http.ResponseWriter
	gz            *gzip.Writer
	headerWritten bool
	compressing   bool
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	if w.headerWritten {
		return
	}
	w.headerWritten = true

	noBody := statusCode < 200 || statusCode == http.StatusNoContent || statusCode == http.StatusNotModified
	contentType := w.Header().Get("Content-Type")
	if !noBody && w.Header().Get("Content-Encoding") == "" && isCompressibleContentType(contentType) {
		w.compressing = true
		w.gz.Reset(w.ResponseWriter)
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}
	if w.compressing {
		return w.gz.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *gzipResponseWriter) close() {
	if w.compressing {
		// Close flushes the gzip trailer; nothing to do on a dead connection.
		_ = w.gz.Close()
	}
}

func isCompressibleContentType(contentType string) bool {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	switch strings.TrimSpace(strings.ToLower(contentType)) {
	case "application/json", "text/plain", "text/html":
		return true
	}
	return false
}

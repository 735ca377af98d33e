package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

// Authenticator checks a user's API key.
type Authenticator interface {
	AuthenticateAPIKey(ctx context.Context, userName string, apiKey []byte) (uuid.UUID, error)
}

type ownerKey struct{}

// OwnerFromContext returns the user authenticated by APIKeyMiddleware.
func OwnerFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ownerKey{}).(uuid.UUID)
	return id, ok
}

func withOwner(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerKey{}, id)
}

// credentials reads the username and API key headers, falling back to the
// legacy names for each one separately.
func credentials(r *http.Request) (string, string, bool) {
	get := func(name, legacy string) string {
		if v := r.Header.Get(name); v != "" {
			return v
		}
		return r.Header.Get(legacy)
	}
	user := get(common.UsernameHeaderName, common.LegacyUsernameHeaderName)
	key := get(common.APIKeyHeaderName, common.LegacyAPIKeyHeaderName)
	return user, key, user != "" && key != ""
}

// APIKeyMiddleware authenticates browser extensions by username and hex API
// key. Every credential problem is a 400 with an {"error": ...} body, which
// is what extensions already handle.
func APIKeyMiddleware(auth Authenticator, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			user, rawKey, ok := credentials(r)
			if !ok {
				logger.Info(ctx, "no api credentials")
				writeJSON(w, http.StatusBadRequest, errorBody(common.ErrNoCredentials.Error()))
				return
			}

			key, err := common.ParseAPIKey(rawKey)
			if err != nil {
				logger.Warn(ctx, "invalid api key", "user", user)
				writeJSON(w, http.StatusBadRequest, errorBody(common.ErrInvalidAPIKey.Error()))
				return
			}
			defer common.WipeByteArray(key)

			owner, err := auth.AuthenticateAPIKey(ctx, user, key)
			switch {
			case errors.Is(err, common.ErrUserDoesNotExist), errors.Is(err, common.ErrWrongAPIKey):
				logger.Warn(ctx, "api key rejected", "user", user, "error", err)
				writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
				return
			case err != nil:
				logger.Error(ctx, "api key check failed", "user", user, "error", err)
				writeJSON(w, http.StatusInternalServerError, errorBody(common.ErrorInternal.Error()))
				return
			}

			next.ServeHTTP(w, r.WithContext(withOwner(ctx, owner)))
		})
	}
}

// statusWriter captures status code and bytes written.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Flush keeps streamed NDJSON responses flowing through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Log writes one line per HTTP request.
func Log(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(ww, r)

			logger.Info(r.Context(), "http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"bytes", ww.bytes,
				"duration", time.Since(start),
				"remote_ip", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

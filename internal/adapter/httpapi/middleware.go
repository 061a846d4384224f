package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/session"
)

type ContextKey string

const UserIDCtxKey = ContextKey("user_id")

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDCtxKey).(string)
	return id, ok && id != ""
}

// SessionAuth accepts a bearer token only if it verifies and belongs to the
// session this process currently holds.
func SessionAuth(verifier *session.TokenVerifier, sessions SessionService, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeProblem(w, http.StatusUnauthorized, "authorization token is not provided", nil)
				return
			}
			claims, err := verifier.Parse(parts[1])
			if err != nil {
				log.Warn("SessionAuth: invalid token", "path", r.URL.Path, "error", err)
				writeProblem(w, http.StatusUnauthorized, "authorization token is invalid", nil)
				return
			}
			current := sessions.Current()
			if current == nil || current.UserID != claims.Subject || current.AccessToken != parts[1] {
				log.Warn("SessionAuth: token does not belong to the active session", "path", r.URL.Path, "subject", claims.Subject)
				writeProblem(w, http.StatusUnauthorized, "no active session for this token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDCtxKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}

package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// HeaderInternalKey carries the shared key on worker-facing endpoints.
const HeaderInternalKey = "X-Internal-API-Key"

type contextKey int

const subjectContextKey contextKey = iota

// SubjectFromContext returns the authenticated subject, or "" when the
// request was not authenticated (auth disabled).
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectContextKey).(string)
	return s
}

// Middleware enforces a valid bearer token and puts its subject in the
// request context. EventSource cannot set request headers, so the token
// may also arrive in the token query parameter.
func (v *Verifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				zerolog.Ctx(r.Context()).Warn().Msg("Missing bearer token")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			subject, err := v.Verify(tokenString)
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Token verification failed")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectContextKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return ""
		}
		return token
	}
	return r.URL.Query().Get("token")
}

// InternalKeyMiddleware guards worker-facing endpoints with a shared key,
// compared in constant time.
func InternalKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderInternalKey)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				zerolog.Ctx(r.Context()).Warn().Msg("Invalid internal API key")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

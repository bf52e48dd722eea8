package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-min-32-bytes-long")

func TestVerifier(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	t.Run("round trips issued tokens", func(t *testing.T) {
		token, err := Issue(testSecret, "user-123", time.Hour)
		require.NoError(t, err)

		subject, err := v.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "user-123", subject)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		token, err := Issue(testSecret, "user-123", -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects tokens signed with another secret", func(t *testing.T) {
		token, err := Issue([]byte("another-secret-key-that-is-32-byte"), "user-123", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects other signing methods", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(testSecret)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects tokens without expiry", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "user-123",
		}).SignedString(testSecret)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("requires a real secret", func(t *testing.T) {
		_, err := NewVerifier([]byte("short"))
		require.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	var gotSubject string
	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := Issue(testSecret, "user-123", time.Hour)
	require.NoError(t, err)

	t.Run("accepts a bearer header", func(t *testing.T) {
		gotSubject = ""
		req := httptest.NewRequest(http.MethodGet, "/api/v1/applications", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "user-123", gotSubject)
	})

	t.Run("accepts a token query parameter", func(t *testing.T) {
		gotSubject = ""
		req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/abc/stream?token="+token, nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "user-123", gotSubject)
	})

	t.Run("rejects missing credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/applications", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects garbage tokens", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/applications", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestInternalKeyMiddleware(t *testing.T) {
	handler := InternalKeyMiddleware("worker-shared-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("accepts the configured key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/applications/abc/events", nil)
		req.Header.Set(HeaderInternalKey, "worker-shared-key")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects a wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/applications/abc/events", nil)
		req.Header.Set(HeaderInternalKey, "guessed")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a missing key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/applications/abc/events", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

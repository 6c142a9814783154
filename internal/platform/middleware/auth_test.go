package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dutyflow/internal/platform/logger"
	"dutyflow/internal/platform/metrics"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/requestcontext"
)

type stubAuthenticator struct {
	caller requestcontext.Caller
	err    error
	got    string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (requestcontext.Caller, error) {
	s.got = token
	return s.caller, s.err
}

func TestRequireAuth(t *testing.T) {
	userID := id.NewUserID()

	newHandler := func(auth Authenticator, m *metrics.Metrics) (http.Handler, *requestcontext.Caller) {
		var seen requestcontext.Caller
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestcontext.Principal(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})
		return RequestID(RequireAuth(auth, m, logger.Discard())(next)), &seen
	}

	t.Run("missing header is rejected", func(t *testing.T) {
		h, _ := newHandler(&stubAuthenticator{}, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/duties/user/x", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Missing or invalid Authorization header")
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	})

	t.Run("invalid token is rejected and counted", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		h, _ := newHandler(&stubAuthenticator{err: errors.New("expired")}, m)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid or expired token")
		assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthFailures))
	})

	t.Run("valid token stores caller", func(t *testing.T) {
		auth := &stubAuthenticator{caller: requestcontext.Caller{UserID: userID, Name: "Ada", Admin: true}}
		h, seen := newHandler(auth, nil)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "good-token", auth.got)
		assert.Equal(t, userID, seen.UserID)
		assert.True(t, seen.Admin)
	})
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

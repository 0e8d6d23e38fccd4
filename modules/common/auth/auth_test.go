package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"genstudio-server/modules/common/apperr"
)

type fakeVerifier map[string]*Session

func (f fakeVerifier) Verify(_ context.Context, token string) (*Session, error) {
	if s, ok := f[token]; ok {
		return s, nil
	}
	return nil, apperr.Unauthorized("Invalid or expired session")
}

func newGate() *Gate {
	verifier := fakeVerifier{
		"user-token":  {UserID: "u1", Email: "user@example.com"},
		"admin-token": {UserID: "u2", Email: "admin@example.com"},
	}
	return NewGate(verifier, func(email string) bool { return email == "admin@example.com" }, zerolog.Nop())
}

func serve(h http.HandlerFunc, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestRequireSession(t *testing.T) {
	var seen *Session
	h := newGate().RequireSession(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, "forged").Code)

	rec := serve(h, "user-token")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", seen.UserID)
}

func TestRequireAdmin(t *testing.T) {
	h := newGate().RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, "user-token").Code)
	assert.Equal(t, http.StatusNoContent, serve(h, "admin-token").Code)
}

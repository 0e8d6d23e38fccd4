package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/supabase-community/supabase-go"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/response"
)

// Session - 인증된 사용자 정보
type Session struct {
	UserID string
	Email  string
}

// SessionVerifier resolves a bearer token to a session.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*Session, error)
}

// SupabaseVerifier - Supabase Auth(GoTrue)로 토큰 검증
type SupabaseVerifier struct {
	client *supabase.Client
}

func NewSupabaseVerifier(client *supabase.Client) *SupabaseVerifier {
	return &SupabaseVerifier{client: client}
}

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*Session, error) {
	user, err := v.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired session")
	}
	return &Session{UserID: user.ID.String(), Email: user.Email}, nil
}

type ctxKey struct{}

// FromContext returns the session attached by RequireSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Gate - 세션/관리자 권한 확인 미들웨어
type Gate struct {
	verifier SessionVerifier
	isAdmin  func(email string) bool
	log      zerolog.Logger
}

func NewGate(verifier SessionVerifier, isAdmin func(email string) bool, log zerolog.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		isAdmin:  isAdmin,
		log:      log.With().Str("component", "auth").Logger(),
	}
}

// RequireSession answers 401 unless the request carries a valid bearer token.
func (g *Gate) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := g.authenticate(r)
		if err != nil {
			response.Error(w, g.log, err)
			return
		}
		next(w, r.WithContext(WithSession(r.Context(), session)))
	}
}

// RequireAdmin answers 401 without a session and 403 for non-admin users.
func (g *Gate) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return g.RequireSession(func(w http.ResponseWriter, r *http.Request) {
		session, _ := FromContext(r.Context())
		if !g.isAdmin(session.Email) {
			response.Error(w, g.log, apperr.Forbidden("Admin access required"))
			return
		}
		next(w, r)
	})
}

func (g *Gate) authenticate(r *http.Request) (*Session, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, apperr.Unauthorized("Authentication required")
	}
	return g.verifier.Verify(r.Context(), token)
}

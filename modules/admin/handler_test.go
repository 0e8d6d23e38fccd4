package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/auth"
	"genstudio-server/modules/common/database"
	"genstudio-server/modules/common/model"
)

type tokenVerifier map[string]*auth.Session

func (v tokenVerifier) Verify(_ context.Context, token string) (*auth.Session, error) {
	if s, ok := v[token]; ok {
		return s, nil
	}
	return nil, apperr.Unauthorized("Invalid or expired session")
}

type fakeLister struct {
	queries []database.ActivityQuery
}

func (f *fakeLister) ListActivityLogs(_ context.Context, q database.ActivityQuery) (*database.ActivityPage, error) {
	f.queries = append(f.queries, q)
	return &database.ActivityPage{
		Items:    []model.ActivityLog{{ID: "1", Action: model.ActionGenerationFailed, ResourceType: "image", ResourceID: "t1"}},
		Total:    41,
		Page:     q.Page,
		PageSize: q.PageSize,
	}, nil
}

func newRouter(lister ActivityLister) http.Handler {
	gate := auth.NewGate(tokenVerifier{
		"user":  {UserID: "u1", Email: "user@example.com"},
		"admin": {UserID: "u2", Email: "ops@example.com"},
	}, func(email string) bool { return email == "ops@example.com" }, zerolog.Nop())

	r := mux.NewRouter()
	NewHandler(lister, gate, zerolog.Nop()).RegisterRoutes(r)
	return r
}

func get(h http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestActivityLogsRequiresAdmin(t *testing.T) {
	lister := &fakeLister{}
	h := newRouter(lister)

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/admin/activity-logs", "").Code)
	assert.Equal(t, http.StatusForbidden, get(h, "/api/admin/activity-logs", "user").Code)
	assert.Empty(t, lister.queries)
}

func TestActivityLogsDefaults(t *testing.T) {
	lister := &fakeLister{}
	rec := get(newRouter(lister), "/api/admin/activity-logs", "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, lister.queries, 1)
	assert.Equal(t, database.ActivityQuery{Page: 1, PageSize: 20}, lister.queries[0])

	var page database.ActivityPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(41), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "t1", page.Items[0].ResourceID)
}

func TestActivityLogsFilters(t *testing.T) {
	lister := &fakeLister{}
	rec := get(newRouter(lister), "/api/admin/activity-logs?page=3&pageSize=50&action=asset.saved", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, database.ActivityQuery{Page: 3, PageSize: 50, Action: "asset.saved"}, lister.queries[0])
}

func TestActivityLogsRejectsBadPaging(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{"page zero", "page=0", "page"},
		{"page not a number", "page=two", "page"},
		{"page size too large", "pageSize=101", "pageSize"},
		{"page size zero", "pageSize=0", "pageSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &fakeLister{}
			rec := get(newRouter(lister), "/api/admin/activity-logs?"+tt.query, "admin")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"field":"`+tt.field+`"`)
			assert.Empty(t, lister.queries)
		})
	}
}

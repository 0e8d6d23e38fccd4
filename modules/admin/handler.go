package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/auth"
	"genstudio-server/modules/common/database"
	"genstudio-server/modules/common/response"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ActivityLister - 활동 로그 페이지 조회
type ActivityLister interface {
	ListActivityLogs(ctx context.Context, q database.ActivityQuery) (*database.ActivityPage, error)
}

// ActivityLogsQuery - GET /api/admin/activity-logs 쿼리 파라미터
type ActivityLogsQuery struct {
	Page     int    `json:"page" validate:"min=1"`
	PageSize int    `json:"pageSize" validate:"min=1,max=100"`
	Action   string `json:"action" validate:"omitempty,max=64"`
}

type Handler struct {
	lister ActivityLister
	gate   *auth.Gate
	log    zerolog.Logger
}

func NewHandler(lister ActivityLister, gate *auth.Gate, log zerolog.Logger) *Handler {
	return &Handler{
		lister: lister,
		gate:   gate,
		log:    log.With().Str("component", "admin").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/admin/activity-logs", h.gate.RequireAdmin(h.HandleActivityLogs)).Methods(http.MethodGet, http.MethodOptions)
}

// HandleActivityLogs - 최신순 활동 로그 (관리자 전용)
func (h *Handler) HandleActivityLogs(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	page, err := h.lister.ListActivityLogs(r.Context(), database.ActivityQuery{
		Page:     q.Page,
		PageSize: q.PageSize,
		Action:   q.Action,
	})
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	if session, ok := auth.FromContext(r.Context()); ok {
		h.log.Debug().Str("admin", session.Email).Int("page", q.Page).Int64("total", page.Total).Msg("activity logs listed")
	}
	response.JSON(w, http.StatusOK, page)
}

func parseQuery(r *http.Request) (*ActivityLogsQuery, error) {
	values := r.URL.Query()
	q := &ActivityLogsQuery{Page: 1, PageSize: defaultPageSize, Action: values.Get("action")}

	var fields []apperr.FieldError
	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields = append(fields, apperr.FieldError{Field: "page", Message: "must be an integer"})
		}
		q.Page = n
	}
	if raw := values.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields = append(fields, apperr.FieldError{Field: "pageSize", Message: "must be an integer"})
		}
		q.PageSize = n
	}
	if len(fields) > 0 {
		return nil, &apperr.ValidationError{Message: "invalid query parameters", Fields: fields}
	}

	if err := response.Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

package relocator

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"genstudio-server/modules/common/auth"
	"genstudio-server/modules/common/database"
	"genstudio-server/modules/common/model"
	"genstudio-server/modules/common/response"
)

// SaveRequest - POST /api/kie/save-to-r2
type SaveRequest struct {
	SourceURL string `json:"sourceUrl" validate:"required,url"`
	Type      string `json:"type" validate:"required,oneof=image video audio"`
	FileName  string `json:"fileName"`
	Path      string `json:"path"`
	Provider  string `json:"provider" validate:"omitempty,oneof=kie"`
}

// SaveResponse - 저장 결과
type SaveResponse struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Type        string `json:"type"`
}

// DeleteResponse - 삭제 결과
type DeleteResponse struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

type Handler struct {
	relocator *Relocator
	gate      *auth.Gate
	activity  database.ActivityRecorder
	log       zerolog.Logger
}

func NewHandler(relocator *Relocator, gate *auth.Gate, activity database.ActivityRecorder, log zerolog.Logger) *Handler {
	return &Handler{
		relocator: relocator,
		gate:      gate,
		activity:  activity,
		log:       log.With().Str("component", "save-to-r2").Logger(),
	}
}

// RegisterRoutes - 라우트 등록 (저장은 로그인, 삭제는 관리자 권한 필요)
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/kie/save-to-r2", h.gate.RequireSession(h.HandleSave)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/kie/assets", h.gate.RequireAdmin(h.HandleDelete)).Methods(http.MethodDelete, http.MethodOptions)
}

// HandleSave - POST /api/kie/save-to-r2
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, h.log, err)
		return
	}

	asset, err := h.relocator.Relocate(r.Context(), Request{
		SourceURL: req.SourceURL,
		Category:  model.Kind(req.Type),
		FileName:  req.FileName,
		Path:      req.Path,
	})
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	h.recordActivity(r.Context(), model.ActivityLog{
		Action:       model.ActionAssetSaved,
		ResourceType: req.Type,
		ResourceID:   asset.Key,
		Metadata: map[string]interface{}{
			"sourceUrl":   req.SourceURL,
			"contentType": asset.ContentType,
			"size":        asset.SizeBytes,
		},
	})

	response.JSON(w, http.StatusOK, SaveResponse{
		URL:         asset.PublicURL,
		Key:         asset.Key,
		ContentType: asset.ContentType,
		Size:        asset.SizeBytes,
		Type:        req.Type,
	})
}

// HandleDelete - DELETE /api/kie/assets?key=<object key>
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if err := h.relocator.Delete(r.Context(), key); err != nil {
		response.Error(w, h.log, err)
		return
	}

	h.recordActivity(r.Context(), model.ActivityLog{
		Action:       model.ActionAssetDeleted,
		ResourceType: "asset",
		ResourceID:   key,
		Metadata:     map[string]interface{}{},
	})

	response.JSON(w, http.StatusOK, DeleteResponse{Key: key, Deleted: true})
}

func (h *Handler) recordActivity(ctx context.Context, entry model.ActivityLog) {
	if h.activity == nil {
		return
	}
	if session, ok := auth.FromContext(ctx); ok {
		entry.UserID = &session.UserID
	}

	// 응답과 무관하게 기록 (요청 취소의 영향을 받지 않도록 별도 context)
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := h.activity.RecordActivity(recordCtx, entry); err != nil {
		h.log.Warn().Err(err).Str("action", entry.Action).Str("key", entry.ResourceID).Msg("failed to record activity")
	}
}

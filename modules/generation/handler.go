package generation

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/auth"
	"genstudio-server/modules/common/model"
	"genstudio-server/modules/common/response"
)

// GenerateRequest - POST /api/kie/generate
type GenerateRequest struct {
	ModelID     string   `json:"modelId" validate:"required"`
	Prompt      string   `json:"prompt" validate:"required"`
	ImageURLs   []string `json:"imageUrls" validate:"omitempty,max=4,dive,url"`
	AspectRatio string   `json:"aspectRatio" validate:"omitempty,max=16"`
	Duration    int      `json:"duration" validate:"omitempty,oneof=5 10"`
	Persist     bool     `json:"persist"`
	Provider    string   `json:"provider" validate:"omitempty,oneof=kie"`
}

// GenerateResponse - 202 응답
type GenerateResponse struct {
	TaskID  string           `json:"taskId"`
	Status  model.TaskStatus `json:"status"`
	ModelID string           `json:"modelId"`
	Kind    model.Kind       `json:"kind"`
}

// StatusResponse - GET /api/kie/status
type StatusResponse struct {
	TaskID       string              `json:"taskId"`
	ModelID      string              `json:"modelId"`
	Kind         model.Kind          `json:"kind"`
	Status       model.TaskStatus    `json:"status"`
	ResultURLs   []string            `json:"resultUrls"`
	StoredAssets []model.StoredAsset `json:"storedAssets"`
	IsComplete   bool                `json:"isComplete"`
	Error        string              `json:"error,omitempty"`
}

// ModelInfo - GET /api/kie/models 항목
type ModelInfo struct {
	ID       ModelID    `json:"id"`
	Kind     model.Kind `json:"kind"`
	Features []Feature  `json:"features"`
}

type Handler struct {
	service *Service
	gate    *auth.Gate
	log     zerolog.Logger
}

// NewHandler - gate가 있으면 작업 제출은 로그인 필요
func NewHandler(service *Service, gate *auth.Gate, log zerolog.Logger) *Handler {
	return &Handler{service: service, gate: gate, log: log.With().Str("component", "generation-handler").Logger()}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	generate := h.HandleGenerate
	if h.gate != nil {
		generate = h.gate.RequireSession(generate)
	}
	r.HandleFunc("/api/kie/generate", generate).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/kie/status", h.HandleStatus).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/kie/models", h.HandleModels).Methods(http.MethodGet, http.MethodOptions)
}

// HandleGenerate - POST /api/kie/generate
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, h.log, err)
		return
	}

	genReq := Request{
		ModelID:     req.ModelID,
		Prompt:      req.Prompt,
		ImageURLs:   req.ImageURLs,
		AspectRatio: req.AspectRatio,
		Duration:    req.Duration,
		Persist:     req.Persist,
	}
	if session, ok := auth.FromContext(r.Context()); ok {
		genReq.UserID = session.UserID
	}

	task, err := h.service.Submit(r.Context(), genReq)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	response.JSON(w, http.StatusAccepted, GenerateResponse{
		TaskID:  task.TaskID,
		Status:  task.Status,
		ModelID: task.ModelID,
		Kind:    task.Kind,
	})
}

// HandleStatus - GET /api/kie/status?taskId=
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(r.URL.Query().Get("taskId"))
	if taskID == "" {
		response.Error(w, h.log, &apperr.ValidationError{
			Message: "query failed validation",
			Fields:  []apperr.FieldError{{Field: "taskId", Message: "is required"}},
		})
		return
	}

	task, err := h.service.Status(r.Context(), taskID)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	resp := StatusResponse{
		TaskID:       task.TaskID,
		ModelID:      task.ModelID,
		Kind:         task.Kind,
		Status:       task.Status,
		ResultURLs:   task.ResultURLs,
		StoredAssets: task.StoredAssets,
		IsComplete:   task.Status.IsTerminal(),
		Error:        task.Error,
	}
	if resp.ResultURLs == nil {
		resp.ResultURLs = []string{}
	}
	if resp.StoredAssets == nil {
		resp.StoredAssets = []model.StoredAsset{}
	}
	response.JSON(w, http.StatusOK, resp)
}

// HandleModels - GET /api/kie/models
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	models := Models()
	out := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, ModelInfo{ID: m.ID, Kind: m.Kind, Features: m.Features})
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{"models": out})
}

package kie

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"genstudio-server/modules/common/auth"
	"genstudio-server/modules/common/response"
)

const uploadRetention = "3 days"

// UploadRequest - POST /api/kie/upload
type UploadRequest struct {
	Type       string `json:"type" validate:"required,oneof=url base64"`
	FileURL    string `json:"fileUrl" validate:"required_if=Type url,omitempty,url"`
	Base64Data string `json:"base64Data" validate:"required_if=Type base64"`
	UploadPath string `json:"uploadPath"`
	FileName   string `json:"fileName"`
	Provider   string `json:"provider" validate:"omitempty,oneof=kie"`
}

// UploadResponse - 업로드 응답
type UploadResponse struct {
	FileURL     string `json:"fileUrl"`
	DownloadURL string `json:"downloadUrl"`
	ExpiresIn   string `json:"expiresIn"`
}

// Handler - Kie.ai 파일 업로드 / 크레딧 조회 HTTP Handler
type Handler struct {
	client *Client
	gate   *auth.Gate
	log    zerolog.Logger
}

// NewHandler - Handler 생성 (gate가 있으면 크레딧 조회는 관리자 전용)
func NewHandler(client *Client, gate *auth.Gate, log zerolog.Logger) *Handler {
	return &Handler{client: client, gate: gate, log: log.With().Str("component", "kie-handler").Logger()}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/kie/upload", h.HandleUpload).Methods(http.MethodPost, http.MethodOptions)
	credits := h.HandleCredits
	if h.gate != nil {
		credits = h.gate.RequireAdmin(credits)
	}
	r.HandleFunc("/api/kie/credits", credits).Methods(http.MethodGet, http.MethodOptions)
}

// HandleUpload - POST /api/kie/upload
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, h.log, err)
		return
	}

	var (
		result *UploadResult
		err    error
	)
	if req.Type == "url" {
		result, err = h.client.UploadFromURL(r.Context(), req.FileURL, req.UploadPath, req.FileName)
	} else {
		result, err = h.client.UploadBase64(r.Context(), req.Base64Data, req.UploadPath, req.FileName)
	}
	if err != nil {
		response.Error(w, h.log, err)
		return
	}

	response.JSON(w, http.StatusOK, UploadResponse{
		FileURL:     firstNonEmpty(result.FileURL, result.DownloadURL),
		DownloadURL: result.DownloadURL,
		ExpiresIn:   uploadRetention,
	})
}

// HandleCredits - GET /api/kie/credits
func (h *Handler) HandleCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := h.client.Credits(r.Context())
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]float64{"credits": credits})
}

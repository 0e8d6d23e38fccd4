package aidemo

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/model"
	"genstudio-server/modules/common/response"
	"genstudio-server/modules/generation"
)

const imageToVideoUploadPath = "ai-demo/image-to-video"

// TextToImageRequest - POST /api/ai-demo/text-to-image
type TextToImageRequest struct {
	Prompt   string `json:"prompt" validate:"required"`
	ModelID  string `json:"modelId" validate:"required"`
	Provider string `json:"provider" validate:"required,oneof=kie"`
}

// ImageToImageRequest - POST /api/ai-demo/image-to-image
type ImageToImageRequest struct {
	Image    string `json:"image" validate:"required,startswith=data:image/"`
	Prompt   string `json:"prompt" validate:"required"`
	Seed     *int   `json:"seed"`
	ModelID  string `json:"modelId" validate:"required"`
	Provider string `json:"provider" validate:"required,oneof=kie"`
}

// ImageToVideoRequest - POST /api/ai-demo/image-to-video (image 없으면 text-to-video)
type ImageToVideoRequest struct {
	Image    string `json:"image" validate:"omitempty,startswith=data:image/"`
	Prompt   string `json:"prompt" validate:"required"`
	Duration int    `json:"duration" validate:"omitempty,oneof=5 10"`
	ModelID  string `json:"modelId" validate:"required"`
	Provider string `json:"provider" validate:"required,oneof=kie"`
}

// ChatRequest - POST /api/ai-demo/chat
type ChatRequest struct {
	Prompt   string `json:"prompt" validate:"required"`
	ModelID  string `json:"modelId" validate:"omitempty,startswith=gemini-"`
	Provider string `json:"provider" validate:"required,oneof=gemini"`
}

type ImageResponse struct {
	ImageURL string `json:"imageUrl"`
}

type VideoResponse struct {
	VideoURL string `json:"videoUrl"`
}

type ChatResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// Generator - 동기 생성 (submit → poll → 결과)
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*model.GenerationTask, error)
}

// TextGenerator - 동기 텍스트 생성 vendor
type TextGenerator interface {
	Model() string
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Handler - AI 데모 엔드포인트 (결과가 나올 때까지 요청을 붙잡고 있음)
type Handler struct {
	generator Generator
	text      TextGenerator
	now       func() time.Time
	log       zerolog.Logger
}

// NewHandler - text가 nil이면 chat은 설정 오류로 응답
func NewHandler(generator Generator, text TextGenerator, log zerolog.Logger) *Handler {
	return &Handler{
		generator: generator,
		text:      text,
		now:       time.Now,
		log:       log.With().Str("component", "ai-demo").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/ai-demo/text-to-image", h.HandleTextToImage).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/ai-demo/image-to-image", h.HandleImageToImage).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/ai-demo/image-to-video", h.HandleImageToVideo).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/ai-demo/chat", h.HandleChat).Methods(http.MethodPost, http.MethodOptions)
}

// HandleTextToImage - POST /api/ai-demo/text-to-image
func (h *Handler) HandleTextToImage(w http.ResponseWriter, r *http.Request) {
	var req TextToImageRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, h.log, err)
		return
	}

	url, err := h.generate(r, generation.Request{
		ModelID: req.ModelID,
		Kind:    model.KindImage,
		Prompt:  req.Prompt,
	})
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, ImageResponse{ImageURL: url})
}

// HandleImageToImage - POST /api/ai-demo/image-to-image
func (h *Handler) HandleImageToImage(w http.ResponseWriter, r *http.Request) {
	var req ImageToImageRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, h.log, err)
		return
	}

	url, err := h.generate(r, generation.Request{
		ModelID:    req.ModelID,
		Kind:       model.KindImage,
		Prompt:     req.Prompt,
		ImageData:  req.Image,
		UploadName: "input-image.png",
	})
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, ImageResponse{ImageURL: url})
}

// HandleImageToVideo - POST /api/ai-demo/image-to-video
func (h *Handler) HandleImageToVideo(w http.ResponseWriter, r *http.Request) {
	var req ImageToVideoRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, h.log, err)
		return
	}

	genReq := generation.Request{
		ModelID:  req.ModelID,
		Kind:     model.KindVideo,
		Prompt:   req.Prompt,
		Duration: req.Duration,
	}
	if req.Image != "" {
		genReq.ImageData = req.Image
		genReq.UploadPath = imageToVideoUploadPath
		genReq.UploadName = fmt.Sprintf("input-image-%d.png", h.now().UnixMilli())
	}

	url, err := h.generate(r, genReq)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, VideoResponse{VideoURL: url})
}

// HandleChat - POST /api/ai-demo/chat
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, h.log, err)
		return
	}
	if h.text == nil {
		response.Error(w, h.log, apperr.MissingConfig("GEMINI_API_KEYS"))
		return
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = h.text.Model()
	}
	text, err := h.text.Generate(r.Context(), modelID, req.Prompt)
	if err != nil {
		response.Error(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, ChatResponse{Text: text, Model: modelID})
}

// generate runs one synchronous generation and returns the canonical (first) result URL.
func (h *Handler) generate(r *http.Request, req generation.Request) (string, error) {
	task, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		return "", err
	}
	if len(task.ResultURLs) == 0 {
		return "", &apperr.GenerationFailedError{TaskID: task.TaskID, Message: "no result URL returned"}
	}
	return task.ResultURLs[0], nil
}

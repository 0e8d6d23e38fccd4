package aidemo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/config"
	"genstudio-server/modules/common/model"
	"genstudio-server/modules/generation"
	"genstudio-server/modules/kie"
)

type vendorStub struct {
	mu       sync.Mutex
	routes   map[string]string
	requests map[string][]byte
	calls    int
}

func (v *vendorStub) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type taskMap struct {
	mu    sync.Mutex
	tasks map[string]model.GenerationTask
}

func (s *taskMap) Save(_ context.Context, task *model.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.TaskID] = *task
	return nil
}

func (s *taskMap) Get(_ context.Context, taskID string) (*model.GenerationTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "task", ID: taskID}
	}
	return &task, nil
}

func (s *taskMap) Pending(_ context.Context) ([]string, error) { return nil, nil }

func ok(data string) string {
	return `{"code":200,"msg":"success","data":` + data + `}`
}

func newStack(t *testing.T, routes map[string]string, text TextGenerator) (*vendorStub, *taskMap, http.Handler) {
	t.Helper()
	v := &vendorStub{routes: routes, requests: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		v.mu.Lock()
		v.calls++
		v.requests[r.URL.Path] = body
		payload, found := v.routes[r.URL.Path]
		v.mu.Unlock()
		if !found {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	client, err := kie.NewClient(&config.Config{
		KieAPIKey:        "test-key",
		KieBaseURL:       srv.URL,
		KieFileUploadURL: srv.URL,
		KieTimeout:       5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)

	store := &taskMap{tasks: map[string]model.GenerationTask{}}
	svc := generation.NewService(generation.Deps{Vendor: client, Store: store}, generation.Options{
		Profiles: map[model.Kind]generation.PollProfile{
			model.KindImage: {Interval: time.Millisecond, MaxAttempts: 3},
			model.KindVideo: {Interval: time.Millisecond, MaxAttempts: 3},
		},
		MaxTransportErrors: 1,
	}, zerolog.Nop())

	h := NewHandler(svc, text, zerolog.Nop())
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return v, store, r
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestTextToImageEndToEnd(t *testing.T) {
	v, store, h := newStack(t, map[string]string{
		"/api/v1/jobs/createTask": ok(`{"taskId":"zimg-1"}`),
		"/api/v1/jobs/recordInfo": ok(`{"taskId":"zimg-1","state":"success","resultJson":"{\"resultUrls\":[\"https://tmp.kie/cat.png\"]}"}`),
	}, nil)

	rec := post(h, "/api/ai-demo/text-to-image", `{"prompt":"a cat","modelId":"z-image","provider":"kie"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"imageUrl":"https://tmp.kie/cat.png"}`, rec.Body.String())

	assert.JSONEq(t, `{"model":"z-image","input":{"prompt":"a cat","aspect_ratio":"1:1"}}`, string(v.requests["/api/v1/jobs/createTask"]))
	task, err := store.Get(context.Background(), "zimg-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, task.Status)
}

func TestTextToImageRejectsBeforeAnyVendorCall(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"foreign provider", `{"prompt":"a cat","modelId":"z-image","provider":"openai"}`},
		{"missing provider", `{"prompt":"a cat","modelId":"z-image"}`},
		{"unknown model", `{"prompt":"a cat","modelId":"dall-e-3","provider":"kie"}`},
		{"video model", `{"prompt":"a cat","modelId":"veo3","provider":"kie"}`},
		{"empty prompt", `{"prompt":"","modelId":"z-image","provider":"kie"}`},
		{"not json", `prompt=a cat`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, h := newStack(t, map[string]string{}, nil)
			rec := post(h, "/api/ai-demo/text-to-image", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Zero(t, v.count())
		})
	}
}

func TestTextToImageFieldList(t *testing.T) {
	_, _, h := newStack(t, map[string]string{}, nil)
	rec := post(h, "/api/ai-demo/text-to-image", `{"provider":"openai"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error  string              `json:"error"`
		Fields []apperr.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	fields := map[string]string{}
	for _, f := range body.Fields {
		fields[f.Field] = f.Message
	}
	assert.Contains(t, fields, "prompt")
	assert.Contains(t, fields, "modelId")
	assert.Contains(t, fields, "provider")
}

func TestTextToImageCredentialErrorIsRewritten(t *testing.T) {
	_, _, h := newStack(t, map[string]string{
		"/api/v1/jobs/createTask": `{"code":401,"msg":"Invalid API key: sk-live-123"}`,
	}, nil)

	rec := post(h, "/api/ai-demo/text-to-image", `{"prompt":"a cat","modelId":"z-image","provider":"kie"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server configuration error")
	assert.NotContains(t, rec.Body.String(), "sk-live-123")
}

func TestTextToImageVendorFailure(t *testing.T) {
	_, _, h := newStack(t, map[string]string{
		"/api/v1/gpt4o-image/generate":    ok(`{"taskId":"g-1"}`),
		"/api/v1/gpt4o-image/record-info": ok(`{"successFlag":2,"errorMessage":"prompt rejected by safety system"}`),
	}, nil)

	rec := post(h, "/api/ai-demo/text-to-image", `{"prompt":"a cat","modelId":"gpt4o-image","provider":"kie"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "prompt rejected by safety system")
}

func TestImageToVideoUploadsThenSubmits(t *testing.T) {
	v, _, h := newStack(t, map[string]string{
		"/api/file-base64-upload": ok(`{"success":true,"downloadUrl":"https://tmp.kie/in.png"}`),
		"/api/v1/jobs/createTask": ok(`{"taskId":"sora-1"}`),
		"/api/v1/jobs/recordInfo": ok(`{"taskId":"sora-1","state":"success","resultJson":"{\"resultUrls\":[\"https://tmp.kie/out.mp4\"]}"}`),
	}, nil)

	rec := post(h, "/api/ai-demo/image-to-video",
		`{"image":"data:image/png;base64,iVBORw0KGgo=","prompt":"waves","duration":5,"modelId":"sora-2-text-to-video","provider":"kie"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"videoUrl":"https://tmp.kie/out.mp4"}`, rec.Body.String())

	var upload map[string]string
	require.NoError(t, json.Unmarshal(v.requests["/api/file-base64-upload"], &upload))
	assert.Equal(t, "ai-demo/image-to-video", upload["uploadPath"])
	assert.Equal(t, "input-image-1700000000000.png", upload["fileName"])

	var submit kie.JobRequest
	require.NoError(t, json.Unmarshal(v.requests["/api/v1/jobs/createTask"], &submit))
	assert.Equal(t, "sora-2-image-to-video", submit.Model)
	assert.Equal(t, "10", submit.Input["n_frames"])
	assert.Equal(t, []interface{}{"https://tmp.kie/in.png"}, submit.Input["image_urls"])
}

func TestImageToVideoValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"image not a data uri", `{"image":"https://x.test/a.png","prompt":"p","modelId":"veo3","provider":"kie"}`},
		{"bad duration", `{"prompt":"p","duration":8,"modelId":"veo3","provider":"kie"}`},
		{"image model", `{"prompt":"p","modelId":"z-image","provider":"kie"}`},
		{"image-only model without image", `{"prompt":"p","modelId":"veo-3.1-start-end-frame","provider":"kie"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, h := newStack(t, map[string]string{}, nil)
			rec := post(h, "/api/ai-demo/image-to-video", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Zero(t, v.count())
		})
	}
}

func TestImageToImageRequiresFeature(t *testing.T) {
	v, _, h := newStack(t, map[string]string{}, nil)
	rec := post(h, "/api/ai-demo/image-to-image", `{"image":"data:image/png;base64,iVBORw0KGgo=","prompt":"p","modelId":"z-image","provider":"kie"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "image-to-image")
	assert.Zero(t, v.count())
}

type echoText struct{ prompts []string }

func (e *echoText) Model() string { return "gemini-2.5-flash" }

func (e *echoText) Generate(_ context.Context, model, prompt string) (string, error) {
	e.prompts = append(e.prompts, model+":"+prompt)
	return "hello from " + model, nil
}

func TestChat(t *testing.T) {
	text := &echoText{}
	_, _, h := newStack(t, map[string]string{}, text)

	rec := post(h, "/api/ai-demo/chat", `{"prompt":"hi","provider":"gemini"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"text":"hello from gemini-2.5-flash","model":"gemini-2.5-flash"}`, rec.Body.String())

	rec = post(h, "/api/ai-demo/chat", `{"prompt":"hi","provider":"kie"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, text.prompts, 1)
}

func TestChatWithoutTextVendor(t *testing.T) {
	_, _, h := newStack(t, map[string]string{}, nil)
	rec := post(h, "/api/ai-demo/chat", `{"prompt":"hi","provider":"gemini"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Server configuration error"}`, rec.Body.String())
}

package kie

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/config"
	"genstudio-server/modules/common/poller"
)

// stubVendor serves canned envelopes keyed by request path.
type stubVendor struct {
	t        *testing.T
	routes   map[string]string
	requests map[string][]byte
	auth     []string
}

func newStubVendor(t *testing.T, routes map[string]string) (*stubVendor, *Client) {
	t.Helper()
	v := &stubVendor{t: t, routes: routes, requests: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		v.requests[r.URL.Path] = body
		v.auth = append(v.auth, r.Header.Get("Authorization"))
		payload, ok := v.routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(&config.Config{
		KieAPIKey:        "test-key",
		KieBaseURL:       srv.URL,
		KieFileUploadURL: srv.URL,
		KieTimeout:       5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return v, c
}

func ok(data string) string {
	return `{"code":200,"msg":"success","data":` + data + `}`
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(&config.Config{KieBaseURL: "https://api.kie.ai"}, zerolog.Nop())
	var cfgErr *apperr.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "KIE_API_KEY", cfgErr.Key)
}

func TestSubmitPostsToFamilyEndpoint(t *testing.T) {
	for _, family := range Families {
		t.Run(string(family), func(t *testing.T) {
			submitPath := familyEndpoints[family].submit
			v, c := newStubVendor(t, map[string]string{submitPath: ok(`{"taskId":"task-` + string(family) + `"}`)})

			taskID, err := c.Submit(context.Background(), family, map[string]string{"prompt": "a cat"})
			require.NoError(t, err)
			assert.Equal(t, "task-"+string(family), taskID)
			assert.JSONEq(t, `{"prompt":"a cat"}`, string(v.requests[submitPath]))
			assert.Equal(t, "Bearer test-key", v.auth[0])
		})
	}
}

func TestSubmitEnvelopeFailure(t *testing.T) {
	_, c := newStubVendor(t, map[string]string{
		"/api/v1/jobs/createTask": `{"code":401,"msg":"You do not have access permissions","data":null}`,
	})

	_, err := c.Submit(context.Background(), FamilyJobs, JobRequest{Model: "z-image"})

	var upstreamErr *apperr.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, 401, upstreamErr.StatusCode)
	assert.Equal(t, "You do not have access permissions", upstreamErr.Message)
}

func TestSubmitHTTPFailure(t *testing.T) {
	_, c := newStubVendor(t, map[string]string{})

	_, err := c.Submit(context.Background(), FamilyGPT4o, map[string]string{})

	var upstreamErr *apperr.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusNotFound, upstreamErr.StatusCode)
}

func TestSubmitWithoutTaskID(t *testing.T) {
	_, c := newStubVendor(t, map[string]string{"/api/v1/mj/generate": ok(`{}`)})

	_, err := c.Submit(context.Background(), FamilyMidjourney, map[string]string{})
	var upstreamErr *apperr.UpstreamError
	assert.ErrorAs(t, err, &upstreamErr)
}

func TestCredits(t *testing.T) {
	_, c := newStubVendor(t, map[string]string{"/api/v1/chat/credit": ok(`1250.5`)})

	credits, err := c.Credits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1250.5, credits)
}

func TestUploadBase64CompletesFileName(t *testing.T) {
	pngHeader := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	encoded := base64.StdEncoding.EncodeToString(pngHeader)

	v, c := newStubVendor(t, map[string]string{
		"/api/file-base64-upload": ok(`{"success":true,"fileName":"x.png","downloadUrl":"https://tmp.kie/x.png","fileSize":33}`),
	})

	res, err := c.UploadBase64(context.Background(), encoded, "ai-demo", "")
	require.NoError(t, err)
	assert.Equal(t, "https://tmp.kie/x.png", res.URL())

	var sent fileBase64UploadRequest
	require.NoError(t, json.Unmarshal(v.requests["/api/file-base64-upload"], &sent))
	assert.Equal(t, "upload-1700000000000.png", sent.FileName)
	assert.Equal(t, "ai-demo", sent.UploadPath)
	assert.Equal(t, "data:image/png;base64,"+encoded, sent.Base64Data)
}

func TestUploadBase64KeepsDeclaredType(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("not really a jpeg"))
	v, c := newStubVendor(t, map[string]string{
		"/api/file-base64-upload": ok(`{"success":true,"fileUrl":"https://tmp.kie/photo.txt"}`),
	})

	res, err := c.UploadBase64(context.Background(), "data:image/jpeg;base64,"+encoded, "", "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://tmp.kie/photo.txt", res.URL())

	var sent fileBase64UploadRequest
	require.NoError(t, json.Unmarshal(v.requests["/api/file-base64-upload"], &sent))
	assert.Equal(t, "photo.jpg", sent.FileName)
	assert.Equal(t, "data:image/jpeg;base64,"+encoded, sent.Base64Data)
}

func TestUploadBase64RejectsGarbage(t *testing.T) {
	v, c := newStubVendor(t, map[string]string{})

	_, err := c.UploadBase64(context.Background(), "%%%not-base64%%%", "", "")
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	assert.Empty(t, v.requests)
}

func TestStatusNormalization(t *testing.T) {
	tests := []struct {
		name    string
		family  Family
		data    string
		state   poller.State
		urls    []string
		message string
	}{
		{"jobs pending", FamilyJobs, `{"state":"generating"}`, poller.Pending, nil, ""},
		{"jobs success", FamilyJobs, `{"state":"success","resultJson":"{\"resultUrls\":[\"https://r/1.png\",\"https://r/2.png\"]}"}`, poller.Succeeded, []string{"https://r/1.png", "https://r/2.png"}, ""},
		{"jobs snake case urls", FamilyJobs, `{"state":"success","resultJson":"{\"result_urls\":[\"https://r/1.mp4\"]}"}`, poller.Succeeded, []string{"https://r/1.mp4"}, ""},
		{"jobs fail", FamilyJobs, `{"state":"fail","failMsg":"nsfw content"}`, poller.Failed, nil, "nsfw content"},
		{"gpt4o generating", FamilyGPT4o, `{"successFlag":0}`, poller.Pending, nil, ""},
		{"gpt4o success", FamilyGPT4o, `{"successFlag":1,"response":{"resultUrls":["https://r/4o.png"]}}`, poller.Succeeded, []string{"https://r/4o.png"}, ""},
		{"gpt4o failed", FamilyGPT4o, `{"successFlag":3}`, poller.Failed, nil, "GPT-4o Image generation failed"},
		{"flux result image url", FamilyFlux, `{"successFlag":1,"response":{"resultImageUrl":"https://r/flux.png"},"resultUrls":["https://r/other.png"]}`, poller.Succeeded, []string{"https://r/flux.png"}, ""},
		{"flux legacy url", FamilyFlux, `{"successFlag":1,"resultUrl":"https://r/legacy.png"}`, poller.Succeeded, []string{"https://r/legacy.png"}, ""},
		{"flux error", FamilyFlux, `{"successFlag":2,"errorMessage":"prompt rejected"}`, poller.Failed, nil, "prompt rejected"},
		{"midjourney result info", FamilyMidjourney, `{"successFlag":1,"resultInfoJson":{"resultUrls":[{"resultUrl":"https://r/mj1.png"},{"resultUrl":"https://r/mj2.png"}]}}`, poller.Succeeded, []string{"https://r/mj1.png", "https://r/mj2.png"}, ""},
		{"midjourney state", FamilyMidjourney, `{"state":"success","resultUrls":["https://r/mj.png"]}`, poller.Succeeded, []string{"https://r/mj.png"}, ""},
		{"veo response urls", FamilyVeo, `{"successFlag":1,"response":{"resultUrls":["https://r/veo.mp4"]}}`, poller.Succeeded, []string{"https://r/veo.mp4"}, ""},
		{"veo legacy string urls", FamilyVeo, `{"successFlag":1,"resultUrls":"[\"https://r/veo-legacy.mp4\"]"}`, poller.Succeeded, []string{"https://r/veo-legacy.mp4"}, ""},
		{"veo video url", FamilyVeo, `{"successFlag":1,"videoUrl":"https://r/veo-video.mp4"}`, poller.Succeeded, []string{"https://r/veo-video.mp4"}, ""},
		{"runway success", FamilyRunway, `{"state":"success","videoInfo":{"videoUrl":"https://r/runway.mp4"}}`, poller.Succeeded, []string{"https://r/runway.mp4"}, ""},
		{"runway queueing", FamilyRunway, `{"state":"queueing"}`, poller.Pending, nil, ""},
		{"suno success", FamilySuno, `{"status":"SUCCESS","response":{"sunoData":[{"audio_url":"https://r/a.mp3"},{"audio_url":"https://r/b.mp3"}]}}`, poller.Succeeded, []string{"https://r/a.mp3", "https://r/b.mp3"}, ""},
		{"suno text ready", FamilySuno, `{"status":"TEXT_SUCCESS"}`, poller.Pending, nil, ""},
		{"suno sensitive word", FamilySuno, `{"status":"SENSITIVE_WORD_ERROR","errorMessage":"lyrics rejected"}`, poller.Failed, nil, "lyrics rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newStubVendor(t, map[string]string{familyEndpoints[tt.family].status: ok(tt.data)})

			status, err := c.Status(context.Background(), tt.family, "task-1")
			require.NoError(t, err)
			assert.Equal(t, tt.state, status.State)
			assert.Equal(t, tt.urls, status.URLs)
			assert.Equal(t, tt.message, status.Message)
		})
	}
}

func TestVeoStatusFallsBackTo1080p(t *testing.T) {
	_, c := newStubVendor(t, map[string]string{
		"/api/v1/veo/record-info":      ok(`{"successFlag":1}`),
		"/api/v1/veo/get-1080p-video": ok(`{"videoUrl":"https://r/veo-1080p.mp4"}`),
	})

	status, err := c.Status(context.Background(), FamilyVeo, "veo-task")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://r/veo-1080p.mp4"}, status.URLs)
}

func TestEveryFamilyHasStatusMapping(t *testing.T) {
	for _, family := range Families {
		_, err := normalize(family, &recordInfo{})
		assert.NoError(t, err, family)
		_, ok := familyEndpoints[family]
		assert.True(t, ok, family)
	}
}

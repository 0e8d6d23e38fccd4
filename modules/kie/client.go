package kie

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/config"
	"genstudio-server/modules/common/metrics"
)

const providerName = "kie"

// Client - Kie.ai API 클라이언트 (설정 스냅샷 하나에 묶인 인스턴스)
type Client struct {
	apiKey     string
	baseURL    string
	uploadURL  string
	httpClient *http.Client
	now        func() time.Time
	log        zerolog.Logger
}

// NewClient - Client 생성
func NewClient(cfg *config.Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.KieAPIKey) == "" {
		return nil, apperr.MissingConfig("KIE_API_KEY")
	}

	timeout := cfg.KieTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiKey:     cfg.KieAPIKey,
		baseURL:    strings.TrimRight(cfg.KieBaseURL, "/"),
		uploadURL:  strings.TrimRight(cfg.KieFileUploadURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		log:        log.With().Str("component", "kie").Logger(),
	}, nil
}

// Submit sends a generation payload to the family's submit endpoint and returns the task id.
// It never waits for the generation itself.
func (c *Client) Submit(ctx context.Context, family Family, payload interface{}) (string, error) {
	ep, ok := familyEndpoints[family]
	if !ok {
		return "", apperr.Validation("unsupported provider family %q", family)
	}

	var task taskResponse
	if err := c.call(ctx, "submit_"+string(family), http.MethodPost, c.baseURL+ep.submit, payload, &task); err != nil {
		return "", err
	}
	if task.TaskID == "" {
		return "", &apperr.UpstreamError{Provider: providerName, Message: "response did not contain a taskId"}
	}

	c.log.Info().Str("family", string(family)).Str("task_id", task.TaskID).Msg("task submitted")
	return task.TaskID, nil
}

// Credits - 계정 잔여 크레딧 조회
func (c *Client) Credits(ctx context.Context) (float64, error) {
	var credits float64
	if err := c.call(ctx, "credits", http.MethodGet, c.baseURL+creditEndpoint, nil, &credits); err != nil {
		return 0, err
	}
	return credits, nil
}

// UploadFromURL - 원격 파일을 Kie.ai 임시 스토리지로 복사
func (c *Client) UploadFromURL(ctx context.Context, fileURL, uploadPath, fileName string) (*UploadResult, error) {
	req := fileURLUploadRequest{FileURL: fileURL, UploadPath: uploadPath, FileName: fileName}

	var result UploadResult
	if err := c.call(ctx, "upload_url", http.MethodPost, c.uploadURL+fileURLUploadPath, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadBase64 - base64 데이터를 Kie.ai 임시 스토리지에 업로드
//
// data may be a data URI or bare base64. The decoded bytes are sniffed to complete
// a missing file name or extension.
func (c *Client) UploadBase64(ctx context.Context, data, uploadPath, fileName string) (*UploadResult, error) {
	payload, declaredType := splitDataURI(data)
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperr.Validation("base64 data could not be decoded: %v", err)
	}
	if len(raw) == 0 {
		return nil, apperr.Validation("base64 data is empty")
	}

	detected := mimetype.Detect(raw)
	contentType := declaredType
	if contentType == "" {
		contentType = detected.String()
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}

	if fileName == "" {
		fileName = fmt.Sprintf("upload-%d%s", c.now().UnixMilli(), detected.Extension())
	} else if path.Ext(fileName) == "" {
		fileName += detected.Extension()
	}

	req := fileBase64UploadRequest{
		Base64Data: "data:" + contentType + ";base64," + payload,
		UploadPath: uploadPath,
		FileName:   fileName,
	}

	var result UploadResult
	if err := c.call(ctx, "upload_base64", http.MethodPost, c.uploadURL+fileBase64UploadPath, req, &result); err != nil {
		return nil, err
	}

	c.log.Info().Str("file_name", fileName).Int("size", len(raw)).Str("mime", contentType).Msg("base64 file uploaded")
	return &result, nil
}

// splitDataURI returns the base64 payload and the declared media type of a data URI.
func splitDataURI(data string) (payload, mediaType string) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "data:") {
		return data, ""
	}
	comma := strings.Index(data, ",")
	if comma < 0 {
		return "", ""
	}
	header := strings.TrimSuffix(data[len("data:"):comma], ";base64")
	return data[comma+1:], header
}

func (c *Client) statusURL(endpoint, taskID string) string {
	return c.baseURL + endpoint + "?taskId=" + url.QueryEscape(taskID)
}

// call - 공통 요청 처리: HTTP 상태, envelope code, data 디코딩
func (c *Client) call(ctx context.Context, op, method, target string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstream(providerName, op, "transport_error")
		return &apperr.UpstreamError{Provider: providerName, Message: fmt.Sprintf("%s request failed: %v", op, err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordUpstream(providerName, op, "transport_error")
		return &apperr.UpstreamError{Provider: providerName, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordUpstream(providerName, op, fmt.Sprintf("http_%d", resp.StatusCode))
		c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("vendor rejected request")
		return &apperr.UpstreamError{Provider: providerName, StatusCode: resp.StatusCode, Message: truncate(string(respBody), 500)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		metrics.RecordUpstream(providerName, op, "bad_envelope")
		return &apperr.UpstreamError{Provider: providerName, StatusCode: resp.StatusCode, Message: "response is not a valid envelope", Err: err}
	}
	if env.Code != http.StatusOK {
		metrics.RecordUpstream(providerName, op, fmt.Sprintf("code_%d", env.Code))
		msg := env.Msg
		if msg == "" {
			msg = "Unknown error"
		}
		return &apperr.UpstreamError{Provider: providerName, StatusCode: env.Code, Message: msg}
	}
	metrics.RecordUpstream(providerName, op, "ok")

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &apperr.UpstreamError{Provider: providerName, Message: fmt.Sprintf("unexpected %s response data", op), Err: err}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

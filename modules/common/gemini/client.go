package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/config"
	"genstudio-server/modules/common/logger"
	"genstudio-server/modules/common/poller"
)

const maxRetriesPerKey = 3

// TextClient - Gemini 텍스트 생성 (429 시 여러 API 키로 재시도)
type TextClient struct {
	apiKeys    []string
	model      string
	baseURL    string
	retryDelay time.Duration
	sleep      poller.SleepFunc
	log        zerolog.Logger
}

func NewTextClient(cfg *config.Config, log zerolog.Logger) (*TextClient, error) {
	if len(cfg.GeminiAPIKeys) == 0 {
		return nil, apperr.MissingConfig("GEMINI_API_KEYS")
	}
	return &TextClient{
		apiKeys:    cfg.GeminiAPIKeys,
		model:      cfg.GeminiModel,
		retryDelay: 2 * time.Second,
		sleep:      poller.Sleep,
		log:        log.With().Str("component", "gemini").Logger(),
	}, nil
}

// Model returns the default model id.
func (c *TextClient) Model() string { return c.model }

// Generate returns the text answer for prompt. An empty model uses the default one.
func (c *TextClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = c.model
	}
	c.log.Info().Str("model", model).Str("prompt", logger.Truncate(prompt, 80)).Msg("generating text")

	resp, err := c.generateContentWithRetry(ctx, model, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)})
	if err != nil {
		return "", &apperr.UpstreamError{Provider: "gemini", Message: err.Error(), Err: err}
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return "", &apperr.UpstreamError{Provider: "gemini", Message: "empty response"}
	}
	return sb.String(), nil
}

// generateContentWithRetry - 429 에러 시 같은 키로 최대 3번, 이후 다음 키로 재시도
func (c *TextClient) generateContentWithRetry(ctx context.Context, model string, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var lastErr error

	for keyIndex, apiKey := range c.apiKeys {
		keyLog := c.log.With().Int("key", keyIndex+1).Int("keys", len(c.apiKeys)).Logger()

		cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
		if c.baseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			keyLog.Warn().Err(err).Msg("failed to create client")
			lastErr = err
			continue
		}

		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			result, err := client.Models.GenerateContent(ctx, model, contents, nil)
			if err == nil {
				keyLog.Debug().Int("attempt", attempt).Msg("gemini call succeeded")
				return result, nil
			}
			lastErr = err

			// 429가 아닌 에러는 재시도하지 않음
			if !is429Error(err) {
				return nil, err
			}

			keyLog.Warn().Int("attempt", attempt).Msg("gemini rate limited")
			if attempt < maxRetriesPerKey {
				if err := c.sleep(ctx, c.retryDelay); err != nil {
					return nil, err
				}
			}
		}
	}

	return nil, fmt.Errorf("all %d API keys exhausted (%d attempts each), last error: %w", len(c.apiKeys), maxRetriesPerKey, lastErr)
}

// is429Error - 429 Rate Limit 에러인지 확인
func is429Error(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota")
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/config"
	"genstudio-server/modules/common/metrics"
)

// ObjectStore - 영구 오브젝트 스토리지 (R2 / Supabase Storage)
type ObjectStore interface {
	// Put uploads body under key and returns the public URL of the object.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	// Health checks that the bucket is reachable with the configured credentials.
	Health(ctx context.Context) error
	Backend() string
}

// New selects the backend named by STORAGE_BACKEND.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageR2:
		return NewR2Store(ctx, cfg, log)
	case config.StorageSupabase:
		return NewSupabaseStore(cfg, log)
	default:
		return nil, &apperr.ConfigurationError{Key: "STORAGE_BACKEND", Reason: fmt.Sprintf("has unsupported value %q", cfg.StorageBackend)}
	}
}

// SupabaseStore - Supabase Storage REST API 업로드
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	bucket     string
	publicBase string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewSupabaseStore - Supabase Storage 클라이언트 생성
func NewSupabaseStore(cfg *config.Config, log zerolog.Logger) (*SupabaseStore, error) {
	switch {
	case cfg.SupabaseURL == "":
		return nil, apperr.MissingConfig("SUPABASE_URL")
	case cfg.SupabaseServiceKey == "":
		return nil, apperr.MissingConfig("SUPABASE_SERVICE_KEY")
	case cfg.SupabaseStorageBucket == "":
		return nil, apperr.MissingConfig("SUPABASE_STORAGE_BUCKET")
	case cfg.SupabaseStorageBaseURL == "":
		return nil, apperr.MissingConfig("SUPABASE_STORAGE_BASE_URL")
	}

	return &SupabaseStore{
		baseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		serviceKey: cfg.SupabaseServiceKey,
		bucket:     cfg.SupabaseStorageBucket,
		publicBase: strings.TrimRight(cfg.SupabaseStorageBaseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		log:        log.With().Str("component", "supabase-storage").Logger(),
	}, nil
}

func (s *SupabaseStore) Backend() string { return config.StorageSupabase }

func (s *SupabaseStore) objectURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, escapeKey(key))
}

// Put - Supabase Storage에 파일 업로드
func (s *SupabaseStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	start := time.Now()
	err := s.do(ctx, http.MethodPost, key, body, contentType)
	metrics.RecordStorage(s.Backend(), "put", err, time.Since(start))
	if err != nil {
		return "", err
	}

	s.log.Info().Str("key", key).Int("size", len(body)).Msg("object uploaded")
	return s.publicBase + "/" + escapeKey(key), nil
}

// Delete removes the object stored under key.
func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.do(ctx, http.MethodDelete, key, nil, "")
	metrics.RecordStorage(s.Backend(), "delete", err, time.Since(start))
	return err
}

// Health - 버킷 메타데이터 조회로 연결/권한 확인
func (s *SupabaseStore) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/storage/v1/bucket/%s", s.baseURL, url.PathEscape(s.bucket)), nil)
	if err != nil {
		return fmt.Errorf("create storage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage bucket %s: %w", s.bucket, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("storage bucket %s: status %d", s.bucket, resp.StatusCode)
	}
	return nil
}

func (s *SupabaseStore) do(ctx context.Context, method, key string, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, method, s.objectURL(key), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create storage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage %s %s: %w", method, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("storage %s %s failed with status %d: %s", method, key, resp.StatusCode, string(msg))
	}
	return nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

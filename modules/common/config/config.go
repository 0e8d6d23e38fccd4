package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"genstudio-server/modules/common/apperr"
)

const (
	StorageR2       = "r2"
	StorageSupabase = "supabase"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Server
	Port            string        `env:"PORT" envDefault:"8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	AllowedOrigin   string        `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`

	// Kie.ai
	KieAPIKey        string        `env:"KIE_API_KEY"`
	KieBaseURL       string        `env:"KIE_BASE_URL" envDefault:"https://api.kie.ai"`
	KieFileUploadURL string        `env:"KIE_FILE_UPLOAD_URL" envDefault:"https://kieai.redpandaai.co"`
	KieTimeout       time.Duration `env:"KIE_TIMEOUT" envDefault:"30s"`

	// Polling
	ImagePollInterval  time.Duration `env:"IMAGE_POLL_INTERVAL" envDefault:"5s"`
	ImagePollAttempts  int           `env:"IMAGE_POLL_MAX_ATTEMPTS" envDefault:"60"`
	VideoPollInterval  time.Duration `env:"VIDEO_POLL_INTERVAL" envDefault:"15s"`
	VideoPollAttempts  int           `env:"VIDEO_POLL_MAX_ATTEMPTS" envDefault:"60"`
	AudioPollInterval  time.Duration `env:"AUDIO_POLL_INTERVAL" envDefault:"10s"`
	AudioPollAttempts  int           `env:"AUDIO_POLL_MAX_ATTEMPTS" envDefault:"36"`
	PollTransportError int           `env:"POLL_MAX_TRANSPORT_ERRORS" envDefault:"3"`

	// Redis
	RedisHost     string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisUsername string        `env:"REDIS_USERNAME"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisUseTLS   bool          `env:"REDIS_USE_TLS" envDefault:"false"`
	TaskRecordTTL time.Duration `env:"TASK_RECORD_TTL" envDefault:"72h"`

	// Worker
	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// Supabase
	SupabaseURL            string `env:"SUPABASE_URL"`
	SupabaseServiceKey     string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseStorageBucket  string `env:"SUPABASE_STORAGE_BUCKET" envDefault:"attachments"`
	SupabaseStorageBaseURL string `env:"SUPABASE_STORAGE_BASE_URL"`

	// Object storage
	StorageBackend    string `env:"STORAGE_BACKEND" envDefault:"r2"`
	R2AccountID       string `env:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	R2BucketName      string `env:"R2_BUCKET_NAME"`
	R2PublicURL       string `env:"R2_PUBLIC_URL"`
	R2Endpoint        string `env:"R2_ENDPOINT"`
	R2Region          string `env:"R2_REGION" envDefault:"auto"`

	// Gemini API
	GeminiAPIKeys []string `env:"GEMINI_API_KEYS" envSeparator:","`
	GeminiModel   string   `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	// Admin
	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`
}

// Load - 환경변수 로드 (.env 파일이 있으면 먼저 읽음)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.KieAPIKey = strings.TrimSpace(c.KieAPIKey)
	c.KieBaseURL = strings.TrimRight(strings.TrimSpace(c.KieBaseURL), "/")
	c.KieFileUploadURL = strings.TrimRight(strings.TrimSpace(c.KieFileUploadURL), "/")
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.R2PublicURL = strings.TrimRight(strings.TrimSpace(c.R2PublicURL), "/")
	c.SupabaseStorageBaseURL = strings.TrimRight(strings.TrimSpace(c.SupabaseStorageBaseURL), "/")

	keys := c.GeminiAPIKeys[:0]
	for _, k := range c.GeminiAPIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.GeminiAPIKeys = keys

	for i, email := range c.AdminEmails {
		c.AdminEmails[i] = strings.ToLower(strings.TrimSpace(email))
	}
}

// Validate - 필수 환경변수 검증 (REDIS_HOST/PORT는 기본값이 있어 제외)
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"KIE_API_KEY", c.KieAPIKey},
		{"SUPABASE_URL", c.SupabaseURL},
		{"SUPABASE_SERVICE_KEY", c.SupabaseServiceKey},
	}

	switch c.StorageBackend {
	case StorageR2:
		if c.R2Endpoint == "" && c.R2AccountID == "" {
			return apperr.MissingConfig("R2_ACCOUNT_ID")
		}
		required = append(required,
			struct{ key, value string }{"R2_ACCESS_KEY_ID", c.R2AccessKeyID},
			struct{ key, value string }{"R2_SECRET_ACCESS_KEY", c.R2SecretAccessKey},
			struct{ key, value string }{"R2_BUCKET_NAME", c.R2BucketName},
			struct{ key, value string }{"R2_PUBLIC_URL", c.R2PublicURL},
		)
	case StorageSupabase:
		required = append(required,
			struct{ key, value string }{"SUPABASE_STORAGE_BUCKET", c.SupabaseStorageBucket},
			struct{ key, value string }{"SUPABASE_STORAGE_BASE_URL", c.SupabaseStorageBaseURL},
		)
	default:
		return &apperr.ConfigurationError{Key: "STORAGE_BACKEND", Reason: fmt.Sprintf("has unsupported value %q", c.StorageBackend)}
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return apperr.MissingConfig(r.key)
		}
	}

	if c.ImagePollAttempts <= 0 || c.VideoPollAttempts <= 0 || c.AudioPollAttempts <= 0 {
		return &apperr.ConfigurationError{Key: "*_POLL_MAX_ATTEMPTS", Reason: "must be positive"}
	}
	return nil
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// R2EndpointURL returns the S3 API endpoint of the R2 account.
func (c *Config) R2EndpointURL() string {
	if c.R2Endpoint != "" {
		return c.R2Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2AccountID)
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS.
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FieldError - 단일 필드 검증 실패
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError - 잘못된 입력 (항상 400)
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return e.Message + ": " + strings.Join(parts, ", ")
}

// Validation builds a ValidationError with a formatted message.
func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError - 필수 설정값 누락
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("configuration error: %s is required", e.Key)
}

// MissingConfig reports an absent required setting.
func MissingConfig(key string) *ConfigurationError {
	return &ConfigurationError{Key: key}
}

// UpstreamError - vendor transport failure, non-2xx answer or failed envelope.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, msg)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// GenerationFailedError - vendor가 작업을 실패로 종료함 (재시도 없음)
type GenerationFailedError struct {
	TaskID  string
	Message string
}

func (e *GenerationFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generation task %s failed", e.TaskID)
	}
	return fmt.Sprintf("generation task %s failed: %s", e.TaskID, e.Message)
}

// TimeoutError - attempt budget exhausted or caller deadline reached while pending.
type TimeoutError struct {
	TaskID   string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for task %s after %d attempts", e.TaskID, e.Attempts)
}

// FetchError - asset source could not be read.
// StatusCode > 0 means the source answered but refused, i.e. the caller's URL is bad.
type FetchError struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("failed to fetch file from source: %s", e.Status)
	}
	return fmt.Sprintf("failed to fetch file from source: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AuthError - missing session (401) or insufficient role (403).
type AuthError struct {
	Forbidden bool
	Message   string
}

func (e *AuthError) Error() string { return e.Message }

// Unauthorized returns a 401 AuthError.
func Unauthorized(msg string) *AuthError { return &AuthError{Message: msg} }

// Forbidden returns a 403 AuthError.
func Forbidden(msg string) *AuthError { return &AuthError{Forbidden: true, Message: msg} }

// NotFoundError - 존재하지 않는 리소스 (404)
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// HTTPStatus maps an error to the status code returned at the handler boundary.
func HTTPStatus(err error) int {
	var (
		validationErr *ValidationError
		authErr       *AuthError
		fetchErr      *FetchError
		notFoundErr   *NotFoundError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		if authErr.Forbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.As(err, &fetchErr):
		if fetchErr.StatusCode > 0 {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

var credentialMarkers = []string{"api key", "apikey", "api_key", "authentication", "unauthorized", "401"}

// PublicMessage returns the message safe to show to API callers.
func PublicMessage(err error) string {
	var (
		validationErr *ValidationError
		authErr       *AuthError
		configErr     *ConfigurationError
		upstreamErr   *UpstreamError
		failedErr     *GenerationFailedError
		timeoutErr    *TimeoutError
		fetchErr      *FetchError
		notFoundErr   *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFoundErr):
		return notFoundErr.Error()
	case errors.As(err, &validationErr):
		return "Invalid input: " + validationErr.Error()
	case errors.As(err, &authErr):
		return authErr.Message
	case errors.As(err, &configErr):
		return "Server configuration error"
	case errors.As(err, &upstreamErr), errors.As(err, &failedErr):
		msg := err.Error()
		if mentionsCredentials(msg) {
			return "Server configuration error: upstream provider rejected the server credentials"
		}
		return msg
	case errors.As(err, &timeoutErr):
		return timeoutErr.Error()
	case errors.As(err, &fetchErr):
		return fetchErr.Error()
	default:
		return "Internal server error"
	}
}

func mentionsCredentials(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range credentialMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

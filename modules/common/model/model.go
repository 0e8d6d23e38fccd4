package model

import "time"

// Kind - 생성 결과물 종류
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindText  Kind = "text"
)

// IsAsset reports whether results of this kind are files that can be relocated.
func (k Kind) IsAsset() bool {
	return k == KindImage || k == KindVideo || k == KindAudio
}

// TaskStatus - 생성 작업 상태 (pending 이외는 모두 terminal)
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusTimedOut  TaskStatus = "timed_out"
)

// IsTerminal reports whether no further transition can happen.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusTimedOut
}

const ProviderKie = "kie"

// GenerationTask - vendor에 제출된 생성 작업 1건
type GenerationTask struct {
	TaskID       string        `json:"taskId"`
	Provider     string        `json:"provider"`
	ModelID      string        `json:"modelId"`
	Kind         Kind          `json:"kind"`
	Status       TaskStatus    `json:"status"`
	ResultURLs   []string      `json:"resultUrls"`
	StoredAssets []StoredAsset `json:"storedAssets,omitempty"`
	Error        string        `json:"error,omitempty"`
	Attempts     int           `json:"attempts"`
	Persist      bool          `json:"persist"`
	UserID       string        `json:"userId,omitempty"`
	SubmittedAt  time.Time     `json:"submittedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// StoredAsset - 영구 스토리지로 옮겨진 파일
type StoredAsset struct {
	Key         string `json:"key"`
	PublicURL   string `json:"url"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"size"`
}

// ActivityLog - activity_logs 테이블 구조
type ActivityLog struct {
	ID           string                 `json:"id,omitempty"`
	UserID       *string                `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    *time.Time             `json:"created_at,omitempty"`
}

// Activity actions
const (
	ActionGenerationSucceeded = "generation.succeeded"
	ActionGenerationFailed    = "generation.failed"
	ActionAssetSaved          = "asset.saved"
	ActionAssetDeleted        = "asset.deleted"
)

package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/config"
	"genstudio-server/modules/common/model"
)

const activityLogsTable = "activity_logs"

// ActivityRecorder - 활동 로그 기록
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, entry model.ActivityLog) error
}

// ActivityQuery - 활동 로그 페이지 조회 조건
type ActivityQuery struct {
	Page     int
	PageSize int
	Action   string
}

// ActivityPage is one page of activity logs plus the exact total count.
type ActivityPage struct {
	Items    []model.ActivityLog `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

type Client struct {
	supabase *supabase.Client
	log      zerolog.Logger
}

// NewClient - Database 클라이언트 생성
func NewClient(cfg *config.Config, log zerolog.Logger) (*Client, error) {
	if cfg.SupabaseURL == "" {
		return nil, apperr.MissingConfig("SUPABASE_URL")
	}
	if cfg.SupabaseServiceKey == "" {
		return nil, apperr.MissingConfig("SUPABASE_SERVICE_KEY")
	}

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}

	return &Client{
		supabase: supabaseClient,
		log:      log.With().Str("component", "database").Logger(),
	}, nil
}

// Supabase exposes the underlying client for the auth gate.
func (c *Client) Supabase() *supabase.Client {
	return c.supabase
}

// RecordActivity - activity_logs 테이블에 레코드 생성
func (c *Client) RecordActivity(ctx context.Context, entry model.ActivityLog) error {
	if entry.Metadata == nil {
		entry.Metadata = map[string]interface{}{}
	}

	insertData := map[string]interface{}{
		"user_id":       entry.UserID,
		"action":        entry.Action,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
		"metadata":      entry.Metadata,
	}

	_, _, err := c.supabase.From(activityLogsTable).
		Insert(insertData, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}

	c.log.Debug().Str("action", entry.Action).Str("resource_id", entry.ResourceID).Msg("activity recorded")
	return nil
}

// ListActivityLogs - 최신순 페이지 조회 (정확한 전체 건수 포함)
func (c *Client) ListActivityLogs(ctx context.Context, q ActivityQuery) (*ActivityPage, error) {
	from := (q.Page - 1) * q.PageSize
	to := from + q.PageSize - 1

	query := c.supabase.From(activityLogsTable).Select("*", "exact", false)
	if q.Action != "" {
		query = query.Eq("action", q.Action)
	}

	data, count, err := query.
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(from, to, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query activity logs: %w", err)
	}

	var items []model.ActivityLog
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse activity logs: %w", err)
	}
	if items == nil {
		items = []model.ActivityLog{}
	}

	return &ActivityPage{Items: items, Total: count, Page: q.Page, PageSize: q.PageSize}, nil
}

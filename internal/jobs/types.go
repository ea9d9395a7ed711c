package jobs

import (
	"time"

	"github.com/yourusername/glyph-forge/internal/font"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
	StatusCancelled Status = "cancelled"
)

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID       string         `json:"jobId"`
	Status      Status         `json:"status"`
	Progress    ProgressInfo   `json:"progress"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
	Meta        any            `json:"meta,omitempty"`
	Error       *font.AppError `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
}

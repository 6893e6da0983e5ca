package models

import (
	"time"

	"github.com/google/uuid"
)

// SearchStatus はリサーチジョブのステータスを表します
type SearchStatus string

const (
	// SearchStatusPending は実行待ちの状態
	SearchStatusPending SearchStatus = "pending"
	// SearchStatusProcessing は実行中の状態
	SearchStatusProcessing SearchStatus = "processing"
	// SearchStatusCompleted は正常完了した状態（終端）
	SearchStatusCompleted SearchStatus = "completed"
	// SearchStatusFailed は失敗した状態（終端）
	SearchStatusFailed SearchStatus = "failed"
)

// Terminal は終端ステータスかどうかを返します
// 終端ステータスに到達したジョブは以降一切更新されません
func (s SearchStatus) Terminal() bool {
	return s == SearchStatusCompleted || s == SearchStatusFailed
}

// Subject はリサーチ対象の属性を表します
type Subject struct {
	Company string `json:"company"`
	Role    string `json:"role"`
	Region  string `json:"region,omitempty"`
}

// Search は1回のリサーチジョブを表します
type Search struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"userID"`
	Subject

	Status             SearchStatus `json:"status"`
	ProgressStep       string       `json:"progressStep"`
	ProgressPercentage int          `json:"progressPercentage"`
	ErrorMessage       *string      `json:"errorMessage,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

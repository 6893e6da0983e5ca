package research

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/pkg/models"
)

// CompletionRequest はコンプリーションサービスへのリクエストです
type CompletionRequest struct {
	System    string
	User      string
	MaxTokens int
	// JSONMode が真なら構造化出力モードを要求します
	JSONMode bool
}

// CompletionResponse はコンプリーションサービスのレスポンスです
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// CompletionClient はコンプリーションサービスのポートです
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// TokenCounter はプロンプト予算の計測に使うトークンカウンタのポートです
type TokenCounter interface {
	Count(text string) int
}

// CompanyGatherer / RequirementGatherer / ProfileGatherer はギャザラーのポートです
// ギャザラーは失敗を自身の境界内で処理し、nilを返すことで表現します
type CompanyGatherer interface {
	Gather(ctx context.Context, searchID uuid.UUID, subject models.Subject) *models.CompanyResearch
}

type RequirementGatherer interface {
	Gather(ctx context.Context, searchID uuid.UUID, subject models.Subject) *models.RequirementResearch
}

type ProfileGatherer interface {
	Gather(ctx context.Context, searchID uuid.UUID, subject models.Subject) *models.ProfileResearch
}

// Config はコーディネータの実行設定です
type Config struct {
	// GatherDeadline はギャザリングフェーズ全体のデッドライン
	// 各ギャザラー自身のタイムアウトとは独立して適用されます
	GatherDeadline time.Duration

	// SynthesisModel / SynthesisMaxTokens はシンセシス呼び出しの設定
	SynthesisModel     string
	SynthesisMaxTokens int

	// PerSourceTokenBudget はプロンプトに埋め込むソースごとのトークン上限
	PerSourceTokenBudget int

	// CheckpointTimeout は永続化チェックポイント1つあたりのタイムアウト
	CheckpointTimeout time.Duration
}

// synthesisPayload はシンセシス呼び出しの構造化出力です
// コンプリーションサービスのJSONレスポンスをこの形に解析します
type synthesisPayload struct {
	ComparisonAnalysis models.ComparisonAnalysis `json:"comparison_analysis"`
	Stages             []synthesisStage          `json:"interview_stages"`
	Questions          []synthesisQuestion       `json:"questions"`
	Guidance           models.PrepGuidance       `json:"prep_guidance"`
}

type synthesisStage struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Format          string `json:"format"`
	DurationMinutes int    `json:"duration_minutes"`
}

type synthesisQuestion struct {
	Category string `json:"category"`
	Question string `json:"question"`
	Guidance string `json:"guidance"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// ComparisonAnalysis は候補者と募集要項の適合性分析です
type ComparisonAnalysis struct {
	FitSummary    string   `json:"fitSummary"`
	Strengths     []string `json:"strengths"`
	Gaps          []string `json:"gaps"`
	TalkingPoints []string `json:"talkingPoints"`
}

// InterviewStage は選考プロセスの1ステージを表します
type InterviewStage struct {
	ID              uuid.UUID `json:"id"`
	SearchID        uuid.UUID `json:"searchID"`
	Ordinal         int       `json:"ordinal"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Format          string    `json:"format"`
	DurationMinutes int       `json:"durationMinutes"`
}

// InterviewQuestion はカテゴリ分けされた想定質問1件を表します
type InterviewQuestion struct {
	ID       uuid.UUID `json:"id"`
	SearchID uuid.UUID `json:"searchID"`
	Category string    `json:"category"`
	Question string    `json:"question"`
	Guidance string    `json:"guidance,omitempty"`
}

// PrepGuidance は面接準備ガイダンスです
type PrepGuidance struct {
	Summary    string   `json:"summary"`
	Priorities []string `json:"priorities"`
	Resources  []string `json:"resources"`
}

// PrepBundle は1つのSearchに対する成果物バンドルです
// Searchごとに最大1件のみ存在します
type PrepBundle struct {
	ID       uuid.UUID `json:"id"`
	SearchID uuid.UUID `json:"searchID"`

	// ギャザラーの生出力（それぞれ独立してnullになりえる）
	CompanyResearch     *CompanyResearch     `json:"companyResearch,omitempty"`
	RequirementResearch *RequirementResearch `json:"requirementResearch,omitempty"`
	ProfileResearch     *ProfileResearch     `json:"profileResearch,omitempty"`

	// シンセシスのメタデータ
	SynthesisModel  *string    `json:"synthesisModel,omitempty"`
	SynthesisTokens *int       `json:"synthesisTokens,omitempty"`
	SynthesizedAt   *time.Time `json:"synthesizedAt,omitempty"`

	// シンセシスの成果物
	ComparisonAnalysis *ComparisonAnalysis `json:"comparisonAnalysis,omitempty"`
	Stages             []InterviewStage    `json:"stages,omitempty"`
	Questions          []InterviewQuestion `json:"questions,omitempty"`
	Guidance           *PrepGuidance       `json:"guidance,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

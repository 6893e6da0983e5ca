package research

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/pkg/models"
)

var (
	// ErrSearchNotFound は指定IDのSearchが存在しない場合のエラー
	ErrSearchNotFound = errors.New("search not found")

	// ErrTerminalState は終端ステータスのSearchへの更新を拒否するエラー
	// completed/failedに到達したジョブの進捗・ステータスは以後変更されません
	ErrTerminalState = errors.New("search already in terminal state")
)

// SearchRepository はSearch（ジョブ）の永続化ポートです
type SearchRepository interface {
	Create(ctx context.Context, search *models.Search) error

	// GetByID は進捗ポーリングの読み取りパスです
	GetByID(ctx context.Context, id uuid.UUID) (*models.Search, error)

	// UpdateProgress はstatus/step/percentage/updated_atを1回の原子的な更新で書き換えます
	// 対象が終端ステータスの場合はErrTerminalStateを返します
	UpdateProgress(ctx context.Context, id uuid.UUID, status models.SearchStatus, step string, percentage int) error

	// MarkCompleted はstatus=completed、percentage=100、completed_atを設定します
	MarkCompleted(ctx context.Context, id uuid.UUID, step string) error

	// MarkFailed はstatus=failed、error_message、completed_atを設定します
	// percentageは維持されます
	MarkFailed(ctx context.Context, id uuid.UUID, message string, step string) error

	// ListStalledSince はprocessingのままupdated_atがcutoff以前のSearchを返します
	ListStalledSince(ctx context.Context, cutoff time.Time) ([]*models.Search, error)
}

// BundleRepository は成果物バンドルの永続化ポートです
// チェックポイント順序（生データ → シンセシス → ステージ → 質問）に対応する操作を持ちます
type BundleRepository interface {
	// UpsertRaw はギャザラーの生出力を保存します（チェックポイント1）
	// Searchごとに最大1件のバンドルという一意性を保ちます
	UpsertRaw(ctx context.Context, searchID uuid.UUID, artifacts *models.GatheredArtifacts) error

	// UpdateSynthesis はシンセシスのメタデータと成果物を保存します（チェックポイント2）
	UpdateSynthesis(ctx context.Context, searchID uuid.UUID, bundle *models.PrepBundle) error

	// InsertStages は選考ステージ行を保存します（チェックポイント3）
	InsertStages(ctx context.Context, searchID uuid.UUID, stages []models.InterviewStage) error

	// InsertQuestions は想定質問行を保存します（チェックポイント4）
	InsertQuestions(ctx context.Context, searchID uuid.UUID, questions []models.InterviewQuestion) error

	GetBySearchID(ctx context.Context, searchID uuid.UUID) (*models.PrepBundle, error)
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/prep-scout/internal/core/research"
	"github.com/jinford/prep-scout/pkg/models"
)

// BundleRepository は成果物バンドルのデータベース操作を提供します
// 集約: PrepBundle（ルート）、InterviewStage、InterviewQuestion
// Searchごとにバンドルは最大1件という一意性はsearch_idのUNIQUE制約で保証されます
type BundleRepository struct {
	pool *pgxpool.Pool
}

// NewBundleRepository は新しいBundleRepositoryを作成します
func NewBundleRepository(pool *pgxpool.Pool) *BundleRepository {
	return &BundleRepository{pool: pool}
}

// UpsertRaw はギャザラーの生出力を保存します
// 各リサーチブロブは独立してnullになりえます
func (r *BundleRepository) UpsertRaw(ctx context.Context, searchID uuid.UUID, artifacts *models.GatheredArtifacts) error {
	company, err := marshalNullable(artifacts.Company)
	if err != nil {
		return fmt.Errorf("failed to marshal company research: %w", err)
	}
	requirement, err := marshalNullable(artifacts.Requirement)
	if err != nil {
		return fmt.Errorf("failed to marshal requirement research: %w", err)
	}
	profile, err := marshalNullable(artifacts.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile research: %w", err)
	}

	query := `
		INSERT INTO prep_bundles (id, search_id, company_research, requirement_research, profile_research)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (search_id) DO UPDATE SET
			company_research = EXCLUDED.company_research,
			requirement_research = EXCLUDED.requirement_research,
			profile_research = EXCLUDED.profile_research,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := r.pool.Exec(ctx, query, uuid.New(), searchID, company, requirement, profile); err != nil {
		return fmt.Errorf("failed to upsert raw artifacts: %w", err)
	}

	return nil
}

// UpdateSynthesis はシンセシスのメタデータと成果物を保存します
// 生データの保存が失敗していてもこの操作は成立します（チェックポイントは独立）
func (r *BundleRepository) UpdateSynthesis(ctx context.Context, searchID uuid.UUID, bundle *models.PrepBundle) error {
	analysis, err := marshalNullable(bundle.ComparisonAnalysis)
	if err != nil {
		return fmt.Errorf("failed to marshal comparison analysis: %w", err)
	}
	guidance, err := marshalNullable(bundle.Guidance)
	if err != nil {
		return fmt.Errorf("failed to marshal prep guidance: %w", err)
	}

	query := `
		INSERT INTO prep_bundles (id, search_id, synthesis_model, synthesis_tokens, synthesized_at,
			comparison_analysis, prep_guidance)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (search_id) DO UPDATE SET
			synthesis_model = EXCLUDED.synthesis_model,
			synthesis_tokens = EXCLUDED.synthesis_tokens,
			synthesized_at = EXCLUDED.synthesized_at,
			comparison_analysis = EXCLUDED.comparison_analysis,
			prep_guidance = EXCLUDED.prep_guidance,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = r.pool.Exec(ctx, query,
		uuid.New(),
		searchID,
		bundle.SynthesisModel,
		bundle.SynthesisTokens,
		bundle.SynthesizedAt,
		analysis,
		guidance,
	)
	if err != nil {
		return fmt.Errorf("failed to update synthesis outputs: %w", err)
	}

	return nil
}

// InsertStages は選考ステージ行を保存します
// 同一Searchの再実行に備えて既存行を置き換えます
func (r *BundleRepository) InsertStages(ctx context.Context, searchID uuid.UUID, stages []models.InterviewStage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM interview_stages WHERE search_id = $1`, searchID); err != nil {
		return fmt.Errorf("failed to clear interview stages: %w", err)
	}

	query := `
		INSERT INTO interview_stages (id, search_id, ordinal, name, description, format, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, stage := range stages {
		if _, err := tx.Exec(ctx, query,
			stage.ID, searchID, stage.Ordinal, stage.Name, stage.Description, stage.Format, stage.DurationMinutes,
		); err != nil {
			return fmt.Errorf("failed to insert interview stage: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit interview stages: %w", err)
	}
	return nil
}

// InsertQuestions は想定質問行を保存します
func (r *BundleRepository) InsertQuestions(ctx context.Context, searchID uuid.UUID, questions []models.InterviewQuestion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM interview_questions WHERE search_id = $1`, searchID); err != nil {
		return fmt.Errorf("failed to clear interview questions: %w", err)
	}

	query := `
		INSERT INTO interview_questions (id, search_id, category, question, guidance)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, q := range questions {
		if _, err := tx.Exec(ctx, query, q.ID, searchID, q.Category, q.Question, q.Guidance); err != nil {
			return fmt.Errorf("failed to insert interview question: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit interview questions: %w", err)
	}
	return nil
}

// GetBySearchID はSearchに紐づくバンドルをステージ・質問ごと取得します
func (r *BundleRepository) GetBySearchID(ctx context.Context, searchID uuid.UUID) (*models.PrepBundle, error) {
	query := `
		SELECT id, search_id, company_research, requirement_research, profile_research,
			synthesis_model, synthesis_tokens, synthesized_at,
			comparison_analysis, prep_guidance, created_at, updated_at
		FROM prep_bundles
		WHERE search_id = $1
	`

	var (
		bundle      models.PrepBundle
		company     []byte
		requirement []byte
		profile     []byte
		analysis    []byte
		guidance    []byte
	)
	err := r.pool.QueryRow(ctx, query, searchID).Scan(
		&bundle.ID,
		&bundle.SearchID,
		&company,
		&requirement,
		&profile,
		&bundle.SynthesisModel,
		&bundle.SynthesisTokens,
		&bundle.SynthesizedAt,
		&analysis,
		&guidance,
		&bundle.CreatedAt,
		&bundle.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, research.ErrSearchNotFound
		}
		return nil, fmt.Errorf("failed to get prep bundle: %w", err)
	}

	if err := unmarshalNullable(company, &bundle.CompanyResearch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal company research: %w", err)
	}
	if err := unmarshalNullable(requirement, &bundle.RequirementResearch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requirement research: %w", err)
	}
	if err := unmarshalNullable(profile, &bundle.ProfileResearch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile research: %w", err)
	}
	if err := unmarshalNullable(analysis, &bundle.ComparisonAnalysis); err != nil {
		return nil, fmt.Errorf("failed to unmarshal comparison analysis: %w", err)
	}
	if err := unmarshalNullable(guidance, &bundle.Guidance); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prep guidance: %w", err)
	}

	if bundle.Stages, err = r.listStages(ctx, searchID); err != nil {
		return nil, err
	}
	if bundle.Questions, err = r.listQuestions(ctx, searchID); err != nil {
		return nil, err
	}

	return &bundle, nil
}

func (r *BundleRepository) listStages(ctx context.Context, searchID uuid.UUID) ([]models.InterviewStage, error) {
	query := `
		SELECT id, search_id, ordinal, name, description, format, duration_minutes
		FROM interview_stages
		WHERE search_id = $1
		ORDER BY ordinal
	`

	rows, err := r.pool.Query(ctx, query, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interview stages: %w", err)
	}
	defer rows.Close()

	var stages []models.InterviewStage
	for rows.Next() {
		var s models.InterviewStage
		if err := rows.Scan(&s.ID, &s.SearchID, &s.Ordinal, &s.Name, &s.Description, &s.Format, &s.DurationMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan interview stage: %w", err)
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

func (r *BundleRepository) listQuestions(ctx context.Context, searchID uuid.UUID) ([]models.InterviewQuestion, error) {
	query := `
		SELECT id, search_id, category, question, guidance
		FROM interview_questions
		WHERE search_id = $1
		ORDER BY category, question
	`

	rows, err := r.pool.Query(ctx, query, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interview questions: %w", err)
	}
	defer rows.Close()

	var questions []models.InterviewQuestion
	for rows.Next() {
		var q models.InterviewQuestion
		if err := rows.Scan(&q.ID, &q.SearchID, &q.Category, &q.Question, &q.Guidance); err != nil {
			return nil, fmt.Errorf("failed to scan interview question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// marshalNullable はnilポインタをSQLのNULLとして扱うためのJSONB変換です
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable[T any](data []byte, dst **T) error {
	if len(data) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

// インターフェース実装の確認
var _ research.BundleRepository = (*BundleRepository)(nil)

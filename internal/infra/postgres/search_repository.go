package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/prep-scout/internal/core/research"
	"github.com/jinford/prep-scout/pkg/models"
)

// SearchRepository はリサーチジョブのデータベース操作を提供します
// 終端ステータス（completed/failed）への更新はWHERE句で拒否され、
// ErrTerminalStateとして報告されます
type SearchRepository struct {
	pool *pgxpool.Pool
}

// NewSearchRepository は新しいSearchRepositoryを作成します
func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

const searchColumns = `id, user_id, company, role, region, status, progress_step, progress_percentage,
	error_message, started_at, completed_at, created_at, updated_at`

// Create は新しいSearchをpendingで作成します
func (r *SearchRepository) Create(ctx context.Context, search *models.Search) error {
	query := `
		INSERT INTO searches (id, user_id, company, role, region, status, progress_step, progress_percentage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		search.ID,
		search.UserID,
		search.Company,
		search.Role,
		search.Region,
		search.Status,
		search.ProgressStep,
		search.ProgressPercentage,
	).Scan(&search.CreatedAt, &search.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create search: %w", err)
	}

	return nil
}

// GetByID はIDでSearchを取得します
func (r *SearchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Search, error) {
	query := fmt.Sprintf(`SELECT %s FROM searches WHERE id = $1`, searchColumns)

	search, err := scanSearch(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, research.ErrSearchNotFound
		}
		return nil, fmt.Errorf("failed to get search: %w", err)
	}

	return search, nil
}

// UpdateProgress はstatus/step/percentage/updated_atを1回の原子的な更新で書き換えます
// started_atは最初にprocessingへ遷移したときに設定されます
func (r *SearchRepository) UpdateProgress(ctx context.Context, id uuid.UUID, status models.SearchStatus, step string, percentage int) error {
	query := `
		UPDATE searches
		SET status = $2,
			progress_step = $3,
			progress_percentage = $4,
			started_at = COALESCE(started_at, CURRENT_TIMESTAMP),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`

	tag, err := r.pool.Exec(ctx, query, id, status, step, percentage)
	if err != nil {
		return fmt.Errorf("failed to update search progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.zeroRowsReason(ctx, id)
	}

	return nil
}

// MarkCompleted はstatus=completed、percentage=100、completed_atを設定します
func (r *SearchRepository) MarkCompleted(ctx context.Context, id uuid.UUID, step string) error {
	query := `
		UPDATE searches
		SET status = 'completed',
			progress_step = $2,
			progress_percentage = 100,
			completed_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`

	tag, err := r.pool.Exec(ctx, query, id, step)
	if err != nil {
		return fmt.Errorf("failed to mark search completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.zeroRowsReason(ctx, id)
	}

	return nil
}

// MarkFailed はstatus=failed、error_message、completed_atを設定します
// progress_percentageは到達済みの値のまま維持されます
func (r *SearchRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string, step string) error {
	query := `
		UPDATE searches
		SET status = 'failed',
			progress_step = $3,
			error_message = $2,
			completed_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`

	tag, err := r.pool.Exec(ctx, query, id, message, step)
	if err != nil {
		return fmt.Errorf("failed to mark search failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.zeroRowsReason(ctx, id)
	}

	return nil
}

// ListStalledSince はprocessingのままupdated_atがcutoff以前のSearchを返します
func (r *SearchRepository) ListStalledSince(ctx context.Context, cutoff time.Time) ([]*models.Search, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM searches
		WHERE status = 'processing' AND updated_at <= $1
		ORDER BY updated_at
	`, searchColumns)

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled searches: %w", err)
	}
	defer rows.Close()

	var searches []*models.Search
	for rows.Next() {
		search, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		searches = append(searches, search)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate searches: %w", err)
	}

	return searches, nil
}

// zeroRowsReason は更新が0行だった理由を区別します
// 行が存在しなければErrSearchNotFound、終端ステータスならErrTerminalState
func (r *SearchRepository) zeroRowsReason(ctx context.Context, id uuid.UUID) error {
	var status models.SearchStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM searches WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return research.ErrSearchNotFound
		}
		return fmt.Errorf("failed to check search status: %w", err)
	}

	if status.Terminal() {
		return research.ErrTerminalState
	}
	return fmt.Errorf("search update affected no rows: %s", id)
}

func scanSearch(row pgx.Row) (*models.Search, error) {
	var search models.Search
	err := row.Scan(
		&search.ID,
		&search.UserID,
		&search.Company,
		&search.Role,
		&search.Region,
		&search.Status,
		&search.ProgressStep,
		&search.ProgressPercentage,
		&search.ErrorMessage,
		&search.StartedAt,
		&search.CompletedAt,
		&search.CreatedAt,
		&search.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &search, nil
}

// インターフェース実装の確認
var _ research.SearchRepository = (*SearchRepository)(nil)

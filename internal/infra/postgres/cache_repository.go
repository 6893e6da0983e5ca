package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/prep-scout/internal/core/reuse"
	"github.com/jinford/prep-scout/pkg/models"
)

// CacheRepository はコンテンツ再利用キャッシュのデータベース操作を提供します
type CacheRepository struct {
	pool *pgxpool.Pool
}

// NewCacheRepository は新しいCacheRepositoryを作成します
func NewCacheRepository(pool *pgxpool.Pool) *CacheRepository {
	return &CacheRepository{pool: pool}
}

const cacheColumns = `id, url, domain, company, role, region, content, summary, quality,
	extracted_at, last_reused_at, reuse_count`

// MatchSubject はリサーチ対象属性にマッチするエントリを取得します
// 企業名は大文字小文字を無視した一致、ロールは部分一致で絞り込みます
// ルックアップ段階では本文を引かず、メタデータと要約のみ返します
func (r *CacheRepository) MatchSubject(ctx context.Context, subject models.Subject, limit int) ([]*models.CacheEntry, error) {
	query := `
		SELECT id, url, domain, company, role, region, '' AS content, summary, quality,
			extracted_at, last_reused_at, reuse_count
		FROM content_cache
		WHERE LOWER(company) = LOWER($1)
		  AND role ILIKE '%' || $2 || '%'
		  AND ($3 = '' OR region = '' OR region ILIKE '%' || $3 || '%')
		ORDER BY quality DESC, reuse_count DESC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, subject.Company, subject.Role, subject.Region, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to match cache entries: %w", err)
	}
	defer rows.Close()

	return scanCacheEntries(rows)
}

// GetByURLs は指定URLのエントリを全文付きで取得します
func (r *CacheRepository) GetByURLs(ctx context.Context, urls []string, subject models.Subject) ([]*models.CacheEntry, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM content_cache
		WHERE url = ANY($1) AND LOWER(company) = LOWER($2)
	`, cacheColumns)

	rows, err := r.pool.Query(ctx, query, urls, subject.Company)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entries by url: %w", err)
	}
	defer rows.Close()

	return scanCacheEntries(rows)
}

// Store は新規取得したコンテンツをキャッシュに保存します
// 同一URL・同一対象の再取得は内容と品質を上書きし、鮮度を更新します
func (r *CacheRepository) Store(ctx context.Context, entry *models.CacheEntry) error {
	query := `
		INSERT INTO content_cache (id, url, domain, company, role, region, content, summary, quality, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (url, company, role) DO UPDATE SET
			content = EXCLUDED.content,
			summary = EXCLUDED.summary,
			quality = EXCLUDED.quality,
			region = EXCLUDED.region,
			extracted_at = EXCLUDED.extracted_at
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.URL,
		entry.Domain,
		entry.Company,
		entry.Role,
		entry.Region,
		entry.Content,
		entry.Summary,
		entry.Quality,
		entry.ExtractedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// RecordUsage はジョブによるエントリ利用を記録します
func (r *CacheRepository) RecordUsage(ctx context.Context, searchID, entryID uuid.UUID, qualityAtUse float64) error {
	query := `
		INSERT INTO cache_usages (id, search_id, entry_id, quality_at_use)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.pool.Exec(ctx, query, uuid.New(), searchID, entryID, qualityAtUse); err != nil {
		return fmt.Errorf("failed to record cache usage: %w", err)
	}

	return nil
}

// IncrementReuse は再利用カウンタを加算し、last_reused_atを更新します
// 加算はSQL側で行うため、複数ジョブからの同時加算でも単調増加が保たれます
func (r *CacheRepository) IncrementReuse(ctx context.Context, entryID uuid.UUID) error {
	query := `
		UPDATE content_cache
		SET reuse_count = reuse_count + 1,
			last_reused_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, entryID); err != nil {
		return fmt.Errorf("failed to increment reuse count: %w", err)
	}

	return nil
}

// CacheStats はキャッシュ全体の統計情報です
type CacheStats struct {
	TotalEntries int     `json:"totalEntries"`
	Companies    int     `json:"companies"`
	TotalReuses  int     `json:"totalReuses"`
	AvgQuality   float64 `json:"avgQuality"`
}

// Stats はキャッシュ全体の統計を集計します
func (r *CacheRepository) Stats(ctx context.Context) (*CacheStats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(DISTINCT LOWER(company)),
			COALESCE(SUM(reuse_count), 0),
			COALESCE(AVG(quality), 0)
		FROM content_cache
	`

	var stats CacheStats
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalEntries,
		&stats.Companies,
		&stats.TotalReuses,
		&stats.AvgQuality,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to collect cache stats: %w", err)
	}

	return &stats, nil
}

func scanCacheEntries(rows pgx.Rows) ([]*models.CacheEntry, error) {
	var entries []*models.CacheEntry
	for rows.Next() {
		var e models.CacheEntry
		err := rows.Scan(
			&e.ID,
			&e.URL,
			&e.Domain,
			&e.Company,
			&e.Role,
			&e.Region,
			&e.Content,
			&e.Summary,
			&e.Quality,
			&e.ExtractedAt,
			&e.LastReusedAt,
			&e.ReuseCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache entries: %w", err)
	}
	return entries, nil
}

// インターフェース実装の確認
var _ reuse.Repository = (*CacheRepository)(nil)

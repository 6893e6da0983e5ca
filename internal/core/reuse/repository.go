package reuse

import (
	"context"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/pkg/models"
)

// Repository はコンテンツ再利用キャッシュの永続化ポートです
type Repository interface {
	// MatchSubject はリサーチ対象属性にマッチするエントリを取得します
	// 企業名は大文字小文字を無視した一致、ロール・リージョンは部分一致で絞り込みます
	// 経過時間・品質のフィルタリングとソートはサービス層が行います
	MatchSubject(ctx context.Context, subject models.Subject, limit int) ([]*models.CacheEntry, error)

	// GetByURLs は指定URLのエントリを全文付きで取得します
	GetByURLs(ctx context.Context, urls []string, subject models.Subject) ([]*models.CacheEntry, error)

	// Store は新規取得したコンテンツをキャッシュに保存します
	Store(ctx context.Context, entry *models.CacheEntry) error

	// RecordUsage はジョブによるエントリ利用を記録します
	RecordUsage(ctx context.Context, searchID, entryID uuid.UUID, qualityAtUse float64) error

	// IncrementReuse は再利用カウンタを加算し、last_reused_atを更新します
	// 複数ジョブからの同時加算に対して単調増加が保証される実装であること
	IncrementReuse(ctx context.Context, entryID uuid.UUID) error
}

package reuse

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/pkg/models"
)

const (
	// DefaultMaxEntries は1回のルックアップで返すエントリ数のデフォルト上限
	DefaultMaxEntries = 10

	// candidateFetchFactor はフィルタ前に取得する候補の倍率
	// 経過時間・品質で落ちる分を見込んで多めに引きます
	candidateFetchFactor = 3
)

// ReusableSet は再利用可能なキャッシュエントリの集合です
type ReusableSet struct {
	Entries []*models.CacheEntry
	// ExcludedDomains は既にカバー済みのドメイン一覧
	// 新規検索時の除外リストとして使います
	ExcludedDomains []string
}

// Service はコンテンツ再利用キャッシュのルックアップと利用記録を提供します
// 純粋なルックアップは一切状態を変更しません
type Service struct {
	repo       Repository
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time
}

// Option はServiceのオプション設定
type Option func(*Service)

// WithMaxEntries はルックアップ結果の上限を設定します
func WithMaxEntries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithLogger はロガーを設定します
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock は現在時刻の取得関数を差し替えます（テスト用）
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService は新しいServiceを作成します
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		maxEntries: DefaultMaxEntries,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindReusable は対象属性にマッチし、十分新しく品質の高いエントリを返します
// 結果は品質の降順、同値なら再利用回数の降順に整列されます
func (s *Service) FindReusable(ctx context.Context, subject models.Subject, maxAgeDays int, minQuality float64) (*ReusableSet, error) {
	candidates, err := s.repo.MatchSubject(ctx, subject, s.maxEntries*candidateFetchFactor)
	if err != nil {
		return nil, err
	}

	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour
	now := s.now()

	filtered := make([]*models.CacheEntry, 0, len(candidates))
	for _, entry := range candidates {
		if entry.Age(now) > maxAge {
			continue
		}
		if entry.Quality < minQuality {
			continue
		}
		filtered = append(filtered, entry)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Quality != filtered[j].Quality {
			return filtered[i].Quality > filtered[j].Quality
		}
		return filtered[i].ReuseCount > filtered[j].ReuseCount
	})

	if len(filtered) > s.maxEntries {
		filtered = filtered[:s.maxEntries]
	}

	domains := make([]string, 0, len(filtered))
	seen := make(map[string]bool, len(filtered))
	for _, entry := range filtered {
		if entry.Domain == "" || seen[entry.Domain] {
			continue
		}
		seen[entry.Domain] = true
		domains = append(domains, entry.Domain)
	}

	s.logger.Debug("cache lookup finished",
		"company", subject.Company,
		"candidates", len(candidates),
		"reusable", len(filtered),
	)

	return &ReusableSet{Entries: filtered, ExcludedDomains: domains}, nil
}

// GetContent は選択済みURLの全文をまとめて取得します
func (s *Service) GetContent(ctx context.Context, urls []string, subject models.Subject) ([]*models.CacheEntry, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	return s.repo.GetByURLs(ctx, urls, subject)
}

// Store は新規取得したコンテンツをキャッシュに保存します
// 保存失敗はジョブを止めるべきではないため、エラーはログに留めます
func (s *Service) Store(ctx context.Context, entry *models.CacheEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ExtractedAt.IsZero() {
		entry.ExtractedAt = s.now()
	}

	if err := s.repo.Store(ctx, entry); err != nil {
		s.logger.Warn("failed to store cache entry", "url", entry.URL, "error", err)
	}
}

// RecordUsage はジョブによるエントリ利用を記録し、再利用カウンタを加算します
// fire-and-forgetの副作用であり、失敗しても呼び出し元の処理は継続します
func (s *Service) RecordUsage(ctx context.Context, searchID, entryID uuid.UUID, qualityAtUse float64) {
	if err := s.repo.RecordUsage(ctx, searchID, entryID, qualityAtUse); err != nil {
		s.logger.Warn("failed to record cache usage", "entryID", entryID, "error", err)
	}

	if err := s.repo.IncrementReuse(ctx, entryID); err != nil {
		s.logger.Warn("failed to increment reuse counter", "entryID", entryID, "error", err)
	}
}

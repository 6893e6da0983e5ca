package gatherer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/internal/core/reuse"
	"github.com/jinford/prep-scout/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	// minInlineContentLength を下回る検索結果はページ抽出で補完します
	minInlineContentLength = 200

	// maxExtractConcurrency はページ抽出の同時実行数の上限
	maxExtractConcurrency = 3
)

// SearchRequest は検索・抽出サービスへのリクエストです
type SearchRequest struct {
	Query          string
	MaxResults     int
	SearchDepth    string // "basic" or "advanced"
	IncludeDomains []string
	ExcludeDomains []string
}

// SearchResult は検索サービスの結果1件です
type SearchResult struct {
	URL     string
	Title   string
	Content string
	Score   float64
}

// SearchClient は外部検索サービスのポートです
type SearchClient interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
}

// Extractor はページ本文の抽出ポートです
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

// Config はギャザラー共通の実行設定です
type Config struct {
	// Timeout はギャザラー1つあたりの実行時間上限
	Timeout time.Duration
	// MinCacheHits はこの件数以上キャッシュヒットすれば新規検索をスキップ
	MinCacheHits int
	// MaxResults は新規検索1回あたりの結果数上限
	MaxResults int
	// SearchDepth は検索サービスに渡す探索深度
	SearchDepth string
	// CacheMaxAgeDays / CacheMinQuality はキャッシュ再利用条件
	CacheMaxAgeDays int
	CacheMinQuality float64
}

// collector は3つのギャザラーが共有する収集パイプラインです
// キャッシュ確認 → 不足時の新規検索 → 本文抽出 → キャッシュ保存、の順に進みます
type collector struct {
	search    SearchClient
	extractor Extractor
	cache     *reuse.Service
	cfg       Config
	logger    *slog.Logger
}

// collectResult は1ギャザラー分の収集結果です
type collectResult struct {
	Documents  []models.SourceDocument
	CacheHits  int
	FreshFetch int
}

// collect は収集パイプラインを実行します
// フェーズ遷移（discovery → extraction → result）は構造化ログとして残します
func (c *collector) collect(ctx context.Context, searchID uuid.UUID, subject models.Subject, label, query string) (*collectResult, error) {
	logger := c.logger.With("gatherer", label, "searchID", searchID)
	result := &collectResult{}

	// フェーズ1: キャッシュからの再利用候補を確認
	logger.Info("gather phase started", "phase", "discovery", "query", query)

	var excludeDomains []string
	set, err := c.cache.FindReusable(ctx, subject, c.cfg.CacheMaxAgeDays, c.cfg.CacheMinQuality)
	if err != nil {
		// キャッシュ障害は新規取得で代替できるため継続する
		logger.Warn("cache lookup failed, falling back to fresh search", "error", err)
	} else if len(set.Entries) > 0 {
		urls := make([]string, 0, len(set.Entries))
		for _, entry := range set.Entries {
			urls = append(urls, entry.URL)
		}

		hydrated, err := c.cache.GetContent(ctx, urls, subject)
		if err != nil {
			logger.Warn("cache hydration failed", "error", err)
		} else {
			for _, entry := range hydrated {
				result.Documents = append(result.Documents, models.SourceDocument{
					URL:       entry.URL,
					Title:     entry.Summary,
					Content:   entry.Content,
					Score:     entry.Quality,
					FromCache: true,
				})
				c.cache.RecordUsage(ctx, searchID, entry.ID, entry.Quality)
			}
			result.CacheHits = len(hydrated)
			excludeDomains = set.ExcludedDomains
		}
	}

	if result.CacheHits >= c.cfg.MinCacheHits {
		logger.Info("gather phase finished", "phase", "result", "cacheHits", result.CacheHits, "freshFetch", 0)
		return result, nil
	}

	// 検索サービスが構成されていない場合はキャッシュのみで動作する
	if c.search == nil {
		if result.CacheHits > 0 {
			logger.Warn("search client not configured, returning cache-only result")
			return result, nil
		}
		return nil, fmt.Errorf("search client not configured and no cache entries for %q", subject.Company)
	}

	// フェーズ2: 新規検索と本文抽出
	logger.Info("gather phase started", "phase", "extraction", "cacheHits", result.CacheHits)

	searchResults, err := c.search.Search(ctx, SearchRequest{
		Query:          query,
		MaxResults:     c.cfg.MaxResults,
		SearchDepth:    c.cfg.SearchDepth,
		ExcludeDomains: excludeDomains,
	})
	if err != nil {
		// キャッシュ分だけでも返せるなら部分結果として返す
		if result.CacheHits > 0 {
			logger.Warn("fresh search failed, returning cache-only result", "error", err)
			return result, nil
		}
		return nil, err
	}

	fresh := c.enrichResults(ctx, logger, searchResults)

	for _, doc := range fresh {
		result.Documents = append(result.Documents, doc)
		result.FreshFetch++

		c.cache.Store(ctx, &models.CacheEntry{
			URL:     doc.URL,
			Domain:  domainOf(doc.URL),
			Company: subject.Company,
			Role:    subject.Role,
			Region:  subject.Region,
			Content: doc.Content,
			Summary: doc.Title,
			Quality: doc.Score,
		})
	}

	logger.Info("gather phase finished",
		"phase", "result",
		"cacheHits", result.CacheHits,
		"freshFetch", result.FreshFetch,
	)

	return result, nil
}

// enrichResults は本文が薄い検索結果をページ抽出で補完します
// 抽出は同時実行数を制限した上で並行実行します
func (c *collector) enrichResults(ctx context.Context, logger *slog.Logger, results []SearchResult) []models.SourceDocument {
	docs := make([]models.SourceDocument, len(results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxExtractConcurrency)

	for i, r := range results {
		g.Go(func() error {
			content := r.Content
			if len(content) < minInlineContentLength && c.extractor != nil {
				extracted, err := c.extractor.Extract(gctx, r.URL)
				if err != nil {
					logger.Debug("page extraction failed, keeping search snippet", "url", r.URL, "error", err)
				} else if len(extracted) > len(content) {
					content = extracted
				}
			}

			docs[i] = models.SourceDocument{
				URL:     r.URL,
				Title:   r.Title,
				Content: content,
				Score:   clampQuality(r.Score),
			}
			return nil
		})
	}

	// 各タスクはエラーを返さないためWaitが失敗することはない
	_ = g.Wait()

	out := make([]models.SourceDocument, 0, len(docs))
	for _, d := range docs {
		if d.URL == "" || d.Content == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// domainOf はURLからホスト名を取り出します
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// clampQuality は品質スコアを[0,1]に収めます
func clampQuality(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jinford/prep-scout/internal/core/gatherer"
)

const (
	// DefaultTimeout はページ取得のデフォルトタイムアウト
	DefaultTimeout = 15 * time.Second

	// DefaultUserAgent は取得時に名乗るUser-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// maxContentRunes は抽出本文の上限。これを超える部分は切り捨てます
	maxContentRunes = 20000
)

// skipSelectors は本文として扱わない要素のセレクタです
var skipSelectors = []string{"script", "style", "nav", "header", "footer", "noscript", "iframe"}

// Extractor はcollyを使用したページ本文の抽出実装
// 検索結果のスニペットが薄い場合に、ページ全体から本文を補完します
type Extractor struct {
	timeout   time.Duration
	userAgent string
}

// Option はExtractorのオプション設定
type Option func(*Extractor)

// WithTimeout はページ取得のタイムアウトを設定します
func WithTimeout(timeout time.Duration) Option {
	return func(e *Extractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithUserAgent はUser-Agentを設定します
func WithUserAgent(ua string) Option {
	return func(e *Extractor) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// NewExtractor は新しいExtractorを作成します
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract はページを取得して本文テキストを抽出します
// コレクタはリクエストごとに使い捨てます。並行抽出で状態を共有しないためです
func (e *Extractor) Extract(ctx context.Context, pageURL string) (string, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(e.timeout)
	c.UserAgent = e.userAgent

	var (
		b        strings.Builder
		fetchErr error
	)

	c.OnHTML("body", func(h *colly.HTMLElement) {
		for _, sel := range skipSelectors {
			h.DOM.Find(sel).Remove()
		}
		b.WriteString(h.DOM.Text())
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(pageURL); err != nil {
		return "", fmt.Errorf("failed to fetch page %s: %w", pageURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return "", fmt.Errorf("failed to fetch page %s: %w", pageURL, fetchErr)
	}

	content := normalizeWhitespace(b.String())
	if content == "" {
		return "", fmt.Errorf("no extractable content at %s", pageURL)
	}

	runes := []rune(content)
	if len(runes) > maxContentRunes {
		content = string(runes[:maxContentRunes])
	}

	return content, nil
}

// normalizeWhitespace は連続する空白・空行を畳み込みます
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}

// インターフェース実装の確認
var _ gatherer.Extractor = (*Extractor)(nil)

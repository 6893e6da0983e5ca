package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jinford/prep-scout/internal/core/gatherer"
	"github.com/jinford/prep-scout/pkg/retry"
)

const (
	// DefaultBaseURL はTavily Search APIのエンドポイント
	DefaultBaseURL = "https://api.tavily.com"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 30 * time.Second

	// DefaultSearchDepth はデフォルトの探索深度
	DefaultSearchDepth = "basic"

	// maxResponseBytes はレスポンスボディの読み取り上限
	maxResponseBytes = 4 << 20
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	// 検索サービスが使えないギャザラーはキャッシュのみで動作を継続します
	ErrAPIKeyNotSet = errors.New("Tavily API key not set: please set TAVILY_API_KEY environment variable")
)

// Client はTavily Search APIを使用した検索クライアント実装
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
}

// Option はClientのオプション設定
type Option func(*Client)

// WithBaseURL はAPIエンドポイントを設定します（テスト用）
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithTimeout はAPI呼び出しのタイムアウトを設定します
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRetryPolicy はリトライポリシーを設定します
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// NewClient はAPIキーを指定してClientを作成する
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		policy:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// searchRequestBody はTavily Search APIのリクエストボディです
type searchRequestBody struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

// searchResponseBody はTavily Search APIのレスポンスボディです
type searchResponseBody struct {
	Results []struct {
		URL     string  `json:"url"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search はTavily Search APIで検索を実行します
// レート制限とサーバ側エラーはリトライポリシーに従って再試行します
func (c *Client) Search(ctx context.Context, req gatherer.SearchRequest) ([]gatherer.SearchResult, error) {
	depth := req.SearchDepth
	if depth == "" {
		depth = DefaultSearchDepth
	}

	body, err := json.Marshal(searchRequestBody{
		Query:          req.Query,
		SearchDepth:    depth,
		MaxResults:     req.MaxResults,
		IncludeDomains: req.IncludeDomains,
		ExcludeDomains: req.ExcludeDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	resp, err := retry.Do(ctx, c.policy, isTransientError, func(ctx context.Context) (*searchResponseBody, error) {
		return c.doSearch(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("Tavily API call failed: %w", err)
	}

	results := make([]gatherer.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, gatherer.SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	return results, nil
}

func (c *Client) doSearch(ctx context.Context, body []byte) (*searchResponseBody, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &statusError{code: httpResp.StatusCode, body: string(raw)}
	}

	var parsed searchResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return &parsed, nil
}

// statusError は2xx以外のHTTPステータスを表すエラーです
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// isTransientError はリトライで回復しうるエラーかどうかを判定する
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}

	return retry.IsNetworkError(err)
}

// インターフェース実装の確認
var _ gatherer.SearchClient = (*Client)(nil)

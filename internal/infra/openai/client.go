package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/prep-scout/internal/core/research"
	"github.com/jinford/prep-scout/pkg/retry"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	// シンセシスは必須フェーズであるため、キー未設定はプロセス起動時に検出します
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")
)

// Client はOpenAI APIを使用したコンプリーションクライアント実装
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
	policy  retry.Policy
}

// Option はClientのオプション設定
type Option func(*Client)

// WithModel はモデルを設定します
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout はAPI呼び出しのタイムアウトを設定します
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
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
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   DefaultModel,
		timeout: DefaultTimeout,
		policy:  retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Complete はChatCompletion APIを1回呼び出します
// レート制限と一時的な障害はリトライポリシーに従ってバックオフ付きで再試行します
func (c *Client) Complete(ctx context.Context, req research.CompletionRequest) (research.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
	}

	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, openai.UserMessage(req.User))

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	completion, err := retry.Do(ctx, c.policy, isTransientError, func(ctx context.Context) (*openai.ChatCompletion, error) {
		return c.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return research.CompletionResponse{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return research.CompletionResponse{}, fmt.Errorf("no completion choices returned")
	}

	return research.CompletionResponse{
		Content:    completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
		Model:      string(completion.Model),
	}, nil
}

// isTransientError はリトライで回復しうるエラーかどうかを判定する
// レート制限(429)とサーバ側エラー(5xx)、ネットワーク断が対象です
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return retry.IsNetworkError(err)
}

// インターフェース実装の確認
var _ research.CompletionClient = (*Client)(nil)

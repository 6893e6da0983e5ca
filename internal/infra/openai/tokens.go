package openai

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/prep-scout/internal/core/research"
)

// fallbackEncoding はモデル名から符号化を解決できない場合に使う符号化
const fallbackEncoding = "cl100k_base"

// TokenCounter はtiktokenを使用したトークンカウンタ実装
// プロンプトのソースごとのトークン予算の計測に使います
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter はモデルに対応するトークンカウンタを作成します
// 未知のモデルは既定の符号化にフォールバックします
func NewTokenCounter(model string) (*TokenCounter, error) {
	encoder, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoder, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load token encoding: %w", err)
		}
	}

	return &TokenCounter{encoder: encoder}, nil
}

// Count はテキストのトークン数を返します
func (t *TokenCounter) Count(text string) int {
	return len(t.encoder.Encode(text, nil, nil))
}

// インターフェース実装の確認
var _ research.TokenCounter = (*TokenCounter)(nil)

package models

import (
	"time"

	"github.com/google/uuid"
)

// CacheEntry はコンテンツ再利用キャッシュの1エントリを表します
// 過去のジョブで取得済みのソースドキュメントを属性マッチで再利用します
type CacheEntry struct {
	ID     uuid.UUID `json:"id"`
	URL    string    `json:"url"`
	Domain string    `json:"domain"`

	// 取得時のリサーチ対象属性
	Company string `json:"company"`
	Role    string `json:"role"`
	Region  string `json:"region,omitempty"`

	Content string  `json:"content"`
	Summary string  `json:"summary,omitempty"`
	Quality float64 `json:"quality"` // [0,1]

	ExtractedAt  time.Time  `json:"extractedAt"`
	LastReusedAt *time.Time `json:"lastReusedAt,omitempty"`
	ReuseCount   int        `json:"reuseCount"`
}

// Age はエントリの経過時間を返します
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.ExtractedAt)
}

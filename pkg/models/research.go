package models

import "time"

// SourceDocument は外部ソースから取得したドキュメント1件を表します
type SourceDocument struct {
	URL       string  `json:"url"`
	Title     string  `json:"title,omitempty"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	FromCache bool    `json:"fromCache"`
}

// CompanyResearch は企業リサーチの結果を表します
type CompanyResearch struct {
	Company    string           `json:"company"`
	Documents  []SourceDocument `json:"documents"`
	FreshFetch int              `json:"freshFetch"`
	CacheHits  int              `json:"cacheHits"`
	GatheredAt time.Time        `json:"gatheredAt"`
}

// RequirementResearch は募集要項リサーチの結果を表します
type RequirementResearch struct {
	Role       string           `json:"role"`
	Documents  []SourceDocument `json:"documents"`
	FreshFetch int              `json:"freshFetch"`
	CacheHits  int              `json:"cacheHits"`
	GatheredAt time.Time        `json:"gatheredAt"`
}

// ProfileResearch は候補者プロフィール関連リサーチの結果を表します
type ProfileResearch struct {
	Role       string           `json:"role"`
	Documents  []SourceDocument `json:"documents"`
	FreshFetch int              `json:"freshFetch"`
	CacheHits  int              `json:"cacheHits"`
	GatheredAt time.Time        `json:"gatheredAt"`
}

// GatheredArtifacts はギャザリングフェーズの結合結果です
// 各フィールドは個別に失敗しうるため、それぞれ独立してnilになりえます
type GatheredArtifacts struct {
	Company     *CompanyResearch     `json:"company,omitempty"`
	Requirement *RequirementResearch `json:"requirement,omitempty"`
	Profile     *ProfileResearch     `json:"profile,omitempty"`
}

// Empty はすべてのギャザラーが失敗したかどうかを返します
func (a *GatheredArtifacts) Empty() bool {
	return a.Company == nil && a.Requirement == nil && a.Profile == nil
}

package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/pkg/models"
)

// synthesize は収集済み素材に対して1回だけコンプリーション呼び出しを行い、
// 構造化された成果物バンドルを組み立てます
// トランスポート層の失敗のみがエラーとして返り、ジョブを失敗させます。
// 不正な形式のレスポンスは正規化とフォールバックでローカルに回復します
func (c *Coordinator) synthesize(ctx context.Context, search *models.Search, artifacts *models.GatheredArtifacts) (*models.PrepBundle, error) {
	prompt := c.buildSynthesisPrompt(search, artifacts)

	resp, err := c.completion.Complete(ctx, CompletionRequest{
		System:    synthesisSystemPrompt,
		User:      prompt,
		MaxTokens: c.cfg.SynthesisMaxTokens,
		JSONMode:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis completion call failed: %w", err)
	}

	payload, parseErr := parseSynthesisPayload(resp.Content)
	if parseErr != nil {
		// 不正なコンテンツは致命的ではない。型付きの空フォールバックで継続する
		c.logger.Warn("synthesis response unparseable, using fallback payload",
			"searchID", search.ID, "error", parseErr)
		payload = fallbackSynthesisPayload()
	}

	now := time.Now()
	model := resp.Model
	tokens := resp.TokensUsed

	bundle := &models.PrepBundle{
		SearchID:            search.ID,
		CompanyResearch:     artifacts.Company,
		RequirementResearch: artifacts.Requirement,
		ProfileResearch:     artifacts.Profile,
		SynthesisModel:      &model,
		SynthesisTokens:     &tokens,
		SynthesizedAt:       &now,
		ComparisonAnalysis:  &payload.ComparisonAnalysis,
		Guidance:            &payload.Guidance,
	}

	for i, stage := range payload.Stages {
		bundle.Stages = append(bundle.Stages, models.InterviewStage{
			ID:              uuid.New(),
			SearchID:        search.ID,
			Ordinal:         i + 1,
			Name:            stage.Name,
			Description:     stage.Description,
			Format:          stage.Format,
			DurationMinutes: stage.DurationMinutes,
		})
	}

	for _, q := range payload.Questions {
		bundle.Questions = append(bundle.Questions, models.InterviewQuestion{
			ID:       uuid.New(),
			SearchID: search.ID,
			Category: q.Category,
			Question: q.Question,
			Guidance: q.Guidance,
		})
	}

	return bundle, nil
}

// parseSynthesisPayload はコンプリーションのレスポンスを構造化データとして解析します
// 解析に失敗した場合、既知のラッピングパターンを除去して1回だけ再解析します
func parseSynthesisPayload(content string) (*synthesisPayload, error) {
	var payload synthesisPayload

	if err := json.Unmarshal([]byte(content), &payload); err == nil {
		return &payload, nil
	}

	normalized := stripCodeFences(content)
	if err := json.Unmarshal([]byte(normalized), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse synthesis response: %w", err)
	}

	return &payload, nil
}

// stripCodeFences はMarkdownのコードフェンスで包まれたJSONを取り出します
// コンプリーションサービスがフェンス付きで返すのは既知の外部契約上のエッジケースです
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)

	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}

// fallbackSynthesisPayload は明示的に空だが有効な構造を返します
// nilではなく型付きのゼロ値で、後続の永続化はそのまま進行します
func fallbackSynthesisPayload() *synthesisPayload {
	return &synthesisPayload{
		ComparisonAnalysis: models.ComparisonAnalysis{
			Strengths:     []string{},
			Gaps:          []string{},
			TalkingPoints: []string{},
		},
		Stages:    []synthesisStage{},
		Questions: []synthesisQuestion{},
		Guidance: models.PrepGuidance{
			Priorities: []string{},
			Resources:  []string{},
		},
	}
}

package research

import (
	"fmt"
	"strings"

	"github.com/jinford/prep-scout/pkg/models"
)

// synthesisSystemPrompt はシンセシス呼び出しのシステムプロンプトです
const synthesisSystemPrompt = `You are an interview preparation analyst. Using the provided research
material, produce a single JSON object with exactly these keys:
- "comparison_analysis": {"fit_summary": string, "strengths": [string], "gaps": [string], "talking_points": [string]}
- "interview_stages": [{"name": string, "description": string, "format": string, "duration_minutes": number}]
- "questions": [{"category": string, "question": string, "guidance": string}]
- "prep_guidance": {"summary": string, "priorities": [string], "resources": [string]}
Respond with JSON only. If a section cannot be derived from the material, return it empty rather than inventing facts.`

// buildSynthesisPrompt は収集済みの全素材を1つのユーザープロンプトに組み立てます
// コンプリーションサービスの入力上限を守るため、ソースごとにトークン予算を適用します
func (c *Coordinator) buildSynthesisPrompt(search *models.Search, artifacts *models.GatheredArtifacts) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Target: %s — %s", search.Company, search.Role)
	if search.Region != "" {
		fmt.Fprintf(&b, " (%s)", search.Region)
	}
	b.WriteString("\n\n")

	writeSection := func(title string, docs []models.SourceDocument) {
		fmt.Fprintf(&b, "## %s\n", title)
		if len(docs) == 0 {
			b.WriteString("(no material gathered)\n\n")
			return
		}
		var section strings.Builder
		for _, doc := range docs {
			fmt.Fprintf(&section, "### %s\n%s\n\n", doc.URL, doc.Content)
		}
		b.WriteString(c.truncateToBudget(section.String(), c.cfg.PerSourceTokenBudget))
		b.WriteString("\n\n")
	}

	if artifacts.Company != nil {
		writeSection("Company research", artifacts.Company.Documents)
	} else {
		writeSection("Company research", nil)
	}
	if artifacts.Requirement != nil {
		writeSection("Job requirement research", artifacts.Requirement.Documents)
	} else {
		writeSection("Job requirement research", nil)
	}
	if artifacts.Profile != nil {
		writeSection("Candidate profile research", artifacts.Profile.Documents)
	} else {
		writeSection("Candidate profile research", nil)
	}

	return b.String()
}

// truncateToBudget はテキストをトークン予算内に切り詰めます
// カウンタが未設定の場合は文字数ベースの推定値を使います
func (c *Coordinator) truncateToBudget(text string, budget int) string {
	if budget <= 0 {
		return text
	}

	count := c.countTokens(text)
	if count <= budget {
		return text
	}

	// トークン数は文字数にほぼ比例するため、比率で切り詰めて収束させる
	runes := []rune(text)
	for count > budget && len(runes) > 0 {
		keep := len(runes) * budget / count
		if keep >= len(runes) {
			keep = len(runes) - 1
		}
		runes = runes[:keep]
		count = c.countTokens(string(runes))
	}

	return string(runes) + "\n(truncated)"
}

func (c *Coordinator) countTokens(text string) int {
	if c.tokens != nil {
		return c.tokens.Count(text)
	}
	return estimateTokens(text)
}

// estimateTokens はテキストの推定トークン数を返します
// 正確にカウントせず、文字数を基準にした大まかな推定値です
func estimateTokens(text string) int {
	return len([]rune(text)) / 3
}

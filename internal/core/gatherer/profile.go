package gatherer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/internal/core/reuse"
	"github.com/jinford/prep-scout/pkg/models"
)

// ProfileGatherer は候補者プロフィール観点のリサーチを担当します
// 対象ロールで期待されるスキルセットや経歴の傾向を集めます
type ProfileGatherer struct {
	c *collector
}

// NewProfileGatherer は新しいProfileGathererを作成します
func NewProfileGatherer(search SearchClient, extractor Extractor, cache *reuse.Service, cfg Config, logger *slog.Logger) *ProfileGatherer {
	return &ProfileGatherer{
		c: &collector{search: search, extractor: extractor, cache: cache, cfg: cfg, logger: logger},
	}
}

// Gather はプロフィールリサーチを実行します
// いかなる失敗もこの境界を越えず、nilとして返ります
func (g *ProfileGatherer) Gather(ctx context.Context, searchID uuid.UUID, subject models.Subject) *models.ProfileResearch {
	ctx, cancel := context.WithTimeout(ctx, g.c.cfg.Timeout)
	defer cancel()

	query := fmt.Sprintf("%s candidate profile skills experience expectations", subject.Role)
	if subject.Region != "" {
		query = fmt.Sprintf("%s %s", query, subject.Region)
	}

	result, err := g.c.collect(ctx, searchID, subject, "profile", query)
	if err != nil {
		g.c.logger.Warn("profile gatherer failed", "searchID", searchID, "error", err)
		return nil
	}

	return &models.ProfileResearch{
		Role:       subject.Role,
		Documents:  result.Documents,
		FreshFetch: result.FreshFetch,
		CacheHits:  result.CacheHits,
		GatheredAt: time.Now(),
	}
}

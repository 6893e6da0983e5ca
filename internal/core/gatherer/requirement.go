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

// RequirementGatherer は募集要項・求人票に関するリサーチを担当します
type RequirementGatherer struct {
	c *collector
}

// NewRequirementGatherer は新しいRequirementGathererを作成します
func NewRequirementGatherer(search SearchClient, extractor Extractor, cache *reuse.Service, cfg Config, logger *slog.Logger) *RequirementGatherer {
	return &RequirementGatherer{
		c: &collector{search: search, extractor: extractor, cache: cache, cfg: cfg, logger: logger},
	}
}

// Gather は募集要項リサーチを実行します
// いかなる失敗もこの境界を越えず、nilとして返ります
func (g *RequirementGatherer) Gather(ctx context.Context, searchID uuid.UUID, subject models.Subject) *models.RequirementResearch {
	ctx, cancel := context.WithTimeout(ctx, g.c.cfg.Timeout)
	defer cancel()

	query := fmt.Sprintf("%s %s job description requirements responsibilities", subject.Company, subject.Role)

	result, err := g.c.collect(ctx, searchID, subject, "requirement", query)
	if err != nil {
		g.c.logger.Warn("requirement gatherer failed", "searchID", searchID, "error", err)
		return nil
	}

	return &models.RequirementResearch{
		Role:       subject.Role,
		Documents:  result.Documents,
		FreshFetch: result.FreshFetch,
		CacheHits:  result.CacheHits,
		GatheredAt: time.Now(),
	}
}

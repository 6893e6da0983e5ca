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

// CompanyGatherer は企業そのものに関するリサーチを担当します
// 面接文化・事業内容・直近のニュースなどを集めます
type CompanyGatherer struct {
	c *collector
}

// NewCompanyGatherer は新しいCompanyGathererを作成します
func NewCompanyGatherer(search SearchClient, extractor Extractor, cache *reuse.Service, cfg Config, logger *slog.Logger) *CompanyGatherer {
	return &CompanyGatherer{
		c: &collector{search: search, extractor: extractor, cache: cache, cfg: cfg, logger: logger},
	}
}

// Gather は企業リサーチを実行します
// いかなる失敗もこの境界を越えず、nilとして返ります
func (g *CompanyGatherer) Gather(ctx context.Context, searchID uuid.UUID, subject models.Subject) *models.CompanyResearch {
	ctx, cancel := context.WithTimeout(ctx, g.c.cfg.Timeout)
	defer cancel()

	query := fmt.Sprintf("%s company overview culture interview process", subject.Company)
	if subject.Region != "" {
		query = fmt.Sprintf("%s %s", query, subject.Region)
	}

	result, err := g.c.collect(ctx, searchID, subject, "company", query)
	if err != nil {
		g.c.logger.Warn("company gatherer failed", "searchID", searchID, "error", err)
		return nil
	}

	return &models.CompanyResearch{
		Company:    subject.Company,
		Documents:  result.Documents,
		FreshFetch: result.FreshFetch,
		CacheHits:  result.CacheHits,
		GatheredAt: time.Now(),
	}
}

package research

import (
	"context"
	"fmt"

	"github.com/jinford/prep-scout/pkg/models"
)

// checkpoint は永続化チェックポイント1つを独立したタイムアウトガード付きで実行します
// ハングやエラーは警告ログに変換され、呼び出し元には成否のみが返ります
func (c *Coordinator) checkpoint(ctx context.Context, search *models.Search, name string, fn func(ctx context.Context) error) bool {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CheckpointTimeout)
	defer cancel()

	if err := fn(cctx); err != nil {
		c.logger.Warn("persistence checkpoint failed",
			"searchID", search.ID, "checkpoint", name, "error", err)
		return false
	}

	c.logger.Debug("persistence checkpoint done", "searchID", search.ID, "checkpoint", name)
	return true
}

// persistRaw はチェックポイント1: ギャザラーの生出力を保存します
// 失敗してもジョブは継続します（部分的な成果を失わないためのベストエフォート）
func (c *Coordinator) persistRaw(ctx context.Context, search *models.Search, artifacts *models.GatheredArtifacts) bool {
	return c.checkpoint(ctx, search, "raw_artifacts", func(ctx context.Context) error {
		return c.bundles.UpsertRaw(ctx, search.ID, artifacts)
	})
}

// persistSynthesis はチェックポイント2〜4: シンセシス成果物と派生行を保存します
// 各チェックポイントは独立にソフトフェイルします
func (c *Coordinator) persistSynthesis(ctx context.Context, search *models.Search, bundle *models.PrepBundle) {
	c.checkpoint(ctx, search, "synthesis_outputs", func(ctx context.Context) error {
		return c.bundles.UpdateSynthesis(ctx, search.ID, bundle)
	})

	c.checkpoint(ctx, search, "interview_stages", func(ctx context.Context) error {
		if len(bundle.Stages) == 0 {
			return nil
		}
		return c.bundles.InsertStages(ctx, search.ID, bundle.Stages)
	})

	c.checkpoint(ctx, search, "interview_questions", func(ctx context.Context) error {
		if len(bundle.Questions) == 0 {
			return nil
		}
		return c.bundles.InsertQuestions(ctx, search.ID, bundle.Questions)
	})
}

// finalize はチェックポイント5: 終端ステータスの書き込みです
// クライアントから見える完了シグナルであるため、唯一失敗が呼び出し元に伝播します
func (c *Coordinator) finalize(ctx context.Context, search *models.Search) error {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CheckpointTimeout)
	defer cancel()

	if err := c.tracker.MarkCompleted(cctx, search.ID); err != nil {
		return fmt.Errorf("failed to finalize search status: %w", err)
	}
	return nil
}

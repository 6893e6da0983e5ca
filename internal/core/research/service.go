package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/pkg/models"
)

// Coordinator は1つのリサーチジョブを開始から終端まで駆動します
// gather → persist-raw → synthesize → persist-results → finalize の順序は
// 厳密に逐次で、各フェーズ境界で進捗を更新します
type Coordinator struct {
	searches SearchRepository
	bundles  BundleRepository
	tracker  *Tracker

	company     CompanyGatherer
	requirement RequirementGatherer
	profile     ProfileGatherer

	completion CompletionClient
	tokens     TokenCounter

	cfg    Config
	logger *slog.Logger
}

// NewCoordinator は新しいCoordinatorを作成します
func NewCoordinator(
	searches SearchRepository,
	bundles BundleRepository,
	tracker *Tracker,
	company CompanyGatherer,
	requirement RequirementGatherer,
	profile ProfileGatherer,
	completion CompletionClient,
	tokens TokenCounter,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		searches:    searches,
		bundles:     bundles,
		tracker:     tracker,
		company:     company,
		requirement: requirement,
		profile:     profile,
		completion:  completion,
		tokens:      tokens,
		cfg:         cfg,
		logger:      logger,
	}
}

// StartSearch は新しいリサーチジョブをpendingで作成します
func (c *Coordinator) StartSearch(ctx context.Context, userID uuid.UUID, subject models.Subject) (*models.Search, error) {
	if subject.Company == "" || subject.Role == "" {
		return nil, fmt.Errorf("company and role are required")
	}

	search := &models.Search{
		ID:           uuid.New(),
		UserID:       userID,
		Subject:      subject,
		Status:       models.SearchStatusPending,
		ProgressStep: "pending",
	}

	if err := c.searches.Create(ctx, search); err != nil {
		return nil, fmt.Errorf("failed to create search: %w", err)
	}

	c.logger.Info("search created",
		"searchID", search.ID, "company", subject.Company, "role", subject.Role)

	return search, nil
}

// GetProgress は進捗ポーリング用の読み取りパスです
func (c *Coordinator) GetProgress(ctx context.Context, searchID uuid.UUID) (*models.Search, bool, bool, error) {
	search, err := c.searches.GetByID(ctx, searchID)
	if err != nil {
		return nil, false, false, err
	}
	return search, c.tracker.IsStalled(search), c.tracker.CanRetry(search), nil
}

// Run はジョブを開始から終端まで駆動します
// コーディネータより下の失敗はnil/フォールバックに変換され、ジョブレベルの
// 終端失敗だけがfailedステータスとメッセージとして外部に現れます
func (c *Coordinator) Run(ctx context.Context, search *models.Search) error {
	started := time.Now()
	c.logger.Info("research run started",
		"searchID", search.ID, "company", search.Company, "role", search.Role)

	if err := c.tracker.Advance(ctx, search.ID, StepInit); err != nil {
		// 最初の進捗更新すら書けないならジョブは進められない
		c.failSearch(ctx, search, "failed to initialize research job", StepInit)
		return err
	}

	// フェーズ1: ギャザリング（並行、settle-all、エラーを返さない）
	artifacts := c.gatherWithProgress(ctx, search)

	c.advance(ctx, search.ID, StepGatherComplete)

	// フェーズ2: 生データの永続化（ベストエフォート）
	c.advance(ctx, search.ID, StepPersistRaw)
	c.persistRaw(ctx, search, artifacts)

	// フェーズ3: シンセシス（唯一成功必須の呼び出し）
	c.advance(ctx, search.ID, StepSynthesisStart)

	bundle, err := c.synthesize(ctx, search, artifacts)
	if err != nil {
		c.failSearch(ctx, search, fmt.Sprintf("synthesis failed: %v", err), StepSynthesisStart)
		return err
	}

	c.advance(ctx, search.ID, StepSynthesisComplete)

	// フェーズ4: シンセシス成果物の永続化（チェックポイント2〜4、ベストエフォート）
	c.advance(ctx, search.ID, StepPersistStart)
	c.persistSynthesis(ctx, search, bundle)
	c.advance(ctx, search.ID, StepPersistComplete)

	// フェーズ5: 終端ステータス書き込み（チェックポイント5、失敗は伝播する）
	if err := c.finalize(ctx, search); err != nil {
		return err
	}

	c.logger.Info("research run completed",
		"searchID", search.ID, "duration", time.Since(started))

	return nil
}

// gatherWithProgress はギャザリングフェーズを進捗更新付きで実行します
// 各ギャザラーのステップは起動前に順番に刻むことで、観測されるパーセンテージの
// 単調増加を保ちます
func (c *Coordinator) gatherWithProgress(ctx context.Context, search *models.Search) *models.GatheredArtifacts {
	c.advance(ctx, search.ID, StepGatherStart)
	c.advance(ctx, search.ID, StepGatherCompany)
	c.advance(ctx, search.ID, StepGatherRequirements)
	c.advance(ctx, search.ID, StepGatherProfile)

	return c.gather(ctx, search)
}

// advance は中間ステップの進捗を進めます
// 進捗は観測用であり実作業のチェックポイントとは独立しているため、
// 更新の失敗は警告ログに落としてジョブを継続します
func (c *Coordinator) advance(ctx context.Context, searchID uuid.UUID, step Step) {
	if err := c.tracker.Advance(ctx, searchID, step); err != nil {
		c.logger.Warn("progress update failed, continuing",
			"searchID", searchID, "step", step, "error", err)
	}
}

// failSearch はジョブを失敗させます。エラーメッセージは必ず非空です
func (c *Coordinator) failSearch(ctx context.Context, search *models.Search, message string, step Step) {
	if message == "" {
		message = "research job failed"
	}
	if err := c.tracker.MarkFailed(ctx, search.ID, message, step); err != nil {
		c.logger.Error("failed to record search failure", "searchID", search.ID, "error", err)
	}
}

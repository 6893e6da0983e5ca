package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/pkg/models"
)

// Step は進捗ステップの名前です
type Step string

const (
	StepInit               Step = "init"
	StepGatherStart        Step = "gather_start"
	StepGatherCompany      Step = "gather_company"
	StepGatherRequirements Step = "gather_requirements"
	StepGatherProfile      Step = "gather_profile"
	StepGatherComplete     Step = "gather_complete"
	StepPersistRaw         Step = "persist_raw"
	StepSynthesisStart     Step = "synthesis_start"
	StepSynthesisComplete  Step = "synthesis_complete"
	StepPersistStart       Step = "persist_start"
	StepPersistComplete    Step = "persist_complete"
	StepCompleted          Step = "completed"
)

// stepPercentages はステップごとの固定パーセンテージです
// 定義順に単調増加するよう構成されています
var stepPercentages = map[Step]int{
	StepInit:               5,
	StepGatherStart:        15,
	StepGatherCompany:      20,
	StepGatherRequirements: 25,
	StepGatherProfile:      30,
	StepGatherComplete:     35,
	StepPersistRaw:         45,
	StepSynthesisStart:     55,
	StepSynthesisComplete:  75,
	StepPersistStart:       85,
	StepPersistComplete:    95,
	StepCompleted:          100,
}

// Percentage はステップに対応するパーセンテージを返します
func (s Step) Percentage() int {
	if p, ok := stepPercentages[s]; ok {
		return p
	}
	return 0
}

const (
	// DefaultStallThreshold は進捗更新の途絶をストールとみなす閾値
	DefaultStallThreshold = 30 * time.Second

	// DefaultEscalationThreshold はクライアントにリトライを提示する閾値
	DefaultEscalationThreshold = 45 * time.Second
)

// Tracker はジョブの進捗レコードを更新し、ストール検知を提供します
// 1つのSearchを更新するのは、それを駆動するコーディネータ1つだけです
type Tracker struct {
	repo                SearchRepository
	stallThreshold      time.Duration
	escalationThreshold time.Duration
	logger              *slog.Logger
	now                 func() time.Time
}

// TrackerOption はTrackerのオプション設定
type TrackerOption func(*Tracker)

// WithStallThresholds はストール検知とエスカレーションの閾値を設定します
func WithStallThresholds(stall, escalation time.Duration) TrackerOption {
	return func(t *Tracker) {
		if stall > 0 {
			t.stallThreshold = stall
		}
		if escalation > 0 {
			t.escalationThreshold = escalation
		}
	}
}

// WithTrackerLogger はロガーを設定します
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithTrackerClock は現在時刻の取得関数を差し替えます（テスト用）
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker は新しいTrackerを作成します
func NewTracker(repo SearchRepository, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		repo:                repo,
		stallThreshold:      DefaultStallThreshold,
		escalationThreshold: DefaultEscalationThreshold,
		logger:              slog.Default(),
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Advance はステータス・ステップ・パーセンテージ・タイムスタンプを1回の原子的更新で進めます
// 終端ステータスに到達済みのジョブへの更新は無視されます（terminal is sticky）
func (t *Tracker) Advance(ctx context.Context, searchID uuid.UUID, step Step) error {
	return t.AdvanceWithPercentage(ctx, searchID, step, step.Percentage())
}

// AdvanceWithPercentage はパーセンテージを明示して進捗を進めます
func (t *Tracker) AdvanceWithPercentage(ctx context.Context, searchID uuid.UUID, step Step, percentage int) error {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	status := models.SearchStatusProcessing
	if step == StepCompleted {
		status = models.SearchStatusCompleted
	}

	err := t.repo.UpdateProgress(ctx, searchID, status, string(step), percentage)
	if err != nil {
		if errors.Is(err, ErrTerminalState) {
			t.logger.Warn("progress update after terminal state ignored",
				"searchID", searchID, "step", step)
			return nil
		}
		return fmt.Errorf("failed to advance progress: %w", err)
	}

	t.logger.Info("progress advanced", "searchID", searchID, "step", step, "percentage", percentage)
	return nil
}

// MarkCompleted はジョブを完了にします
func (t *Tracker) MarkCompleted(ctx context.Context, searchID uuid.UUID) error {
	err := t.repo.MarkCompleted(ctx, searchID, string(StepCompleted))
	if err != nil {
		if errors.Is(err, ErrTerminalState) {
			t.logger.Warn("completion after terminal state ignored", "searchID", searchID)
			return nil
		}
		return fmt.Errorf("failed to mark search completed: %w", err)
	}

	t.logger.Info("search completed", "searchID", searchID)
	return nil
}

// MarkFailed はジョブを失敗にし、エラーメッセージを記録します
// パーセンテージは到達済みの値が維持されます
func (t *Tracker) MarkFailed(ctx context.Context, searchID uuid.UUID, message string, step Step) error {
	err := t.repo.MarkFailed(ctx, searchID, message, string(step))
	if err != nil {
		if errors.Is(err, ErrTerminalState) {
			t.logger.Warn("failure mark after terminal state ignored", "searchID", searchID)
			return nil
		}
		return fmt.Errorf("failed to mark search failed: %w", err)
	}

	t.logger.Info("search failed", "searchID", searchID, "step", step, "message", message)
	return nil
}

// IsStalled はprocessingのまま進捗更新が閾値を超えて途絶しているかを返します
func (t *Tracker) IsStalled(search *models.Search) bool {
	if search.Status != models.SearchStatusProcessing {
		return false
	}
	return t.now().Sub(search.UpdatedAt) > t.stallThreshold
}

// CanRetry はクライアントにリトライを提示すべきかを返します
func (t *Tracker) CanRetry(search *models.Search) bool {
	if search.Status == models.SearchStatusFailed {
		return true
	}
	if search.Status != models.SearchStatusProcessing {
		return false
	}
	return t.now().Sub(search.UpdatedAt) > t.escalationThreshold
}

// StallThreshold はストール検知の閾値を返します
func (t *Tracker) StallThreshold() time.Duration {
	return t.stallThreshold
}

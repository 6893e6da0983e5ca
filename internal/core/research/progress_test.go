package research

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/prep-scout/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSearch(t *testing.T, repo *memSearchRepo) *models.Search {
	t.Helper()

	search := &models.Search{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Subject: testSubject(),
		Status:  models.SearchStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), search))
	return search
}

func TestTracker_Advance(t *testing.T) {
	ctx := context.Background()
	repo := newMemSearchRepo()
	tracker := NewTracker(repo)
	search := seedSearch(t, repo)

	err := tracker.Advance(ctx, search.ID, StepGatherStart)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, search.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SearchStatusProcessing, got.Status)
	assert.Equal(t, string(StepGatherStart), got.ProgressStep)
	assert.Equal(t, 15, got.ProgressPercentage)
	assert.NotNil(t, got.StartedAt)
}

func TestTracker_AdvanceWithPercentage_Clamped(t *testing.T) {
	ctx := context.Background()
	repo := newMemSearchRepo()
	tracker := NewTracker(repo)
	search := seedSearch(t, repo)

	require.NoError(t, tracker.AdvanceWithPercentage(ctx, search.ID, StepInit, 150))

	got, err := repo.GetByID(ctx, search.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.ProgressPercentage)

	require.NoError(t, tracker.AdvanceWithPercentage(ctx, search.ID, StepInit, -10))

	got, err = repo.GetByID(ctx, search.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ProgressPercentage)
}

func TestTracker_TerminalStateIsSticky(t *testing.T) {
	ctx := context.Background()
	repo := newMemSearchRepo()
	tracker := NewTracker(repo)
	search := seedSearch(t, repo)

	require.NoError(t, tracker.Advance(ctx, search.ID, StepSynthesisStart))
	require.NoError(t, tracker.MarkFailed(ctx, search.ID, "synthesis failed: connection refused", StepSynthesisStart))

	// 終端到達後の進捗更新・完了・再失敗はすべて無視され、エラーにもならない
	require.NoError(t, tracker.Advance(ctx, search.ID, StepSynthesisComplete))
	require.NoError(t, tracker.MarkCompleted(ctx, search.ID))
	require.NoError(t, tracker.MarkFailed(ctx, search.ID, "second failure", StepPersistStart))

	got, err := repo.GetByID(ctx, search.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SearchStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "synthesis failed: connection refused", *got.ErrorMessage)
	// 失敗時のパーセンテージは到達済みの値が維持される
	assert.Equal(t, StepSynthesisStart.Percentage(), got.ProgressPercentage)
}

func TestTracker_MarkCompleted(t *testing.T) {
	ctx := context.Background()
	repo := newMemSearchRepo()
	tracker := NewTracker(repo)
	search := seedSearch(t, repo)

	require.NoError(t, tracker.Advance(ctx, search.ID, StepPersistComplete))
	require.NoError(t, tracker.MarkCompleted(ctx, search.ID))

	got, err := repo.GetByID(ctx, search.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SearchStatusCompleted, got.Status)
	assert.Equal(t, 100, got.ProgressPercentage)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)
}

func TestTracker_IsStalled(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base

	repo := newMemSearchRepo()
	tracker := NewTracker(repo,
		WithTrackerClock(func() time.Time { return now }),
		WithStallThresholds(30*time.Second, 45*time.Second),
	)

	search := &models.Search{
		Status:    models.SearchStatusProcessing,
		UpdatedAt: base,
	}

	// 閾値ちょうどはまだストールではない
	now = base.Add(30 * time.Second)
	assert.False(t, tracker.IsStalled(search))
	assert.False(t, tracker.CanRetry(search))

	// 閾値を超えたらストール、エスカレーション閾値まではリトライ提示なし
	now = base.Add(31 * time.Second)
	assert.True(t, tracker.IsStalled(search))
	assert.False(t, tracker.CanRetry(search))

	now = base.Add(46 * time.Second)
	assert.True(t, tracker.IsStalled(search))
	assert.True(t, tracker.CanRetry(search))
}

func TestTracker_IsStalled_TerminalStates(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(newMemSearchRepo(),
		WithTrackerClock(func() time.Time { return base.Add(time.Hour) }),
	)

	completed := &models.Search{Status: models.SearchStatusCompleted, UpdatedAt: base}
	assert.False(t, tracker.IsStalled(completed))
	assert.False(t, tracker.CanRetry(completed))

	// failedは経過時間に関係なく常にリトライ可能
	failed := &models.Search{Status: models.SearchStatusFailed, UpdatedAt: base}
	assert.False(t, tracker.IsStalled(failed))
	assert.True(t, tracker.CanRetry(failed))
}

func TestStep_Percentage_Monotonic(t *testing.T) {
	steps := []Step{
		StepInit,
		StepGatherStart,
		StepGatherCompany,
		StepGatherRequirements,
		StepGatherProfile,
		StepGatherComplete,
		StepPersistRaw,
		StepSynthesisStart,
		StepSynthesisComplete,
		StepPersistStart,
		StepPersistComplete,
		StepCompleted,
	}

	prev := -1
	for _, step := range steps {
		p := step.Percentage()
		assert.Greater(t, p, prev, "step %s", step)
		prev = p
	}
	assert.Equal(t, 100, StepCompleted.Percentage())
}

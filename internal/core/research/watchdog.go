package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Watchdog は放置されたジョブを定期的に掃除します
// プロセス再起動などで進捗更新が途絶えたprocessing行を、猶予時間経過後に
// failedへ倒します
type Watchdog struct {
	searches     SearchRepository
	tracker      *Tracker
	abandonAfter time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewWatchdog は新しいWatchdogを作成します
func NewWatchdog(searches SearchRepository, tracker *Tracker, abandonAfter time.Duration, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		searches:     searches,
		tracker:      tracker,
		abandonAfter: abandonAfter,
		logger:       logger,
		now:          time.Now,
	}
}

// Sweep は猶予時間を超えて進捗更新のないprocessingジョブを失敗として確定します
func (w *Watchdog) Sweep(ctx context.Context) error {
	cutoff := w.now().Add(-w.abandonAfter)

	stalled, err := w.searches.ListStalledSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stalled searches: %w", err)
	}
	if len(stalled) == 0 {
		return nil
	}

	for _, search := range stalled {
		message := fmt.Sprintf("research job abandoned: no progress since %s", search.UpdatedAt.Format(time.RFC3339))
		if err := w.tracker.MarkFailed(ctx, search.ID, message, Step(search.ProgressStep)); err != nil {
			w.logger.Error("failed to abandon stalled search", "searchID", search.ID, "error", err)
			continue
		}
		w.logger.Warn("stalled search abandoned",
			"searchID", search.ID, "lastStep", search.ProgressStep, "lastUpdate", search.UpdatedAt)
	}

	return nil
}

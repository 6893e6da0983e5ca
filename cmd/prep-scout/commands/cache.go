package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// CacheStatsAction はコンテンツ再利用キャッシュの統計を表示する
func CacheStatsAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	stats, err := app.Cache.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("entries:      %d\n", stats.TotalEntries)
	fmt.Printf("companies:    %d\n", stats.Companies)
	fmt.Printf("total reuses: %d\n", stats.TotalReuses)
	fmt.Printf("avg quality:  %.2f\n", stats.AvgQuality)

	return nil
}

// WatchdogSweepAction は放置ジョブの掃除を1回だけ実行する
func WatchdogSweepAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Watchdog.Sweep(ctx)
}

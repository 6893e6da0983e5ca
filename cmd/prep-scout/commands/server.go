package commands

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"github.com/jinford/prep-scout/internal/httpapi"
)

// watchdogSchedule はストール掃除の実行間隔（毎分）
const watchdogSchedule = "* * * * *"

// ServerStartAction はHTTPサーバを起動する
// あわせて放置ジョブを掃除するウォッチドッグを定期実行する
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	port := int(cmd.Int("port"))
	if port == 0 {
		port = app.Config.HTTP.Port
	}

	// ストールしたまま放置されたジョブの定期掃除
	c := cron.New()
	if _, err := c.AddFunc(watchdogSchedule, func() {
		if err := app.Watchdog.Sweep(context.Background()); err != nil {
			app.Logger.Error("watchdog sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule watchdog: %w", err)
	}
	c.Start()
	defer c.Stop()

	server := httpapi.NewServer(app.Coordinator, app.Bundles, app.Logger)

	// シグナルでコンテキストが閉じられたらサーバを落とす
	go func() {
		<-ctx.Done()
		app.Logger.Info("shutting down http server")
		if err := server.Shutdown(); err != nil {
			app.Logger.Error("http server shutdown failed", "error", err)
		}
	}()

	return server.Listen(port)
}

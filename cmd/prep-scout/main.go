package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/prep-scout/cmd/prep-scout/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "prep-scout",
		Usage: "面接準備リサーチジョブのオーケストレーションシステム",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							envFlag,
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
							},
						},
						Action: commands.ServerStartAction,
					},
				},
			},
			{
				Name:  "research",
				Usage: "リサーチジョブ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "リサーチジョブを1件同期実行",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "company",
								Usage:    "対象の企業名",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "role",
								Usage:    "対象のロール",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "region",
								Usage: "対象のリージョン",
							},
							&cli.StringFlag{
								Name:  "user-id",
								Usage: "ユーザーID（UUID）",
							},
						},
						Action: commands.ResearchRunAction,
					},
					{
						Name:  "status",
						Usage: "ジョブの進捗を表示",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "search-id",
								Usage:    "Search ID（UUID）",
								Required: true,
							},
						},
						Action: commands.ResearchStatusAction,
					},
				},
			},
			{
				Name:  "cache",
				Usage: "コンテンツキャッシュ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "stats",
						Usage:  "キャッシュ統計を表示",
						Flags:  []cli.Flag{envFlag},
						Action: commands.CacheStatsAction,
					},
				},
			},
			{
				Name:  "watchdog",
				Usage: "放置ジョブ掃除コマンド",
				Commands: []*cli.Command{
					{
						Name:   "sweep",
						Usage:  "ストールしたジョブを1回掃除",
						Flags:  []cli.Flag{envFlag},
						Action: commands.WatchdogSweepAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/prep-scout/internal/core/gatherer"
	"github.com/jinford/prep-scout/internal/core/research"
	"github.com/jinford/prep-scout/internal/core/reuse"
	"github.com/jinford/prep-scout/internal/infra/openai"
	"github.com/jinford/prep-scout/internal/infra/postgres"
	"github.com/jinford/prep-scout/internal/infra/scrape"
	"github.com/jinford/prep-scout/internal/infra/tavily"
	"github.com/jinford/prep-scout/internal/platform/config"
	"github.com/jinford/prep-scout/internal/platform/logger"
	"github.com/jinford/prep-scout/pkg/db"
	"github.com/jinford/prep-scout/pkg/retry"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Database *db.DB
	Logger   *slog.Logger

	Searches *postgres.SearchRepository
	Bundles  *postgres.BundleRepository
	Cache    *postgres.CacheRepository

	Tracker     *research.Tracker
	Coordinator *research.Coordinator
	Watchdog    *research.Watchdog
}

// NewAppContext は設定ファイルを読み込み、DBに接続して依存関係を組み立てる
// シンセシスは必須フェーズのため、OpenAI APIキーの欠落はここで失敗する
// 検索APIキーの欠落はギャザラーのキャッシュのみ動作に縮退する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	retryPolicy := retry.Policy{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	}

	searches := postgres.NewSearchRepository(database.Pool)
	bundles := postgres.NewBundleRepository(database.Pool)
	cacheRepo := postgres.NewCacheRepository(database.Pool)

	cache := reuse.NewService(cacheRepo,
		reuse.WithMaxEntries(cfg.Research.CacheMaxEntries),
		reuse.WithLogger(appLogger),
	)

	// 検索クライアントはオプショナル。未構成ならキャッシュのみで収集する
	var searchClient gatherer.SearchClient
	if cfg.Tavily.APIKey != "" {
		client, err := tavily.NewClient(cfg.Tavily.APIKey,
			tavily.WithBaseURL(cfg.Tavily.BaseURL),
			tavily.WithTimeout(cfg.Tavily.Timeout),
			tavily.WithRetryPolicy(retryPolicy),
		)
		if err != nil {
			database.Close()
			return nil, err
		}
		searchClient = client
	} else {
		appLogger.Warn("TAVILY_API_KEY not set, gatherers run in cache-only mode")
	}

	completion, err := openai.NewClient(cfg.OpenAI.APIKey,
		openai.WithModel(cfg.OpenAI.Model),
		openai.WithTimeout(cfg.OpenAI.Timeout),
		openai.WithRetryPolicy(retryPolicy),
	)
	if err != nil {
		database.Close()
		if errors.Is(err, openai.ErrAPIKeyNotSet) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	tokens, err := openai.NewTokenCounter(cfg.OpenAI.Model)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	extractor := scrape.NewExtractor()

	gathererCfg := gatherer.Config{
		Timeout:         cfg.Research.GathererTimeout,
		MinCacheHits:    cfg.Research.MinCacheHits,
		MaxResults:      cfg.Tavily.MaxResults,
		SearchDepth:     cfg.Tavily.SearchDepth,
		CacheMaxAgeDays: cfg.Research.CacheMaxAgeDays,
		CacheMinQuality: cfg.Research.CacheMinQuality,
	}

	tracker := research.NewTracker(searches,
		research.WithStallThresholds(cfg.Research.StallThreshold, cfg.Research.EscalationThreshold),
		research.WithTrackerLogger(appLogger),
	)

	coordinator := research.NewCoordinator(
		searches,
		bundles,
		tracker,
		gatherer.NewCompanyGatherer(searchClient, extractor, cache, gathererCfg, appLogger),
		gatherer.NewRequirementGatherer(searchClient, extractor, cache, gathererCfg, appLogger),
		gatherer.NewProfileGatherer(searchClient, extractor, cache, gathererCfg, appLogger),
		completion,
		tokens,
		research.Config{
			GatherDeadline:       cfg.Research.GatherDeadline,
			SynthesisModel:       cfg.OpenAI.Model,
			SynthesisMaxTokens:   cfg.OpenAI.MaxTokens,
			PerSourceTokenBudget: cfg.Research.PerSourceTokenBudget,
			CheckpointTimeout:    cfg.Research.CheckpointTimeout,
		},
		appLogger,
	)

	watchdog := research.NewWatchdog(searches, tracker, cfg.Research.AbandonAfter, appLogger)

	return &AppContext{
		Config:      cfg,
		Database:    database,
		Logger:      appLogger,
		Searches:    searches,
		Bundles:     bundles,
		Cache:       cacheRepo,
		Tracker:     tracker,
		Coordinator: coordinator,
		Watchdog:    watchdog,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Database != nil {
		ac.Database.Close()
	}
}

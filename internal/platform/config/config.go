package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（シンセシス用）
	OpenAI OpenAIConfig

	// Tavily検索API設定
	Tavily TavilyConfig

	// リサーチジョブの実行設定
	Research ResearchConfig

	// 外部呼び出し共通のリトライ設定
	Retry RetryConfig

	// HTTPサーバ設定
	HTTP HTTPConfig

	// ログ設定
	LogLevel  string
	LogFormat string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// TavilyConfig は検索・抽出サービス設定
type TavilyConfig struct {
	APIKey      string
	BaseURL     string
	SearchDepth string // "basic" or "advanced"
	MaxResults  int
	Timeout     time.Duration
}

// ResearchConfig はリサーチジョブの実行パラメータ
// 閾値はすべて設定駆動で、コアにはハードコードしません
type ResearchConfig struct {
	// ギャザラー単体のタイムアウト
	GathererTimeout time.Duration
	// ギャザリングフェーズ全体のデッドライン
	GatherDeadline time.Duration

	// キャッシュヒットがこの件数未満なら新規取得に進む
	MinCacheHits int
	// キャッシュ再利用の最大経過日数
	CacheMaxAgeDays int
	// キャッシュ再利用の品質スコア下限
	CacheMinQuality float64
	// 1回のルックアップで返すキャッシュエントリ数の上限
	CacheMaxEntries int

	// ストール検知閾値（進捗更新が途絶えてからの経過時間）
	StallThreshold time.Duration
	// クライアントにリトライを提示するエスカレーション閾値
	EscalationThreshold time.Duration
	// この時間を超えてストールしたジョブはウォッチドッグが失敗にする
	AbandonAfter time.Duration

	// シンセシスプロンプトに埋め込むソースごとのトークン上限
	PerSourceTokenBudget int

	// 永続化チェックポイント1つあたりのタイムアウト
	CheckpointTimeout time.Duration
}

// RetryConfig は共通リトライポリシーの設定
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// HTTPConfig はHTTPサーバ設定
type HTTPConfig struct {
	Port int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "prepscout"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "prepscout"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			Model:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvAsInt("OPENAI_MAX_TOKENS", 4096),
			Timeout:   getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
		},
		Tavily: TavilyConfig{
			APIKey:      getEnv("TAVILY_API_KEY", ""),
			BaseURL:     getEnv("TAVILY_BASE_URL", "https://api.tavily.com"),
			SearchDepth: getEnv("TAVILY_SEARCH_DEPTH", "basic"),
			MaxResults:  getEnvAsInt("TAVILY_MAX_RESULTS", 5),
			Timeout:     getEnvAsDuration("TAVILY_TIMEOUT", 20*time.Second),
		},
		Research: ResearchConfig{
			GathererTimeout:      getEnvAsDuration("RESEARCH_GATHERER_TIMEOUT", 45*time.Second),
			GatherDeadline:       getEnvAsDuration("RESEARCH_GATHER_DEADLINE", 90*time.Second),
			MinCacheHits:         getEnvAsInt("RESEARCH_MIN_CACHE_HITS", 2),
			CacheMaxAgeDays:      getEnvAsInt("RESEARCH_CACHE_MAX_AGE_DAYS", 14),
			CacheMinQuality:      getEnvAsFloat("RESEARCH_CACHE_MIN_QUALITY", 0.5),
			CacheMaxEntries:      getEnvAsInt("RESEARCH_CACHE_MAX_ENTRIES", 10),
			StallThreshold:       getEnvAsDuration("RESEARCH_STALL_THRESHOLD", 30*time.Second),
			EscalationThreshold:  getEnvAsDuration("RESEARCH_ESCALATION_THRESHOLD", 45*time.Second),
			AbandonAfter:         getEnvAsDuration("RESEARCH_ABANDON_AFTER", 10*time.Minute),
			PerSourceTokenBudget: getEnvAsInt("RESEARCH_PER_SOURCE_TOKEN_BUDGET", 3000),
			CheckpointTimeout:    getEnvAsDuration("RESEARCH_CHECKPOINT_TIMEOUT", 15*time.Second),
		},
		Retry: RetryConfig{
			MaxRetries:   getEnvAsInt("RETRY_MAX_RETRIES", 2),
			InitialDelay: getEnvAsDuration("RETRY_INITIAL_DELAY", 500*time.Millisecond),
			MaxDelay:     getEnvAsDuration("RETRY_MAX_DELAY", 8*time.Second),
		},
		HTTP: HTTPConfig{
			Port: getEnvAsInt("HTTP_PORT", 8080),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数をtime.Durationとして取得します
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

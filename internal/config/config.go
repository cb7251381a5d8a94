package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（ブロードキャスト用pub/sub）
	RedisURL string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Gate
	// BestEffortIP がtrueの場合、IP解決失敗時にも投稿を許可する（fail-open）。
	// デフォルトはfail-closed。
	BestEffortIP bool
	// SpamThreshold はこの信頼度以上でスパム判定する閾値。
	SpamThreshold float64
	// SubmissionCapsEnabled は数値上限による投稿制限を有効にする。
	// 観測された設計では無効化されているため、デフォルトはオフ。
	SubmissionCapsEnabled bool
	// SubmissionCapPerMinute は有効時の1アクターあたり毎分投稿上限。
	SubmissionCapPerMinute int

	// Moderation
	// ReflagOnEdit がtrueの場合、承認済みコンテンツの編集でpendingに戻す。
	ReflagOnEdit bool
	// OperationTimeout はゲート・キュー操作のクライアント側タイムアウト。
	OperationTimeout time.Duration

	// Rate Limit（ミドルウェア層、IP単位）
	RateLimitGeneral int // req/min

	// IP解決
	// TrustedProxies は信頼するリバースプロキシの段数。
	// 0の場合はX-Forwarded-Forを無視しRemoteAddrのみを使う。
	TrustedProxies int

	// Worker
	ActivityRetentionDays int
	CleanupInterval       time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.BestEffortIP = getEnvBool("GATE_BEST_EFFORT_IP", false)
	cfg.SpamThreshold = getEnvFloat("SPAM_THRESHOLD", 0.7)
	cfg.SubmissionCapsEnabled = getEnvBool("SUBMISSION_CAPS_ENABLED", false)
	cfg.SubmissionCapPerMinute = getEnvInt("SUBMISSION_CAP_PER_MINUTE", 6)
	cfg.ReflagOnEdit = getEnvBool("MODERATION_REFLAG_ON_EDIT", true)
	cfg.OperationTimeout = getEnvDuration("OPERATION_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.TrustedProxies = getEnvInt("TRUSTED_PROXIES", 0)
	cfg.ActivityRetentionDays = getEnvInt("ACTIVITY_RETENTION_DAYS", 14)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	if cfg.SpamThreshold <= 0 || cfg.SpamThreshold > 1 {
		return nil, fmt.Errorf("SPAM_THRESHOLD must be in (0, 1], got %v", cfg.SpamThreshold)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

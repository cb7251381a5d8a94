// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ClementHansel/fieldtalk/internal/broadcast"
	"github.com/ClementHansel/fieldtalk/internal/config"
	"github.com/ClementHansel/fieldtalk/internal/database"
	"github.com/ClementHansel/fieldtalk/internal/forum"
	"github.com/ClementHansel/fieldtalk/internal/gate"
	"github.com/ClementHansel/fieldtalk/internal/handler"
	"github.com/ClementHansel/fieldtalk/internal/ipresolver"
	"github.com/ClementHansel/fieldtalk/internal/logger"
	"github.com/ClementHansel/fieldtalk/internal/metrics"
	"github.com/ClementHansel/fieldtalk/internal/middleware"
	"github.com/ClementHansel/fieldtalk/internal/model"
	"github.com/ClementHansel/fieldtalk/internal/moderation"
	"github.com/ClementHansel/fieldtalk/internal/repository"
	"github.com/ClementHansel/fieldtalk/internal/security"
	"github.com/ClementHansel/fieldtalk/internal/session"
	"github.com/ClementHansel/fieldtalk/internal/spam"
	"github.com/ClementHansel/fieldtalk/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// broadcastSubscriber はBroadcasterをハンドラーの購読インターフェースに適合させる。
type broadcastSubscriber struct {
	b *broadcast.Broadcaster
}

func (s *broadcastSubscriber) Subscribe(ctx context.Context, ref model.ContentRef) (handler.StatusSubscription, error) {
	return s.b.Subscribe(ctx, ref)
}

// runServe はAPIサーバーモードで起動する。
// DBとRedisの接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. Redis接続（状態ブロードキャスト用）
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis connection established")

	// 3. リポジトリの初期化
	tempUserRepo := repository.NewPostgresTempUserRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	staffSessionRepo := repository.NewPostgresStaffSessionRepo(db)
	topicRepo := repository.NewPostgresTopicRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	contentRepo := repository.NewPostgresContentRepo(db)
	banRepo := repository.NewPostgresBanRepo(db)
	activityRepo := repository.NewPostgresActivityRepo(db)
	reportRepo := repository.NewPostgresReportRepo(db)

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	sessionStore := session.NewStore(tempUserRepo)
	resolver := ipresolver.NewResolver(cfg.TrustedProxies)
	analyzer := spam.NewAnalyzer(cfg.SpamThreshold)

	submissionGate := gate.NewGate(resolver, banRepo, activityRepo, analyzer, gate.Options{
		BestEffortIP: cfg.BestEffortIP,
		CapsEnabled:  cfg.SubmissionCapsEnabled,
		CapPerMinute: cfg.SubmissionCapPerMinute,
	}, collector)

	broadcaster := broadcast.NewBroadcaster(rdb)
	sanitizer := security.NewContentSanitizer()

	forumService := forum.NewService(topicRepo, postRepo, contentRepo, reportRepo, sanitizer, broadcaster, cfg.ReflagOnEdit)
	moderationService := moderation.NewService(contentRepo, activityRepo, broadcaster, collector)

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg, resolver.ClientIP)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StaffSessions:     staffSessionRepo,
		Profiles:          profileRepo,

		SessionStore: sessionStore,
		Gate:         submissionGate,
		ClientIP:     resolver.ClientIP,

		ForumService:      forumService,
		ModerationService: moderationService,

		StatusSubscriber: &broadcastSubscriber{b: broadcaster},
		StreamRecorder:   collector,

		MetricsGatherer: registry,
		HealthChecker:   db,

		OperationTimeout: cfg.OperationTimeout,
	}

	router := handler.NewRouter(deps)

	// 7. バックグラウンドループの起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go submissionGate.CleanupLoop(ctx, 10*time.Minute)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// SSEストリームを止めないため、書き込みタイムアウトは設定しない
		IdleTimeout: 60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はクリーンアップワーカーモードで起動する。
// 期限切れ訪問者と保持期間超過のアクティビティログを定期削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	tempUserRepo := repository.NewPostgresTempUserRepo(db)
	activityRepo := repository.NewPostgresActivityRepo(db)

	cleanupJob := cleanup.NewCleanupJob(tempUserRepo, activityRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.ActivityRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("activity_retention_days", cfg.ActivityRetentionDays),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

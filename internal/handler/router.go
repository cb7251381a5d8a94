package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ClementHansel/fieldtalk/internal/metrics"
	"github.com/ClementHansel/fieldtalk/internal/middleware"
	"github.com/ClementHansel/fieldtalk/internal/repository"
)

// HealthChecker はバックエンド疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StaffSessions     repository.StaffSessionRepository
	Profiles          repository.ProfileRepository

	// セッション
	SessionStore SessionStoreInterface

	// 投稿ゲート
	Gate     GateInterface
	ClientIP func(*http.Request) string

	// フォーラム
	ForumService ForumServiceInterface

	// モデレーション
	ModerationService ModerationServiceInterface

	// ライブ状態配信
	StatusSubscriber StatusSubscriberInterface
	StreamRecorder   StreamRecorder

	// 観測
	MetricsGatherer prometheus.Gatherer
	HealthChecker   HealthChecker

	// ゲート・キュー操作のサーバー側タイムアウト
	OperationTimeout time.Duration
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit
//
// /health と /metrics はレート制限の外に配置する。
// /api/moderation/* はスタッフ認証ミドルウェアの内側に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))

	sessionHandler := NewSessionHandler(deps.SessionStore, deps.OperationTimeout)
	forumHandler := NewForumHandler(deps.ForumService, deps.Gate, deps.SessionStore, deps.ClientIP, deps.OperationTimeout)
	statusHandler := NewStatusHandler(deps.ModerationService, deps.StatusSubscriber, deps.StreamRecorder)
	moderationHandler := NewModerationHandler(deps.ModerationService, deps.OperationTimeout)

	optionalStaff := middleware.NewOptionalStaffMiddleware(deps.StaffSessions, deps.Profiles)

	// --- 運用エンドポイント（レート制限の外）---

	r.Get("/health", newHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 公開API ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		// 匿名セッション管理
		r.Route("/api/session", func(r chi.Router) {
			r.Post("/", sessionHandler.EnsureSession)
			r.Delete("/", sessionHandler.ClearSession)
		})

		// トピック・ポスト
		r.Route("/api/topics", func(r chi.Router) {
			r.Post("/", forumHandler.CreateTopic)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", forumHandler.GetTopic)
				r.Post("/posts", forumHandler.CreatePost)
			})
		})

		// コンテンツ編集と状態閲覧
		r.Route("/api/content/{kind}/{id}", func(r chi.Router) {
			r.With(optionalStaff).Patch("/", forumHandler.EditContent)
			r.Get("/status", statusHandler.GetStatus)
			r.Get("/status/stream", statusHandler.Stream)
		})

		// スパム通報
		r.Post("/api/reports", forumHandler.Report)
	})

	// --- スタッフAPI ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewStaffMiddleware(deps.StaffSessions, deps.Profiles))
		r.Use(deps.RateLimiter.Middleware())

		r.Route("/api/moderation", func(r chi.Router) {
			r.Get("/pending", moderationHandler.ListPending)
			r.Get("/activity", moderationHandler.ListActivity)

			r.Route("/{kind}/{id}", func(r chi.Router) {
				r.Post("/approve", moderationHandler.Approve)
				r.Post("/reject", moderationHandler.Reject)
				r.Delete("/", moderationHandler.Delete)
				r.Post("/ban-author", moderationHandler.BanAuthor)
				r.Post("/ban-ip", moderationHandler.BanIP)
			})
		})
	})

	return r
}

// newHealthHandler はバックエンド疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

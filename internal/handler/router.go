package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/notekeeper/internal/middleware"
	"github.com/hitoshi/notekeeper/internal/model"
)

// HealthChecker はストアの疎通確認インターフェース。*sql.DBとMongoPingerが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenValidator    middleware.TokenValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AdminEmails       []string
	Logger            *slog.Logger
	Metrics           middleware.HTTPRecorder // nilの場合は記録しない

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ノート
	NoteService NoteServiceInterface

	// ユーザー
	UserService UserServiceInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  → (認証が必要なルート) Auth → RateLimit(General) [→ RateLimit(Write)]
//
// OAuthフロー、ヘルスチェック、メトリクスは認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "ROUTE_NOT_FOUND",
			Message:  "Route not found",
			Category: "system",
			Action:   "Check the request path.",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, &model.APIError{
			Code:     "METHOD_NOT_ALLOWED",
			Message:  "Method not allowed",
			Category: "system",
			Action:   "Check the request method.",
		})
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.UserService, deps.AuthConfig)
	noteHandler := NewNoteHandler(deps.NoteService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// OAuthフロー。プロバイダーはパスで指定する（/auth/google）
	r.Get("/auth/{provider}", authHandler.Login)
	r.Get("/auth/{provider}/callback", authHandler.Callback)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// セッション。/auth/{provider}と同じツリーに静的パスとして登録し、静的パスを優先させる
		r.Get("/auth/me", authHandler.Me)
		r.Get("/auth/validate", authHandler.Validate)
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/logout", authHandler.Logout)
		r.Delete("/auth/account", authHandler.DeleteAccount)

		// ノート管理
		r.Route("/api/notes", func(r chi.Router) {
			r.Get("/", noteHandler.List)
			// 作成と一括削除は書き込み専用のレート制限を追加
			r.With(deps.RateLimiter.WriteMiddleware()).Post("/", noteHandler.Create)
			r.With(deps.RateLimiter.WriteMiddleware()).Delete("/", noteHandler.BulkDelete)

			r.Get("/stats/summary", noteHandler.Stats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", noteHandler.Get)
				r.Put("/", noteHandler.Update)
				r.Delete("/", noteHandler.Delete)
				r.Patch("/pin", noteHandler.TogglePin)
			})
		})

		// 管理者
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware(deps.AdminEmails))
			r.Patch("/users/{id}/active", userHandler.SetActive)
		})
	})

	return r
}

// healthHandler はストアへの疎通を確認する。失敗時は503を返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				middleware.WriteJSON(w, http.StatusServiceUnavailable, middleware.ResponseBody{
					Success: false,
					Code:    "STORE_UNAVAILABLE",
					Message: "Store is unreachable",
				})
				return
			}
		}
		middleware.WriteSuccess(w, http.StatusOK, "", map[string]string{"status": "ok"})
	}
}

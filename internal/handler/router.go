package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/idman/internal/metrics"
	"github.com/hitoshi/idman/internal/middleware"
)

// HealthChecker はヘルスチェックでのDB疎通確認インターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	BearerValidator   middleware.BearerValidator // nil可（Bearer認証を無効化）
	UserFinder        middleware.UserFinder      // nil可（Bearer認証を無効化）
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 本人確認
	IdentityService IdentityServiceInterface

	// Webhook
	WebhookEngine     WebhookEngine
	SignatureVerifier SignatureVerifier
	WebhookMetrics    WebhookMetrics // nil可

	// 運用エンドポイント
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer // nil可（/metricsを無効化）
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）、Webhook受信（/stripe/webhooks）、運用エンドポイントは
// セッション・CSRFチェーンの外に配置する。特にWebhookはCookieを持たないため、
// CSRFミドルウェアの内側に置くと常に403になる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	identityHandler := NewIdentityHandler(deps.IdentityService)
	webhookHandler := NewWebhookHandler(deps.WebhookEngine, deps.SignatureVerifier, deps.WebhookMetrics)

	// --- 認証不要のルート ---

	// 認証ルート（OIDCフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// Webhook受信（署名検証がハンドラー内で行われる）
	r.Post("/stripe/webhooks", webhookHandler.HandleWebhook)

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// ヘルスチェック
	r.Get("/health", newHealthHandler(deps.HealthChecker))

	// Prometheusスクレイプ
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.BearerValidator, deps.UserFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 本人確認
		r.Route("/identity", func(r chi.Router) {
			// POST /identity/start - 本人確認開始（開始専用レート制限を追加）
			r.With(deps.RateLimiter.VerificationStartMiddleware()).Post("/start", identityHandler.StartVerification)

			// GET /identity/status - 本人確認状態の取得
			r.Get("/status", identityHandler.GetStatus)
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check database ping failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

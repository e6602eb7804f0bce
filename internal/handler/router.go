package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/exptra/internal/metrics"
	"github.com/hitoshi/exptra/internal/middleware"
	"github.com/hitoshi/exptra/internal/report"
)

// DBPinger はヘルスチェックで使用するDB疎通確認のインターフェース。
// *sql.DBがそのまま満たす。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 台帳
	Ledgers LedgerProvider
	Users   UserFinder

	// レポート
	Exporter *report.Exporter
	Renderer report.Renderer

	// 運用
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
	DB       DBPinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルート（/auth/*）と運用ルート（/health, /metrics）は
// ミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	txHandler := NewTransactionHandler(deps.Ledgers, deps.Users, deps.Metrics)
	reportHandler := NewReportHandler(deps.Ledgers, deps.Users, deps.Exporter, deps.Renderer, deps.Metrics)

	// --- 認証不要のルート ---

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.SignUp)
		r.Post("/login", authHandler.SignIn)
		r.Post("/logout", authHandler.SignOut)
		r.Get("/me", authHandler.Me)
		r.Get("/csrf", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
	})

	// ヘルスチェック（DB疎通を確認する）
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB != nil {
			if err := deps.DB.PingContext(r.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 取引台帳
		r.Route("/api/transactions", func(r chi.Router) {
			// POST /api/transactions - 取引投入（投入専用レート制限を追加）
			r.With(deps.RateLimiter.SubmissionMiddleware()).Post("/", txHandler.Submit)

			// GET /api/transactions?filter=all|today|thisMonth - 取引一覧
			r.Get("/", txHandler.List)
		})

		// 残高
		r.Get("/api/balance", txHandler.Balance)

		// レポート
		r.Get("/api/reports/pdf", reportHandler.ExportPDF)
	})

	return r
}

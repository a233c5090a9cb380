package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sreejagatab/codebridge/internal/config"
	"github.com/sreejagatab/codebridge/internal/database"
	"github.com/sreejagatab/codebridge/internal/gate"
	"github.com/sreejagatab/codebridge/internal/identity"
	"github.com/sreejagatab/codebridge/internal/ratelimit"
	"github.com/sreejagatab/codebridge/internal/token"
	"github.com/sreejagatab/codebridge/pkg/middleware"
)

// version はAPIのバージョン。
const version = "0.1.0"

// Server はCodeBridge APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービス設定。
	cfg *config.Config
	// db はSQLiteデータベース接続。
	db *sql.DB
	// queries はプロジェクト・コンテンツのクエリ実行オブジェクト。
	queries *Queries
	// users はユーザーストア。
	users *identity.Store
	// tokens はトークンサービス。
	tokens *token.Service
	// standard は標準ティアのレートリミッター。
	standard *ratelimit.Limiter
	// strict は厳格ティア（ログイン等）のレートリミッター。
	strict *ratelimit.Limiter
	// startedAt はサーバーの起動時刻。ヘルスチェックの稼働時間計算に使用する。
	startedAt time.Time
}

// NewServer は新しいCodeBridgeサーバーを生成する。
// データベースの初期化、デモユーザーの投入、ゲートキーパーの
// ポリシーテーブル構築をここで行う。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}

	users := identity.NewStore(db)
	if err := users.SeedDemoUsers(context.Background()); err != nil {
		return nil, fmt.Errorf("デモユーザーの投入に失敗: %w", err)
	}

	tokens, err := token.NewService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("トークンサービスの初期化に失敗: %w", err)
	}

	standard, err := ratelimit.New(cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("標準レートリミッターの初期化に失敗: %w", err)
	}
	strict, err := ratelimit.New(cfg.StrictRateLimitPerWindow, cfg.RateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("厳格レートリミッターの初期化に失敗: %w", err)
	}

	s := &Server{
		router:    gin.New(),
		cfg:       cfg,
		db:        db,
		queries:   NewQueries(db),
		users:     users,
		tokens:    tokens,
		standard:  standard,
		strict:    strict,
		startedAt: time.Now(),
	}
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	return s, nil
}

// Run はHTTPサーバーを起動する。
// レートリミッターの定期スイープもここで開始する。
func (s *Server) Run() error {
	s.standard.StartJanitor(context.Background(), time.Minute)
	s.strict.StartJanitor(context.Background(), time.Minute)
	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// route は1つのAPIルートとそのゲートキーパー方針をまとめて宣言する。
type route struct {
	// method はHTTPメソッド。
	method string
	// path はGinのルートパターン。
	path string
	// handler はリクエストハンドラ。
	handler gin.HandlerFunc
	// permission はルートが要求する権限。空文字列は権限不要。
	permission string
	// tier は適用するレート制限ティア。
	tier gate.Tier
	// authRequired は有効なトークンの提示を必須とするか。
	authRequired bool
	// exempt はレート制限と認証の両方を免除するか。
	exempt bool
}

// routes は全APIルートとポリシーの宣言テーブルを返す。
// ルート登録とゲートキーパーのポリシーがここで一元管理される。
func (s *Server) routes() []route {
	return []route{
		// 認証
		{method: http.MethodPost, path: "/api/auth/login", handler: s.handleLogin(), tier: gate.TierStrict},
		{method: http.MethodGet, path: "/api/auth/me", handler: s.handleMe(), authRequired: true},
		{method: http.MethodPost, path: "/api/auth/logout", handler: s.handleLogout(), authRequired: true},

		// プロジェクト（一覧・詳細は匿名アクセス可）
		{method: http.MethodGet, path: "/api/projects", handler: s.handleListProjects()},
		{method: http.MethodPost, path: "/api/projects", handler: s.handleCreateProject(), permission: "write", authRequired: true},
		{method: http.MethodGet, path: "/api/projects/:id", handler: s.handleGetProject()},
		{method: http.MethodPut, path: "/api/projects/:id", handler: s.handleUpdateProject(), permission: "write", authRequired: true},
		{method: http.MethodDelete, path: "/api/projects/:id", handler: s.handleDeleteProject(), permission: "delete", authRequired: true},

		// コンテンツ（一覧・詳細は匿名アクセス可）
		{method: http.MethodGet, path: "/api/content", handler: s.handleListContent()},
		{method: http.MethodPost, path: "/api/content", handler: s.handleCreateContent(), permission: "write", authRequired: true},
		{method: http.MethodGet, path: "/api/content/:id", handler: s.handleGetContent()},
		{method: http.MethodGet, path: "/api/content/by-slug/:slug", handler: s.handleGetContentBySlug()},
		{method: http.MethodPut, path: "/api/content/:id", handler: s.handleUpdateContent(), permission: "write", authRequired: true},
		{method: http.MethodDelete, path: "/api/content/:id", handler: s.handleDeleteContent(), permission: "delete", authRequired: true},

		// ヘルスチェックとルート（免除）
		{method: http.MethodGet, path: "/", handler: s.handleRoot(), exempt: true},
		{method: http.MethodGet, path: "/health", handler: s.handleHealth(), exempt: true},
		{method: http.MethodGet, path: "/health/simple", handler: s.handleHealthSimple(), exempt: true},
		{method: http.MethodGet, path: "/health/database", handler: s.handleHealthDatabase(), exempt: true},
	}
}

// setupRoutes はルートの登録とゲートキーパーの構築を行う。
// ミドルウェアはルート登録の前に適用する必要がある。
func (s *Server) setupRoutes() error {
	routes := s.routes()

	policies := make([]gate.Policy, 0, len(routes))
	for _, r := range routes {
		policies = append(policies, gate.Policy{
			Method:       r.method,
			Path:         r.path,
			Permission:   r.permission,
			Tier:         r.tier,
			AuthRequired: r.authRequired,
			Exempt:       r.exempt,
		})
	}

	keeper, err := gate.New(s.tokens, s.standard, s.strict, policies)
	if err != nil {
		return fmt.Errorf("ゲートキーパーの構築に失敗: %w", err)
	}

	s.router.Use(middleware.Recovery())
	s.router.Use(gin.Logger())
	s.router.Use(middleware.CORS(s.cfg.AllowedOrigins))
	s.router.Use(keeper.Middleware())

	for _, r := range routes {
		s.router.Handle(r.method, r.path, r.handler)
	}

	return nil
}

// handleRoot はAPIのウェルカムエンドポイントのハンドラを返す。
func (s *Server) handleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":     "Welcome to CodeBridge API",
			"description": "README-to-Blog Automation Platform",
			"version":     version,
			"status":      "running",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"endpoints": gin.H{
				"health":         "/health",
				"authentication": "/api/auth/login",
				"projects":       "/api/projects",
				"content":        "/api/content",
			},
		})
	}
}

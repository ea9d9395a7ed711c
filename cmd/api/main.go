// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/glyph-forge/internal/auth"
	"github.com/yourusername/glyph-forge/internal/cancel"
	"github.com/yourusername/glyph-forge/internal/charset"
	"github.com/yourusername/glyph-forge/internal/config"
	"github.com/yourusername/glyph-forge/internal/font"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token",
		"X-Requester-Id",
	}
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token", "X-Job-Id"}
	router.Use(cors.New(corsConfig))

	// オーケストレーション層の組み立て
	catalog := charset.NewCatalog()
	registry := cancel.NewRegistry()
	transformer := font.NewExecTransformer(cfg.PyftsubsetPath)
	analyzer := font.NewExecAnalyzer(cfg.FontAnalyzerPath)
	fontService := font.NewService(cfg, catalog, registry, transformer, analyzer)

	// 非同期ジョブ（Asynq + Redis）の起動
	jobManager, err := setupJobs(cfg, fontService)
	if err != nil {
		log.Fatalf("Failed to setup jobs: %v", err)
	}
	jobManager.StartWorkers()

	setupRoutes(router, cfg, fontService, jobManager)

	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "glyph-forge-api",
		"version": "0.1.0",
	})
}

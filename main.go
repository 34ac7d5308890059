package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ieventory-backend/internal/audit"
	"ieventory-backend/internal/inventory/items"
	"ieventory-backend/internal/inventory/transactions"
	"ieventory-backend/internal/platform/auth"
	"ieventory-backend/internal/platform/db"
	"ieventory-backend/internal/platform/logger"
)

func main() {
	// .env があれば読む（無くてもよい）
	_ = godotenv.Load()

	// 設定読み込み
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		fmt.Println("Usage: set mode to dev or release in config/config.yaml")
		return
	}

	log := logger.Must(logger.New(cfg.Mode))
	defer log.Sync()
	log.Info("starting", zap.String("mode", cfg.Mode), zap.String("version", cfg.Version))

	if cfg.JWT.Secret == "" {
		log.Fatal("jwt secret is not set (config or JWT_SECRET)")
	}
	secret := []byte(cfg.JWT.Secret)

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer conn.Close()
	log.Info("connected to DB", zap.String("dbname", cfg.DB.DBName))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	auditSvc := audit.NewService(conn, log)

	// /api/v1
	api := r.Group("/api/v1")
	protected := api.Group("", auth.RequireAuth(secret))

	auth.RegisterRoutes(api, protected, auth.NewService(conn, secret))
	items.RegisterRoutes(protected, items.NewService(conn))
	transactions.RegisterRoutes(protected, transactions.NewService(conn))
	audit.RegisterRoutes(protected, auditSvc)

	// 監査ログの保持期限パージ
	c := cron.New()
	schedule := cfg.Audit.PurgeSchedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		_, _ = auditSvc.Purge(ctx, cfg.Audit.RetentionDays)
	}); err != nil {
		log.Fatal("invalid audit purge schedule", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("shutdown failed", zap.Error(err))
	}
}

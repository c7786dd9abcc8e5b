package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"lifeline-backend/internal/blood_mgmt/banks"
	"lifeline-backend/internal/blood_mgmt/hospital"
	"lifeline-backend/internal/blood_mgmt/requests"
	"lifeline-backend/internal/blood_mgmt/transfers"
	"lifeline-backend/internal/blood_mgmt/units"
	"lifeline-backend/internal/blood_mgmt/urgent"
	"lifeline-backend/internal/platform/auth"
	"lifeline-backend/internal/platform/db"
)

// @title        Lifeline Blood Bank API
// @version      1.0
// @description  Blood unit ledger, reservation and transfer coordination between banks and hospitals.
// @BasePath     /api/v1
func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		fmt.Println("Usage: go run main.go [dev|release]")
		return
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authSvc := auth.NewService(conn, cfg.Auth.Secret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	bankSvc := banks.NewService(conn)
	unitSvc := units.NewService(conn)

	// 予約・移送・消費はすべて unitSvc の台帳エンジンを共有する
	requestSvc := requests.NewService(conn, unitSvc.Allocator(), bankSvc)
	transferSvc := transfers.NewService(conn, unitSvc.Allocator(), bankSvc)
	hospitalSvc := hospital.NewService(conn, unitSvc.Allocator(), bankSvc)
	urgentSvc := urgent.NewService(conn, unitSvc.Store(), bankSvc)

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api, authSvc)

	protected := api.Group("")
	if cfg.Auth.Secret != "" {
		protected.Use(auth.RequireAuth(authSvc.Secret()))
	} else {
		log.Printf("[WARN] auth.secret is empty, API is unauthenticated")
	}

	banks.RegisterRoutes(protected, bankSvc)
	units.RegisterRoutes(protected, unitSvc)
	requests.RegisterRoutes(protected, requestSvc)
	transfers.RegisterRoutes(protected, transferSvc)
	hospital.RegisterRoutes(protected, hospitalSvc)
	urgent.RegisterRoutes(protected, urgentSvc)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}

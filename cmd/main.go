package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"crypto-rsi-scanner/internal/api"
	"crypto-rsi-scanner/internal/engine"
	"crypto-rsi-scanner/internal/httpapi"
	"crypto-rsi-scanner/internal/model"
	"crypto-rsi-scanner/internal/service"
)

func main() {
	// .env 可选，只用于本地覆盖 SCANNER_* 环境变量
	_ = godotenv.Load(".env")

	cfg, err := service.LoadConfig("config")
	if err != nil {
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := service.InitLogger(cfg.Log.Level); err != nil {
		zap.NewExample().Fatal("Failed to init logger", zap.Error(err))
	}
	defer service.Logger.Sync()

	// 1. 历史 K 线客户端，每个分段一个 REST 端点
	klines := api.NewKlinesClient(map[model.Segment]string{
		model.SegmentSpot:        cfg.Exchange.SpotRESTURL,
		model.SegmentDerivatives: cfg.Exchange.DerivativesRESTURL,
	})

	// 2. 引擎：ticker 连接、再平衡、K 线连接组、回填
	eng, err := engine.New(cfg, api.NewWSDialer(), klines, service.Logger)
	if err != nil {
		service.Logger.Fatal("Failed to create engine", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		service.Logger.Fatal("Failed to start engine", zap.Error(err))
	}

	// 3. 查询接口
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(eng, service.Logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		service.Logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			service.Logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	service.Logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		service.Logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	eng.Stop()
}

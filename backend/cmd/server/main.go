package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"zimpharmhub/backend/internal/api/handler"
	"zimpharmhub/backend/internal/api/router"
	"zimpharmhub/backend/internal/app"
	"zimpharmhub/backend/internal/scheduler"
)

func main() {
	// 1. 初始化依赖（配置、日志、数据库、Redis、Service）
	a, err := app.New(app.Options{
		ConfigPath: os.Getenv("ZPH_CONFIG"),
		Component:  "server",
		Migrate:    true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	cfg, logger := a.Config, a.Logger
	if err := cfg.Auth.Validate(); err != nil {
		logger.Fatal("认证配置无效", zap.Error(err))
	}

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("alert_timezone", cfg.Alert.Timezone),
	)

	// 2. 初始化路由
	var rdb router.Redis
	if a.Redis != nil {
		rdb = a.Redis
	}
	h := handler.NewHandler(a.Service)
	engine, err := router.Setup(cfg, h, a.JWT, rdb, a.DB, logger)
	if err != nil {
		logger.Fatal("初始化路由失败", zap.Error(err))
	}

	// 3. 内置定时任务（多实例部署时由 Redis 锁互斥）
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		loc, _ := cfg.Alert.Location()
		sched = scheduler.New(&cfg.Scheduler, loc, a.Service.Processor, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("启动定时任务失败", zap.Error(err))
		}
	}

	// 4. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // 手动触发的批处理可能较慢
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 5. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 取消正在执行的批处理并等待其返回
	stop()
	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("等待定时任务结束超时")
		}
	}

	logger.Info("服务器已关闭")
}

// Package app 组装 server 与 alerter 两个进程共用的依赖
package app

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"zimpharmhub/backend/config"
	"zimpharmhub/backend/internal/repository"
	"zimpharmhub/backend/internal/service"
	"zimpharmhub/backend/pkg/database"
	"zimpharmhub/backend/pkg/jwt"
	applogger "zimpharmhub/backend/pkg/logger"
	"zimpharmhub/backend/pkg/mailer"
	"zimpharmhub/backend/pkg/redis"
)

// App 进程级依赖
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	Redis   *redis.Client // 未连接时为 nil
	JWT     *jwt.Manager
	Repo    *repository.Repository
	Service *service.Service
}

// Options 启动选项
type Options struct {
	ConfigPath string
	Component  string
	Migrate    bool // 启动时执行数据库迁移
}

// New 按顺序初始化：配置 → 日志 → 数据库 → Redis → Service
func New(opts Options) (*App, error) {
	// 1. 加载配置
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log, opts.Component)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return nil, err
	}

	// 3.1 执行数据库迁移
	if opts.Migrate {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
		}
		if err := database.RunMigrations(sqlDB, logger); err != nil {
			return nil, err
		}
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，批处理锁、Token 黑名单与限流将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 依赖注入: Repository → Service
	jwtMgr := jwt.NewManager(&cfg.Auth)
	deps := service.Deps{
		Mailer: mailer.New(&cfg.Mail, logger),
		JWT:    jwtMgr,
	}
	if rdb != nil {
		deps.Locker = rdb
		deps.Blacklist = rdb
	}

	repo := repository.NewRepository(db)
	svc, err := service.NewService(cfg, repo, deps, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化服务失败: %w", err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Redis:   rdb,
		JWT:     jwtMgr,
		Repo:    repo,
		Service: svc,
	}, nil
}

// Close 关闭数据库与 Redis 连接
func (a *App) Close() {
	if sqlDB, _ := a.DB.DB(); sqlDB != nil {
		sqlDB.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.Logger.Sync()
}

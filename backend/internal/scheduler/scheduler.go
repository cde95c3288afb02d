// Package scheduler 按 cron 表达式周期触发提醒批处理
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"zimpharmhub/backend/config"
	"zimpharmhub/backend/internal/dto"
	"zimpharmhub/backend/internal/model"
	pkgerrors "zimpharmhub/backend/pkg/errors"
)

// AlertRunner 批处理入口（service.AlertProcessor 满足此接口）
type AlertRunner interface {
	ProcessJobAlerts(ctx context.Context, frequency string) (*dto.ProcessAlertsResult, error)
	SendAlertDigests(ctx context.Context, frequency string) (*dto.SendDigestsResult, error)
}

// Scheduler 封装 robfig/cron
// 同一任务上一轮未结束时跳过本轮；跨进程互斥由 Redis 锁保证
type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.SchedulerConfig
	runner AlertRunner
	logger *zap.Logger
}

// New 创建 Scheduler，cron 表达式按提醒时区解释
func New(cfg *config.SchedulerConfig, loc *time.Location, runner AlertRunner, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		cfg:    cfg,
		runner: runner,
		logger: logger,
	}
}

// Start 注册任务并启动；ctx 取消后正在执行的批处理会提前结束
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		spec string
		name string
		fn   func()
	}{
		{s.cfg.InstantSpec, "process:instant", func() { s.runProcess(ctx, model.FrequencyInstant) }},
		{s.cfg.DailySpec, "process:daily", func() { s.runProcess(ctx, model.FrequencyDaily) }},
		{s.cfg.WeeklySpec, "process:weekly", func() { s.runProcess(ctx, model.FrequencyWeekly) }},
		{s.cfg.DigestSpec, "digest", func() { s.runDigest(ctx) }},
	}

	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("注册定时任务 %s 失败: %w", j.name, err)
		}
		s.logger.Info("定时任务已注册", zap.String("job", j.name), zap.String("spec", j.spec))
	}

	s.cron.Start()
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Entries 已注册任务数
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) runProcess(ctx context.Context, frequency string) {
	result, err := s.runner.ProcessJobAlerts(ctx, frequency)
	if err != nil {
		s.logPassError("匹配批处理", frequency, err)
		return
	}
	s.logger.Info("匹配批处理完成",
		zap.String("frequency", frequency),
		zap.Int("total", result.Total),
		zap.Int("processed", result.Processed),
		zap.Int("notifications_sent", result.NotificationsSent),
		zap.Int("errors", result.Errors),
	)
}

func (s *Scheduler) runDigest(ctx context.Context) {
	result, err := s.runner.SendAlertDigests(ctx, "")
	if err != nil {
		s.logPassError("摘要批处理", "", err)
		return
	}
	s.logger.Info("摘要批处理完成",
		zap.Int("total", result.Total),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)
}

func (s *Scheduler) logPassError(pass, frequency string, err error) {
	if errors.Is(err, pkgerrors.ErrPassInProgress) {
		s.logger.Info(pass+"已在其他实例执行，跳过", zap.String("frequency", frequency))
		return
	}
	s.logger.Error(pass+"失败", zap.String("frequency", frequency), zap.Error(err))
}

// cronLogger 将 cron 内部日志接入 zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

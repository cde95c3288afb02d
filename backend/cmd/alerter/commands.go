package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zimpharmhub/backend/internal/app"
	"zimpharmhub/backend/internal/scheduler"
	"zimpharmhub/backend/internal/service"
	"zimpharmhub/backend/pkg/database"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "alerter",
		Short: "ZimPharmHub 职位提醒批处理",
		Long: `ZimPharmHub 职位提醒批处理工具。

适合由外部调度（crontab / Kubernetes CronJob）调用，也可常驻运行内置调度。

示例:
  alerter process --frequency instant   # 发现新匹配并发送即时邮件
  alerter process                       # 处理全部频率
  alerter digest --frequency weekly     # 发送到期的每周摘要
  alerter schedule                      # 常驻运行 cron 调度
  alerter migrate                       # 仅执行数据库迁移`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("ZPH_CONFIG"), "配置文件路径")

	root.AddCommand(
		newProcessCmd(opts),
		newDigestCmd(opts),
		newScheduleCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func newProcessCmd(opts *rootOptions) *cobra.Command {
	var frequency string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "执行一次匹配批处理",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				result, err := a.Service.Processor.ProcessJobAlerts(ctx, frequency)
				if result != nil {
					if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&frequency, "frequency", "f", "", "instant / daily / weekly，留空处理全部")
	return cmd
}

func newDigestCmd(opts *rootOptions) *cobra.Command {
	var frequency string
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "发送处于时间窗口内的摘要",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				result, err := a.Service.Processor.SendAlertDigests(ctx, frequency)
				if result != nil {
					if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&frequency, "frequency", "f", "", "daily / weekly，留空处理全部")
	return cmd
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "常驻运行内置 cron 调度，收到 SIGINT / SIGTERM 后退出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				loc, err := a.Config.Alert.Location()
				if err != nil {
					return err
				}
				sched := scheduler.New(&a.Config.Scheduler, loc, a.Service.Processor, a.Logger)
				if err := sched.Start(ctx); err != nil {
					return err
				}
				a.Logger.Info("调度已启动", zap.Int("jobs", sched.Entries()))

				<-ctx.Done()
				<-sched.Stop().Done()
				a.Logger.Info("调度已停止")
				return nil
			})
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(_ context.Context, a *app.App) error {
				sqlDB, err := a.DB.DB()
				if err != nil {
					return err
				}
				return database.RunMigrations(sqlDB, a.Logger)
			})
		},
	}
}

// withApp 初始化依赖并在信号到达时取消 ctx
func withApp(parent context.Context, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(app.Options{ConfigPath: opts.configPath, Component: "alerter"})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		if errors.Is(err, service.ErrInvalidFrequency) {
			return fmt.Errorf("%w（可选值: instant / daily / weekly）", err)
		}
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

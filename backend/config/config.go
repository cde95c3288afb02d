package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // 容器镜像可能缺少系统时区库

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Mail      MailConfig      `mapstructure:"mail"`
	Log       LogConfig       `mapstructure:"log"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port        int        `mapstructure:"port"`
	BaseURL     string     `mapstructure:"base_url"`
	FrontendURL string     `mapstructure:"frontend_url"` // 邮件中的职位链接前缀
	CORS        CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（可选，缺失时降级运行）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// Validate 校验认证配置，仅 HTTP 服务进程需要
func (a *AuthConfig) Validate() error {
	if a.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(a.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	return nil
}

// MailConfig SMTP 邮件配置
// SMTPHost 为空时进入开发模式：只记录日志，不真正发送
type MailConfig struct {
	SMTPHost string        `mapstructure:"smtp_host"`
	SMTPPort int           `mapstructure:"smtp_port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AlertConfig 职位提醒引擎配置
type AlertConfig struct {
	Timezone            string        `mapstructure:"timezone"`              // 摘要时间按此时区解释
	DigestWindowMinutes int           `mapstructure:"digest_window_minutes"` // 摘要发送容差（±分钟）
	InstantMaxJobs      int           `mapstructure:"instant_max_jobs"`      // 即时邮件最多列出的职位数
	DefaultDigestTime   string        `mapstructure:"default_digest_time"`
	DefaultDigestDay    string        `mapstructure:"default_digest_day"`
	PassLockTTL         time.Duration `mapstructure:"pass_lock_ttl"`
}

// Location 加载提醒时区
func (a *AlertConfig) Location() (*time.Location, error) {
	return time.LoadLocation(a.Timezone)
}

// DigestWindow 摘要容差窗口
func (a *AlertConfig) DigestWindow() time.Duration {
	return time.Duration(a.DigestWindowMinutes) * time.Minute
}

// SchedulerConfig 内置定时任务配置（cron 表达式）
type SchedulerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	InstantSpec string `mapstructure:"instant_spec"`
	DailySpec   string `mapstructure:"daily_spec"`
	WeeklySpec  string `mapstructure:"weekly_spec"`
	DigestSpec  string `mapstructure:"digest_spec"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:3000"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "zimpharmhub")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Africa/Harare")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "2h")

	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "ZimPharmHub <noreply@zimpharmhub.com>")
	v.SetDefault("mail.timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("alert.timezone", "Africa/Harare")
	v.SetDefault("alert.digest_window_minutes", 10)
	v.SetDefault("alert.instant_max_jobs", 10)
	v.SetDefault("alert.default_digest_time", "09:00")
	v.SetDefault("alert.default_digest_day", "Monday")
	v.SetDefault("alert.pass_lock_ttl", "10m")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.instant_spec", "@every 10m")
	v.SetDefault("scheduler.daily_spec", "@every 10m")
	v.SetDefault("scheduler.weekly_spec", "@every 10m")
	v.SetDefault("scheduler.digest_spec", "@every 10m")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("ZPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if _, err := c.Alert.Location(); err != nil {
		return fmt.Errorf("配置校验失败: alert.timezone %q 无效: %w", c.Alert.Timezone, err)
	}
	if c.Alert.DigestWindowMinutes <= 0 {
		return fmt.Errorf("配置校验失败: alert.digest_window_minutes 必须大于 0")
	}
	if c.Alert.InstantMaxJobs <= 0 {
		return fmt.Errorf("配置校验失败: alert.instant_max_jobs 必须大于 0")
	}
	if _, err := time.Parse("15:04", c.Alert.DefaultDigestTime); err != nil {
		return fmt.Errorf("配置校验失败: alert.default_digest_time 必须为 HH:mm 格式")
	}
	if !isWeekdayName(c.Alert.DefaultDigestDay) {
		return fmt.Errorf("配置校验失败: alert.default_digest_day 必须为英文星期名称")
	}
	return nil
}

func isWeekdayName(s string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == s {
			return true
		}
	}
	return false
}

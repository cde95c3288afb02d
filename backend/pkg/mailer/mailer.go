// Package mailer 封装 SMTP 发信。
//
// 未配置 SMTP 主机时进入开发模式：只记录将要发送的邮件并返回 DevModeMessageID，
// 便于本地联调时不依赖真实邮件服务。发信失败的错误原样返回给调用方。
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/mail.v2"

	"zimpharmhub/backend/config"
)

// DevModeMessageID 开发模式下返回的消息 ID
const DevModeMessageID = "dev-mode"

// Sender 邮件发送抽象，业务层依赖此接口以便替换
type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) (string, error)
}

// dialer 抽象 mail.Dialer，测试中可替换
type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer SMTP 邮件客户端
type Mailer struct {
	from    string
	domain  string
	dialer  dialer
	devMode bool
	logger  *zap.Logger
}

// New 根据配置创建 Mailer，SMTPHost 为空时返回开发模式实例
func New(cfg *config.MailConfig, logger *zap.Logger) *Mailer {
	m := &Mailer{
		from:   cfg.From,
		domain: messageIDDomain(cfg.From),
		logger: logger,
	}

	if cfg.SMTPHost == "" {
		m.devMode = true
		logger.Warn("未配置 SMTP，邮件将只记录日志（开发模式）")
		return m
	}

	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password)
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	m.dialer = d

	logger.Info("SMTP 邮件客户端已初始化",
		zap.String("host", cfg.SMTPHost),
		zap.Int("port", cfg.SMTPPort),
	)
	return m
}

// DevMode 是否处于开发模式
func (m *Mailer) DevMode() bool {
	return m.devMode
}

// Send 发送一封同时包含纯文本与 HTML 正文的邮件，返回 Message-ID
func (m *Mailer) Send(ctx context.Context, to, subject, text, html string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if m.devMode {
		m.logger.Info("【开发模式】邮件未实际发送",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Int("text_len", len(text)),
		)
		return DevModeMessageID, nil
	}

	msg, messageID := m.buildMessage(to, subject, text, html)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("SMTP 发送失败: %w", err)
	}

	m.logger.Info("邮件发送成功",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("message_id", messageID),
	)
	return messageID, nil
}

func (m *Mailer) buildMessage(to, subject, text, html string) (*mail.Message, string) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), m.domain)

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetDateHeader("Date", time.Now())
	msg.SetBody("text/plain", text)
	if html != "" {
		msg.AddAlternative("text/html", html)
	}
	return msg, messageID
}

// messageIDDomain 从发件人地址中取域名，取不到时使用 localhost
func messageIDDomain(from string) string {
	addr := from
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

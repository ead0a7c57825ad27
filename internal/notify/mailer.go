package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/d60-Lab/medorder/config"
	"github.com/d60-Lab/medorder/pkg/logger"
)

// Message 纯文本邮件
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer 邮件发送
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer 通过 SMTP 发送，每封邮件单独建立连接
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	em := mail.NewMsg()
	if err := em.From(msg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := em.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	em.Subject(msg.Subject)
	em.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, em); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogMailer 未配置 SMTP 时只打日志
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	logger.Info("mail not sent, smtp disabled",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// NewMailer 按配置选择实现
func NewMailer(cfg config.SMTPConfig) Mailer {
	if cfg.Enabled() {
		return NewSMTPMailer(cfg)
	}
	return LogMailer{}
}

package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/medorder/config"
	"github.com/d60-Lab/medorder/internal/model"
	"github.com/d60-Lab/medorder/internal/repository"
	"github.com/d60-Lab/medorder/pkg/logger"
)

const defaultSendTimeout = 10 * time.Second

// Notifier 订单创建后发送管理员通知与客户确认邮件，失败只记录不返回
type Notifier struct {
	mailer      Mailer
	log         repository.NotificationLog
	adminEmail  string
	fromEmail   string
	brand       string
	sendTimeout time.Duration
}

// NewNotifier log 可为 nil
func NewNotifier(mailer Mailer, log repository.NotificationLog, cfg config.NotificationConfig) *Notifier {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Notifier{
		mailer:      mailer,
		log:         log,
		adminEmail:  cfg.AdminEmail,
		fromEmail:   cfg.FromEmail,
		brand:       cfg.BrandName,
		sendTimeout: timeout,
	}
}

// NotifyOrderCreated 每封邮件只尝试一次
func (n *Notifier) NotifyOrderCreated(ctx context.Context, order model.Order, licenseFile string) {
	data := mailData{Brand: n.brand, Order: order, LicenseFile: licenseFile}

	if n.adminEmail == "" {
		n.record(ctx, order.ID, model.NotificationAdmin, "", "", model.NotificationSkipped, "admin email not configured")
	} else {
		n.send(ctx, data, model.NotificationAdmin, n.adminEmail)
	}

	if order.ContactEmail != "" {
		n.send(ctx, data, model.NotificationCustomer, order.ContactEmail)
	}
}

func (n *Notifier) send(ctx context.Context, data mailData, kind model.NotificationKind, to string) {
	subjectTpl, bodyTpl := adminSubject, adminBody
	if kind == model.NotificationCustomer {
		subjectTpl, bodyTpl = customerSubject, customerBody
	}

	subject, err := render(subjectTpl, data)
	if err == nil {
		var body string
		body, err = render(bodyTpl, data)
		if err == nil {
			sendCtx, cancel := context.WithTimeout(ctx, n.sendTimeout)
			err = n.mailer.Send(sendCtx, Message{From: n.fromEmail, To: to, Subject: subject, Body: body})
			cancel()
		}
	}

	if err != nil {
		logger.FromContext(ctx).Warn("send notification failed",
			zap.Int64("order_id", data.Order.ID),
			zap.String("kind", string(kind)),
			zap.String("to", to),
			zap.Error(err),
		)
		n.record(ctx, data.Order.ID, kind, to, subject, model.NotificationFailed, err.Error())
		return
	}
	n.record(ctx, data.Order.ID, kind, to, subject, model.NotificationSent, "")
}

func (n *Notifier) record(ctx context.Context, orderID int64, kind model.NotificationKind, to, subject string, status model.NotificationStatus, errMsg string) {
	if n.log == nil {
		return
	}
	rec := &model.Notification{
		OrderID:   orderID,
		Recipient: to,
		Kind:      kind,
		Subject:   subject,
		Status:    status,
		Error:     errMsg,
	}
	if status == model.NotificationSent {
		now := time.Now().UTC()
		rec.SentAt = &now
	}
	if err := n.log.LogNotification(ctx, rec); err != nil {
		logger.FromContext(ctx).Warn("record notification failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

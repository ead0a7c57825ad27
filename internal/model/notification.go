package model

import "time"

// NotificationKind 邮件类型
type NotificationKind string

const (
	NotificationAdmin    NotificationKind = "admin"
	NotificationCustomer NotificationKind = "customer"
)

// NotificationStatus 发送结果
type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationSkipped NotificationStatus = "skipped"
)

// Notification 邮件发送记录
type Notification struct {
	ID        int64              `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   int64              `json:"order_id" gorm:"index;not null"`
	Recipient string             `json:"recipient" gorm:"type:varchar(255)"`
	Kind      NotificationKind   `json:"kind" gorm:"type:varchar(20);not null"`
	Subject   string             `json:"subject" gorm:"type:varchar(500)"`
	Status    NotificationStatus `json:"status" gorm:"type:varchar(20);not null"`
	Error     string             `json:"error,omitempty" gorm:"type:text"`
	SentAt    *time.Time         `json:"sent_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

func (Notification) TableName() string { return "email_notifications" }

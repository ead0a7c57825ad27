package model

import (
	"time"
)

// OrderStatus 订单状态
type OrderStatus string

// 订单状态常量，管理员可任意切换，不强制流转顺序
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses 全部合法状态（管理端下拉框顺序）
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid 是否为合法状态
func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Order 订单模型，ID 由数据库自增序列分配
type Order struct {
	ID             int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	Product        string      `json:"product" gorm:"type:varchar(100);not null"`
	Quantity       int         `json:"quantity" gorm:"not null;default:1"`
	FullName       string      `json:"full_name" gorm:"type:varchar(255);not null"`
	CompanyName    string      `json:"company_name" gorm:"type:varchar(255)"`
	CompanyPhone   string      `json:"company_phone" gorm:"type:varchar(50)"`
	CompanyAddress string      `json:"company_address" gorm:"type:text"`
	HomeAddress    string      `json:"home_address" gorm:"type:text"`
	HomePhone      string      `json:"home_phone" gorm:"type:varchar(50)"`
	ContactName    string      `json:"contact_name" gorm:"type:varchar(255);not null"`
	ContactPhone   string      `json:"contact_phone" gorm:"type:varchar(50);not null"`
	ContactEmail   string      `json:"contact_email" gorm:"type:varchar(255);not null;index"`
	Status         OrderStatus `json:"status" gorm:"type:varchar(50);index;not null;default:'pending'"`
	CreatedAt      time.Time   `json:"created_at" gorm:"index;not null"`
	UpdatedAt      time.Time   `json:"updated_at" gorm:"not null"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

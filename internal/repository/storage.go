package repository

import (
	"context"
	"errors"
	"time"

	"github.com/d60-Lab/medorder/internal/model"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable 存储不可达或超时，调用方可重试
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// OrderFilter 订单查询条件
type OrderFilter struct {
	OrderID *int64
}

// FileFilter 文件查询条件
type FileFilter struct {
	OrderID *int64
	FileID  string
}

// OrderPatch 订单部分更新
type OrderPatch struct {
	Status *model.OrderStatus
}

// Storage 订单与文件的存储适配器
type Storage interface {
	// CreateOrder 分配 ID 与时间戳并落库
	CreateOrder(ctx context.Context, order *model.Order) error

	// ListOrders 按创建时间倒序
	ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error)

	// UpdateOrder 不存在时返回 ErrNotFound
	UpdateOrder(ctx context.Context, id int64, patch OrderPatch) (*model.Order, error)

	// SaveFile 保存文件元数据与内容
	SaveFile(ctx context.Context, file *model.File, content []byte) error

	// ListFiles 按上传时间倒序
	ListFiles(ctx context.Context, filter FileFilter) ([]model.File, error)

	// GetFileContent 不存在时返回 ErrNotFound
	GetFileContent(ctx context.Context, fileID string) ([]byte, error)
}

// NotificationLog 邮件发送记录
type NotificationLog interface {
	LogNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, orderID *int64) ([]model.Notification, error)
}

// Stats 管理端统计
type Stats struct {
	TotalOrders    int64                       `json:"total_orders"`
	TotalFiles     int64                       `json:"total_files"`
	OrdersByStatus map[model.OrderStatus]int64 `json:"orders_by_status"`
	LastOrderID    int64                       `json:"last_order_id"`
	GeneratedAt    time.Time                   `json:"generated_at"`
}

// StatsReader 统计查询
type StatsReader interface {
	Stats(ctx context.Context) (*Stats, error)
}

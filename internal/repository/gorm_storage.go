package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/medorder/internal/model"
)

// GormStorage 基于 GORM 的存储实现，生产使用 PostgreSQL，本地与测试使用 SQLite
type GormStorage struct {
	db        *gorm.DB
	opTimeout time.Duration
}

var (
	_ Storage         = (*GormStorage)(nil)
	_ NotificationLog = (*GormStorage)(nil)
	_ StatsReader     = (*GormStorage)(nil)
)

// NewGormStorage 创建存储，opTimeout 为单次操作的 I/O 超时
func NewGormStorage(db *gorm.DB, opTimeout time.Duration) *GormStorage {
	return &GormStorage{db: db, opTimeout: opTimeout}
}

// InitSchema 初始化数据库表结构
func (s *GormStorage) InitSchema() error {
	if err := s.db.AutoMigrate(
		&model.Order{},
		&model.File{},
		&model.FileContent{},
		&model.Notification{},
	); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	return nil
}

func (s *GormStorage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// wrapErr 记录不存在映射为 ErrNotFound，其余一律视为存储不可用
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// CreateOrder 创建订单，ID 由数据库序列分配
func (s *GormStorage) CreateOrder(ctx context.Context, order *model.Order) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	order.ID = 0
	if order.Status == "" {
		order.Status = model.OrderStatusPending
	}
	return wrapErr("create order", s.db.WithContext(ctx).Create(order).Error)
}

// ListOrders 查询订单，新订单在前
func (s *GormStorage) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q := s.db.WithContext(ctx).Model(&model.Order{})
	if filter.OrderID != nil {
		q = q.Where("id = ?", *filter.OrderID)
	}
	orders := make([]model.Order, 0)
	if err := q.Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, wrapErr("list orders", err)
	}
	return orders, nil
}

// UpdateOrder 更新订单并返回最新记录
func (s *GormStorage) UpdateOrder(ctx context.Context, id int64, patch OrderPatch) (*model.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}

	res := s.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, wrapErr("update order", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var order model.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, wrapErr("reload order", err)
	}
	return &order, nil
}

// SaveFile 元数据与内容在同一事务内写入
func (s *GormStorage) SaveFile(ctx context.Context, file *model.File, content []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	file.Size = int64(len(content))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(file).Error; err != nil {
			return err
		}
		return tx.Create(&model.FileContent{FileID: file.ID, Data: content}).Error
	})
	return wrapErr("save file", err)
}

// ListFiles 查询文件元数据，新上传在前
func (s *GormStorage) ListFiles(ctx context.Context, filter FileFilter) ([]model.File, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q := s.db.WithContext(ctx).Model(&model.File{})
	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	if filter.FileID != "" {
		q = q.Where("id = ?", filter.FileID)
	}
	files := make([]model.File, 0)
	if err := q.Order("uploaded_at DESC").Find(&files).Error; err != nil {
		return nil, wrapErr("list files", err)
	}
	return files, nil
}

// GetFileContent 按文件 ID 读取内容
func (s *GormStorage) GetFileContent(ctx context.Context, fileID string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var fc model.FileContent
	if err := s.db.WithContext(ctx).First(&fc, "file_id = ?", fileID).Error; err != nil {
		return nil, wrapErr("get file content", err)
	}
	return fc.Data, nil
}

// LogNotification 记录一次邮件发送
func (s *GormStorage) LogNotification(ctx context.Context, n *model.Notification) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return wrapErr("log notification", s.db.WithContext(ctx).Create(n).Error)
}

// ListNotifications 查询邮件记录，orderID 为空时返回全部
func (s *GormStorage) ListNotifications(ctx context.Context, orderID *int64) ([]model.Notification, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q := s.db.WithContext(ctx).Model(&model.Notification{})
	if orderID != nil {
		q = q.Where("order_id = ?", *orderID)
	}
	list := make([]model.Notification, 0)
	if err := q.Order("created_at DESC").Order("id DESC").Find(&list).Error; err != nil {
		return nil, wrapErr("list notifications", err)
	}
	return list, nil
}

// Stats 统计订单与文件数量
func (s *GormStorage) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	db := s.db.WithContext(ctx)
	st := &Stats{
		OrdersByStatus: make(map[model.OrderStatus]int64, len(model.OrderStatuses)),
		GeneratedAt:    time.Now().UTC(),
	}
	for _, status := range model.OrderStatuses {
		st.OrdersByStatus[status] = 0
	}

	var rows []struct {
		Status model.OrderStatus
		Count  int64
	}
	if err := db.Model(&model.Order{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, wrapErr("count orders", err)
	}
	for _, r := range rows {
		st.OrdersByStatus[r.Status] = r.Count
		st.TotalOrders += r.Count
	}

	if err := db.Model(&model.File{}).Count(&st.TotalFiles).Error; err != nil {
		return nil, wrapErr("count files", err)
	}
	if err := db.Model(&model.Order{}).Select("COALESCE(MAX(id), 0)").Scan(&st.LastOrderID).Error; err != nil {
		return nil, wrapErr("last order id", err)
	}
	return st, nil
}

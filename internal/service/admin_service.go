package service

import (
	"context"

	"github.com/d60-Lab/medorder/internal/model"
	"github.com/d60-Lab/medorder/internal/repository"
)

// AdminService 管理端只读查询
type AdminService interface {
	Stats(ctx context.Context) (*repository.Stats, error)
	ListNotifications(ctx context.Context, orderID *int64) ([]model.Notification, error)
}

type adminService struct {
	stats repository.StatsReader
	log   repository.NotificationLog
}

func NewAdminService(stats repository.StatsReader, log repository.NotificationLog) AdminService {
	return &adminService{stats: stats, log: log}
}

func (s *adminService) Stats(ctx context.Context) (*repository.Stats, error) {
	return s.stats.Stats(ctx)
}

func (s *adminService) ListNotifications(ctx context.Context, orderID *int64) ([]model.Notification, error) {
	return s.log.ListNotifications(ctx, orderID)
}

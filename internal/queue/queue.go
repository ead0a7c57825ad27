package queue

import (
	"context"
	"errors"
	"time"

	"github.com/d60-Lab/medorder/internal/model"
)

var (
	// ErrQueueFull 内存队列已满，任务被丢弃
	ErrQueueFull = errors.New("notification queue full")
	// ErrClosed 队列已关闭
	ErrClosed = errors.New("notification queue closed")
)

// Job 订单创建后的通知任务
type Job struct {
	Order       model.Order `json:"order"`
	LicenseFile string      `json:"license_file,omitempty"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`
}

// Queue 通知任务队列；Dequeue 阻塞直到取到任务、队列关闭或 ctx 结束
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

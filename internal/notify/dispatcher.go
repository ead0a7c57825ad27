package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/medorder/internal/model"
	"github.com/d60-Lab/medorder/internal/queue"
	"github.com/d60-Lab/medorder/pkg/logger"
)

// OrderNotifier 处理单个通知任务
type OrderNotifier interface {
	NotifyOrderCreated(ctx context.Context, order model.Order, licenseFile string)
}

// Dispatcher 从队列消费通知任务的 worker 池
type Dispatcher struct {
	q         queue.Queue
	notifier  OrderNotifier
	workers   int
	retryWait time.Duration
	metricsCh chan time.Duration
	wg        sync.WaitGroup
}

func NewDispatcher(q queue.Queue, notifier OrderNotifier, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{
		q:         q,
		notifier:  notifier,
		workers:   workers,
		retryWait: time.Second,
		metricsCh: make(chan time.Duration, 65536),
	}
}

// Start 启动 worker，返回停止函数：关闭队列并等待剩余任务处理完，ctx 到期则强制退出
func (d *Dispatcher) Start() func(context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.loop(runCtx)
		}()
	}

	return func(ctx context.Context) error {
		_ = d.q.Close()
		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			cancel()
			return nil
		case <-ctx.Done():
			cancel()
			<-done
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	for {
		job, err := d.q.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			logger.Warn("dequeue notification failed", zap.Error(err))
			select {
			case <-time.After(d.retryWait):
			case <-ctx.Done():
				return
			}
			continue
		}
		d.handle(ctx, job)
	}
}

func (d *Dispatcher) handle(ctx context.Context, job queue.Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification worker panic", zap.Int64("order_id", job.Order.ID), zap.Any("panic", r))
		}
	}()

	d.notifier.NotifyOrderCreated(ctx, job.Order, job.LicenseFile)
	if !job.EnqueuedAt.IsZero() {
		select {
		case d.metricsCh <- time.Since(job.EnqueuedAt):
		default:
		}
	}
}

// Metrics 返回入队到处理完成耗时的只读通道（每处理一条发送一次 duration）。
func (d *Dispatcher) Metrics() <-chan time.Duration { return d.metricsCh }

// QueueLen 返回当前队列长度（采样值）。
func (d *Dispatcher) QueueLen(ctx context.Context) int64 {
	n, err := d.q.Len(ctx)
	if err != nil {
		return -1
	}
	return n
}

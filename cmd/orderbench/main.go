package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/d60-Lab/medorder/config"
	"github.com/d60-Lab/medorder/internal/notify"
	"github.com/d60-Lab/medorder/internal/queue"
	"github.com/d60-Lab/medorder/internal/repository"
	"github.com/d60-Lab/medorder/internal/service"
	"github.com/d60-Lab/medorder/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	defer database.Close(db)

	storage := repository.NewGormStorage(db, cfg.Database.OpTimeout)
	if err := storage.InitSchema(); err != nil {
		panic(err)
	}

	N := envInt("N", 2000)
	CONC := envInt("CONC", 8)

	// 通知走日志 Mailer，只测入队与落库
	q := queue.NewMemoryQueue(N)
	notifier := notify.NewNotifier(notify.LogMailer{}, storage, cfg.Notification)
	dispatcher := notify.NewDispatcher(q, notifier, cfg.Notification.Workers)
	stop := dispatcher.Start()

	files := service.NewFileService(storage, cfg.Upload.MaxSize)
	orders := service.NewOrderService(storage, files, q)

	ctx := context.Background()

	notifyRecs := make([]time.Duration, 0, N)
	doneNotify := make(chan struct{})
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		metrics := dispatcher.Metrics()
		for {
			select {
			case d := <-metrics:
				notifyRecs = append(notifyRecs, d)
			case <-doneNotify:
				for {
					select {
					case d := <-metrics:
						notifyRecs = append(notifyRecs, d)
					default:
						return
					}
				}
			}
		}
	}()

	var maxQ int64
	quitSample := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := dispatcher.QueueLen(ctx); n > maxQ {
					maxQ = n
				}
			case <-quitSample:
				return
			}
		}
	}()

	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)

	var (
		mu       sync.Mutex
		recs     = make([]time.Duration, 0, N)
		ids      = make(map[int64]struct{}, N)
		failures int
		wg       sync.WaitGroup
	)
	workers := CONC
	if workers > N {
		workers = N
	}

	t0 := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range feed {
				in := service.OrderInput{
					FullName:       fmt.Sprintf("bench user %d", i),
					CompanyAddress: "Tokyo",
					ContactName:    fmt.Sprintf("bench user %d", i),
					ContactPhone:   "090-0000-0000",
					ContactEmail:   fmt.Sprintf("bench%d@example.com", i),
					Product:        "eye-booster",
					Quantity:       1 + i%5,
				}
				st := time.Now()
				order, err := orders.SubmitOrder(ctx, in)
				d := time.Since(st)

				mu.Lock()
				recs = append(recs, d)
				if err != nil {
					failures++
				} else {
					ids[order.ID] = struct{}{}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	submitDur := time.Since(t0)
	close(quitSample)

	drainStart := time.Now()
	_ = stop(context.Background())
	drainDur := time.Since(drainStart)
	close(doneNotify)
	<-collected

	q0 := time.Now()
	list, _ := orders.ListOrders(ctx, nil)
	listDur := time.Since(q0)

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	fmt.Printf("N=%d, CONC=%d, driver=%s\n", N, CONC, cfg.Database.Driver)
	fmt.Printf("Submit total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		submitDur, submitDur/time.Duration(N), pct(recs, 0.50), pct(recs, 0.95), pct(recs, 0.99))
	fmt.Printf("Order IDs: unique=%d, failures=%d, duplicates=%d\n", len(ids), failures, N-failures-len(ids))
	fmt.Printf("List all orders (%d rows) latency: %v\n", len(list), listDur)
	if len(notifyRecs) > 0 {
		fmt.Printf("Notification handling: samples=%d, p50=%v, p95=%v, p99=%v, maxQueue=%d, drain=%v\n",
			len(notifyRecs), pct(notifyRecs, 0.50), pct(notifyRecs, 0.95), pct(notifyRecs, 0.99), maxQ, drainDur)
	}
}

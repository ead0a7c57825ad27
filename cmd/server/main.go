package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/medorder/config"
	"github.com/d60-Lab/medorder/internal/api/handler"
	"github.com/d60-Lab/medorder/internal/api/router"
	"github.com/d60-Lab/medorder/internal/cache"
	"github.com/d60-Lab/medorder/internal/notify"
	"github.com/d60-Lab/medorder/internal/queue"
	"github.com/d60-Lab/medorder/internal/repository"
	"github.com/d60-Lab/medorder/internal/service"
	"github.com/d60-Lab/medorder/pkg/database"
	"github.com/d60-Lab/medorder/pkg/logger"
	"github.com/d60-Lab/medorder/pkg/redisx"
	"github.com/d60-Lab/medorder/pkg/tracing"
)

// @title           Medorder API
// @version         1.0
// @description     医疗用品订单受理服务：下单、执照上传、管理端查询与状态维护
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			SampleRate:       cfg.Sentry.SampleRate,
			AttachStacktrace: true,
		}); err != nil {
			log.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal("init tracing failed", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatal("init database failed", zap.Error(err))
	}
	storage := repository.NewGormStorage(db, cfg.Database.OpTimeout)
	if err := storage.InitSchema(); err != nil {
		log.Fatal("init schema failed", zap.Error(err))
	}

	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}

	var (
		q   queue.Queue
		rdb *redis.Client
	)
	switch cfg.Notification.Queue {
	case "redis":
		rdb, err = redisx.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("init redis failed", zap.Error(err))
		}
		q = queue.NewRedisQueue(rdb, cfg.Notification.QueueKey)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	default:
		q = queue.NewMemoryQueue(cfg.Notification.QueueSize)
	}

	notifier := notify.NewNotifier(notify.NewMailer(cfg.SMTP), storage, cfg.Notification)
	dispatcher := notify.NewDispatcher(q, notifier, cfg.Notification.Workers)
	stopDispatcher := dispatcher.Start()

	var (
		stats repository.StatsReader = storage
		hooks []service.ChangeHook
	)
	if rdb != nil {
		statsCache := cache.NewStatsCache(storage, rdb, cfg.Admin.StatsCacheTTL)
		stats = statsCache
		hooks = append(hooks, statsCache.InvalidateOnChange)
	}

	files := service.NewFileService(storage, cfg.Upload.MaxSize, hooks...)
	orders := service.NewOrderService(storage, files, q, hooks...)
	auth := service.NewAuthService(cfg.Admin)
	admin := service.NewAdminService(stats, storage)
	if !auth.Enabled() {
		log.Warn("admin password hash is not configured, admin endpoints are unauthenticated")
	}
	if !cfg.SMTP.Enabled() {
		log.Warn("smtp host is not configured, notification mails are only logged")
	}

	h := handler.NewHandler(orders, files, auth, admin, cfg.Upload.MaxSize)
	health := handler.NewHealthHandler(checks, 2*time.Second)
	r := router.Setup(cfg, h, health, auth)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("queue", cfg.Notification.Queue))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	// 停止接收后再排空通知队列
	if err := stopDispatcher(shutdownCtx); err != nil {
		log.Warn("notification dispatcher did not drain", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown failed", zap.Error(err))
	}
	if err := database.Close(db); err != nil {
		log.Warn("close database failed", zap.Error(err))
	}
	log.Info("server exited")
}

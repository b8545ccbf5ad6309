package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Rat-cell/lockerhub/internal/allocator"
	"github.com/Rat-cell/lockerhub/internal/audit"
	"github.com/Rat-cell/lockerhub/internal/cache"
	"github.com/Rat-cell/lockerhub/internal/config"
	"github.com/Rat-cell/lockerhub/internal/db"
	"github.com/Rat-cell/lockerhub/internal/kafka"
	"github.com/Rat-cell/lockerhub/internal/lifecycle"
	"github.com/Rat-cell/lockerhub/internal/logger"
	"github.com/Rat-cell/lockerhub/internal/notify"
	"github.com/Rat-cell/lockerhub/internal/repository/postgresql"
	"github.com/Rat-cell/lockerhub/internal/server"
	"github.com/Rat-cell/lockerhub/internal/sweep"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := logger.New()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	database, err := db.NewDb(ctx, cfg.DB)
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}
	defer database.Close()

	lockerRepo := postgresql.NewLockerRepo(database)
	parcelRepo := postgresql.NewParcelRepo(database)
	auditRepo := postgresql.NewAuditLogRepo(database)
	outboxRepo := postgresql.NewOutboxTaskRepo(database, cfg.OutboxMaxAttempts)
	userRepo := postgresql.NewUserRepo(database)

	if cfg.AdminPassword != "" {
		if err := userRepo.CreateUser(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			log.Error("failed to seed admin user", zap.Error(err))
		}
	}

	lockerCache := cache.NewLockerCache(lockerRepo)
	if err := lockerCache.LoadInitialData(ctx); err != nil {
		log.Fatal("failed to warm locker cache", zap.Error(err))
	}

	auditManager := audit.NewManager(2, 5, 500*time.Millisecond, log,
		audit.NewLogSink(log),
		audit.NewStoreSink(auditRepo),
		audit.NewOutboxSink(outboxRepo, cfg.Kafka.AuditTopic),
	)
	auditManager.Start(ctx)

	sender := notify.NewConsoleSender(log)
	alloc := allocator.New(database, lockerRepo, auditManager, log)
	service := lifecycle.New(database, parcelRepo, lockerRepo, alloc, auditManager, sender, log, lifecycle.Options{
		PinValidity:            cfg.PinValidity(),
		TokenValidity:          cfg.TokenValidity(),
		MaxDailyPinGenerations: cfg.MaxDailyPinGenerations,
		EmailTokenIssuance:     cfg.EmailTokenIssuance,
		PublicBaseURL:          cfg.PublicBaseURL,
	})

	sweeper := sweep.New(database, parcelRepo, lockerRepo, auditManager, sender, log, sweep.Options{
		MaxPickupWindow: cfg.MaxPickupWindow(),
		ReminderLead:    cfg.ReminderLead(),
	})
	sweepRunner := sweep.NewRunner(sweeper, cfg.SweepInterval(), lockerCache, log)

	producer := kafka.NewKafkaProducer(strings.Split(cfg.Kafka.Brokers, ","), log)
	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: time.Duration(cfg.OutboxPollIntervalSecs) * time.Second,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	}, log)

	srv := server.New(service, userRepo, lockerCache, server.NewAuditRecorderSink(auditManager), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.HTTPPort)
	})
	g.Go(func() error {
		if err := sweepRunner.Run(gctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
	g.Go(func() error {
		publisher.Run(gctx)
		return nil
	})

	log.Info("lockerhub started", zap.String("port", cfg.HTTPPort))

	if err := g.Wait(); err != nil {
		log.Error("service exited with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auditManager.Shutdown(shutdownCtx)
	log.Info("lockerhub stopped")
}

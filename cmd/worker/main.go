package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/config"
	"github.com/paylab/ledgerlab/internal/faultinject"
	"github.com/paylab/ledgerlab/internal/logger"
	"github.com/paylab/ledgerlab/internal/mode"
	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
	"github.com/paylab/ledgerlab/internal/worker"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.New("ledger-worker")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var kw *kafka.Writer
	if len(cfg.Kafka.Brokers) > 0 {
		kw = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		}
		defer kw.Close()
	}

	repository := repo.NewRepository(gdb, rdb, kw, log)

	consistencyMode, _ := model.ParseMode(cfg.Experiment.Mode)
	strategy, err := mode.Select(consistencyMode, repository)
	if err != nil {
		log.Fatalf("select mode: %v", err)
	}
	profile, err := faultinject.ParseProfile(cfg.Experiment.FailProfile)
	if err != nil {
		log.Fatalf("fail profile: %v", err)
	}
	injector := faultinject.New(cfg.Experiment.Seed, profile)

	poller := worker.NewPoller(repository, strategy, injector, worker.Config{
		LeaseTimeout: cfg.Outbox.LeaseTimeout,
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		BackoffBase:  cfg.Outbox.BackoffBase,
	}, log)
	reconciler := worker.NewReconciler(repository, cfg.Outbox.LeaseTimeout, log)
	runner := worker.NewRunner(poller, reconciler, cfg.Outbox.PollInterval, cfg.Outbox.ReconcileInterval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("ledger-worker started",
		"mode", consistencyMode, "fail_profile", profile.Name, "seed", cfg.Experiment.Seed,
		"lease_timeout", cfg.Outbox.LeaseTimeout)
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("worker loop: %v", err)
	}
}

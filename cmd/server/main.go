package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/config"
	"github.com/paylab/ledgerlab/internal/faultinject"
	"github.com/paylab/ledgerlab/internal/logger"
	"github.com/paylab/ledgerlab/internal/mode"
	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
	"github.com/paylab/ledgerlab/internal/service"
	httptransport "github.com/paylab/ledgerlab/internal/transport/http"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.New("payments-api")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Account{}, &model.Payment{}, &model.LedgerEntry{},
		&model.OutboxEvent{}, &model.IdempotencyKey{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warnf("redis ping: %v", err)
	}

	repository := repo.NewRepository(gdb, rdb, nil, log)

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

	svc := service.NewPaymentService(repository, strategy, injector, log)
	router := httptransport.NewRouter(svc, cfg.RateLimit, log)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infow("payments-api listening", "addr", addr,
		"mode", consistencyMode, "fail_profile", profile.Name, "seed", cfg.Experiment.Seed)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}

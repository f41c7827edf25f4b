package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/config"
	"github.com/paylab/ledgerlab/internal/logger"
	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
)

func main() {
	count := flag.Int("accounts", 10, "number of accounts to create")
	balance := flag.String("balance", "1000", "opening balance per account")
	flag.Parse()

	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}
	log, err := logger.New("seeder")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	opening, err := decimal.NewFromString(*balance)
	if err != nil || opening.IsNegative() {
		log.Fatalf("invalid opening balance %q", *balance)
	}

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Account{}, &model.Payment{}, &model.LedgerEntry{},
		&model.OutboxEvent{}, &model.IdempotencyKey{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	repository := repo.NewRepository(gdb, nil, nil, log)
	ctx := context.Background()
	err = repository.DB(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 1; i <= *count; i++ {
			account := &model.Account{
				ID:               fmt.Sprintf("acc-%03d", i),
				AvailableBalance: opening,
				ReservedBalance:  decimal.Zero,
				OpeningBalance:   opening,
			}
			if err := repository.CreateAccount(ctx, tx, account); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed accounts: %v", err)
	}
	log.Infow("seeded accounts", "count", *count, "opening_balance", opening)
}

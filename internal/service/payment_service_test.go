package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/mode"
	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
)

func newTestService(t *testing.T, consistency model.Mode) (*PaymentService, *repo.Repository, context.Context) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Account{}, &model.Payment{}, &model.LedgerEntry{},
		&model.OutboxEvent{}, &model.IdempotencyKey{},
	))
	log := zap.NewNop().Sugar()
	repository := repo.NewRepository(db, nil, nil, log)
	strategy, err := mode.Select(consistency, repository)
	assert.NoError(t, err)
	svc := NewPaymentService(repository, strategy, nil, log)
	return svc, repository, context.Background()
}

func seedAccount(t *testing.T, r *repo.Repository, ctx context.Context, id string, balance int64) {
	t.Helper()
	opening := decimal.NewFromInt(balance)
	err := r.DB(ctx).Create(&model.Account{
		ID:               id,
		AvailableBalance: opening,
		ReservedBalance:  decimal.Zero,
		OpeningBalance:   opening,
	}).Error
	assert.NoError(t, err)
}

func accountByID(t *testing.T, r *repo.Repository, ctx context.Context, id string) model.Account {
	t.Helper()
	var a model.Account
	assert.NoError(t, r.DB(ctx).First(&a, "id = ?", id).Error)
	return a
}

func TestSubmitPayment_StrongApplied(t *testing.T) {
	svc, r, ctx := newTestService(t, model.ModeStrong)
	seedAccount(t, r, ctx, "acc-a", 100)
	seedAccount(t, r, ctx, "acc-b", 0)

	resp, err := svc.SubmitPayment(ctx, SubmitRequest{
		IdempotencyKey: "key-strong-1",
		SourceID:       "acc-a",
		DestinationID:  "acc-b",
		Amount:         decimal.NewFromInt(30),
	})
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentApplied, resp.Status)
	assert.NotEmpty(t, resp.PaymentID)

	a := accountByID(t, r, ctx, "acc-a")
	b := accountByID(t, r, ctx, "acc-b")
	assert.Equal(t, "70", a.AvailableBalance.String())
	assert.Equal(t, "30", b.AvailableBalance.String())

	var entries []model.LedgerEntry
	assert.NoError(t, r.DB(ctx).Where("payment_id = ?", resp.PaymentID).Find(&entries).Error)
	assert.Len(t, entries, 2)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Delta)
	}
	assert.True(t, sum.IsZero(), "ledger pair must conserve money")

	// Strong mode produces no outbox event.
	var events int64
	assert.NoError(t, r.DB(ctx).Model(&model.OutboxEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}

func TestSubmitPayment_StrongInsufficientFunds(t *testing.T) {
	svc, r, ctx := newTestService(t, model.ModeStrong)
	seedAccount(t, r, ctx, "acc-a", 10)
	seedAccount(t, r, ctx, "acc-b", 0)

	resp, err := svc.SubmitPayment(ctx, SubmitRequest{
		IdempotencyKey: "key-reject-1",
		SourceID:       "acc-a",
		DestinationID:  "acc-b",
		Amount:         decimal.NewFromInt(50),
	})
	assert.NoError(t, err, "business rejection is a terminal status, not an error")
	assert.Equal(t, model.PaymentRejected, resp.Status)

	a := accountByID(t, r, ctx, "acc-a")
	assert.Equal(t, "10", a.AvailableBalance.String())
	var entries int64
	assert.NoError(t, r.DB(ctx).Model(&model.LedgerEntry{}).Count(&entries).Error)
	assert.Zero(t, entries)
}

func TestSubmitPayment_IdempotentReplay(t *testing.T) {
	svc, r, ctx := newTestService(t, model.ModeStrong)
	seedAccount(t, r, ctx, "acc-a", 100)
	seedAccount(t, r, ctx, "acc-b", 0)

	req := SubmitRequest{
		IdempotencyKey: "key-replay-1",
		SourceID:       "acc-a",
		DestinationID:  "acc-b",
		Amount:         decimal.NewFromInt(30),
	}
	first, err := svc.SubmitPayment(ctx, req)
	assert.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.SubmitPayment(ctx, req)
	assert.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.Status, second.Status)

	// Funds moved exactly once, one payment row exists.
	a := accountByID(t, r, ctx, "acc-a")
	assert.Equal(t, "70", a.AvailableBalance.String())
	var payments int64
	assert.NoError(t, r.DB(ctx).Model(&model.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)
}

func TestSubmitPayment_FingerprintConflict(t *testing.T) {
	svc, r, ctx := newTestService(t, model.ModeStrong)
	seedAccount(t, r, ctx, "acc-a", 100)
	seedAccount(t, r, ctx, "acc-b", 0)

	req := SubmitRequest{
		IdempotencyKey: "key-conflict-1",
		SourceID:       "acc-a",
		DestinationID:  "acc-b",
		Amount:         decimal.NewFromInt(30),
	}
	_, err := svc.SubmitPayment(ctx, req)
	assert.NoError(t, err)

	req.Amount = decimal.NewFromInt(31)
	_, err = svc.SubmitPayment(ctx, req)
	assert.ErrorIs(t, err, ErrConflict)

	// The conflicting request mutated nothing.
	a := accountByID(t, r, ctx, "acc-a")
	assert.Equal(t, "70", a.AvailableBalance.String())
	var payments int64
	assert.NoError(t, r.DB(ctx).Model(&model.Payment{}).Count(&payments).Error)
	assert.Equal(t, int64(1), payments)
}

func TestSubmitPayment_Validation(t *testing.T) {
	svc, _, ctx := newTestService(t, model.ModeStrong)

	cases := []SubmitRequest{
		{IdempotencyKey: "short", SourceID: "a", DestinationID: "b", Amount: decimal.NewFromInt(1)},
		{IdempotencyKey: "key-valid-len", SourceID: "acc-a", DestinationID: "acc-a", Amount: decimal.NewFromInt(1)},
		{IdempotencyKey: "key-valid-len", SourceID: "acc-a", DestinationID: "acc-b", Amount: decimal.Zero},
		{IdempotencyKey: "key-valid-len", SourceID: "acc-a", DestinationID: "acc-b", Amount: decimal.NewFromInt(-5)},
		{IdempotencyKey: "key-valid-len", SourceID: "", DestinationID: "acc-b", Amount: decimal.NewFromInt(1)},
	}
	for _, req := range cases {
		_, err := svc.SubmitPayment(ctx, req)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestSubmitPayment_UnknownAccount(t *testing.T) {
	svc, _, ctx := newTestService(t, model.ModeStrong)

	_, err := svc.SubmitPayment(ctx, SubmitRequest{
		IdempotencyKey: "key-missing-1",
		SourceID:       "acc-missing",
		DestinationID:  "acc-other",
		Amount:         decimal.NewFromInt(5),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitPayment_HybridReserves(t *testing.T) {
	svc, r, ctx := newTestService(t, model.ModeHybrid)
	seedAccount(t, r, ctx, "acc-a", 100)
	seedAccount(t, r, ctx, "acc-b", 0)

	resp, err := svc.SubmitPayment(ctx, SubmitRequest{
		IdempotencyKey: "key-hybrid-1",
		SourceID:       "acc-a",
		DestinationID:  "acc-b",
		Amount:         decimal.NewFromInt(40),
	})
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentReserved, resp.Status)

	a := accountByID(t, r, ctx, "acc-a")
	assert.Equal(t, "60", a.AvailableBalance.String())
	assert.Equal(t, "40", a.ReservedBalance.String())
	// Destination untouched until settlement.
	b := accountByID(t, r, ctx, "acc-b")
	assert.Equal(t, "0", b.AvailableBalance.String())

	var evt model.OutboxEvent
	assert.NoError(t, r.DB(ctx).First(&evt, "aggregate_id = ?", resp.PaymentID).Error)
	assert.Equal(t, model.EventPaymentReserved, evt.EventType)
	assert.Equal(t, model.OutboxPending, evt.Status)
}

func TestSubmitPayment_EventualAcceptsWithoutFundsCheck(t *testing.T) {
	svc, r, ctx := newTestService(t, model.ModeEventual)
	seedAccount(t, r, ctx, "acc-a", 10)
	seedAccount(t, r, ctx, "acc-b", 0)

	resp, err := svc.SubmitPayment(ctx, SubmitRequest{
		IdempotencyKey: "key-eventual-1",
		SourceID:       "acc-a",
		DestinationID:  "acc-b",
		Amount:         decimal.NewFromInt(50),
	})
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentPending, resp.Status)

	a := accountByID(t, r, ctx, "acc-a")
	assert.Equal(t, "10", a.AvailableBalance.String())
	var evt model.OutboxEvent
	assert.NoError(t, r.DB(ctx).First(&evt, "aggregate_id = ?", resp.PaymentID).Error)
	assert.Equal(t, model.EventPaymentRequested, evt.EventType)
}

func TestSubmitPayment_LostInsertRaceReplaysWinner(t *testing.T) {
	svc, r, ctx := newTestService(t, model.ModeStrong)
	seedAccount(t, r, ctx, "acc-a", 100)
	seedAccount(t, r, ctx, "acc-b", 0)

	req := SubmitRequest{
		IdempotencyKey: "key-race-1",
		SourceID:       "acc-a",
		DestinationID:  "acc-b",
		Amount:         decimal.NewFromInt(25),
	}
	winner, err := svc.SubmitPayment(ctx, req)
	assert.NoError(t, err)

	// A submission that read the gate before the winner committed loses the
	// insert race and recovers by re-reading the stored record.
	recovered, err := svc.replayCommitted(ctx, req.IdempotencyKey, svc.Fingerprint(req))
	assert.NoError(t, err)
	assert.True(t, recovered.Replayed)
	assert.Equal(t, winner.PaymentID, recovered.PaymentID)
	assert.Equal(t, winner.Status, recovered.Status)

	// Funds moved exactly once.
	assert.Equal(t, "75", accountByID(t, r, ctx, "acc-a").AvailableBalance.String())
}

func TestSubmitPayment_LostInsertRaceConflictingBody(t *testing.T) {
	svc, r, ctx := newTestService(t, model.ModeStrong)
	seedAccount(t, r, ctx, "acc-a", 100)
	seedAccount(t, r, ctx, "acc-b", 0)

	req := SubmitRequest{
		IdempotencyKey: "key-race-2",
		SourceID:       "acc-a",
		DestinationID:  "acc-b",
		Amount:         decimal.NewFromInt(25),
	}
	_, err := svc.SubmitPayment(ctx, req)
	assert.NoError(t, err)

	req.Amount = decimal.NewFromInt(99)
	_, err = svc.replayCommitted(ctx, req.IdempotencyKey, svc.Fingerprint(req))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSubmitPayment_LostInsertRaceNoRecord(t *testing.T) {
	svc, _, ctx := newTestService(t, model.ModeStrong)
	_, err := svc.replayCommitted(ctx, "key-race-3", "deadbeef")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

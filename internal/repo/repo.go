package repo

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/paylab/ledgerlab/internal/model"
)

// ErrInsufficientFunds marks a business rejection; it is never retried.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrAccountNotFound is returned when a referenced account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Repository owns all storage access: postgres through gorm, redis for
// cross-process incident counters, kafka for the applied-payment audit
// stream.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns the underlying handle for starting transactions.
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// GetAccountForUpdate locks the account row for the rest of the transaction.
func (r *Repository) GetAccountForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Account, error) {
	var a model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LockAccountPair locks both accounts in sorted-ID order to avoid deadlocks
// between concurrent payments touching the same pair.
func (r *Repository) LockAccountPair(ctx context.Context, tx *gorm.DB, sourceID, destID string) (*model.Account, *model.Account, error) {
	firstID, secondID := sourceID, destID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}
	first, err := r.GetAccountForUpdate(ctx, tx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := r.GetAccountForUpdate(ctx, tx, secondID)
	if err != nil {
		return nil, nil, err
	}
	if first.ID == sourceID {
		return first, second, nil
	}
	return second, first, nil
}

func (r *Repository) CreateAccount(ctx context.Context, tx *gorm.DB, a *model.Account) error {
	return tx.WithContext(ctx).Create(a).Error
}

// SaveAccountBalances persists the mutated balance columns of a row-locked
// account. Version is reserved and left untouched.
func (r *Repository) SaveAccountBalances(ctx context.Context, tx *gorm.DB, a *model.Account) error {
	return tx.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"available_balance": a.AvailableBalance,
			"reserved_balance":  a.ReservedBalance,
		}).Error
}

func (r *Repository) CreatePayment(ctx context.Context, tx *gorm.DB, p *model.Payment) error {
	return tx.WithContext(ctx).Create(p).Error
}

// GetPayment loads a payment without locking.
func (r *Repository) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	var p model.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPaymentForUpdate locks the payment row; the worker uses this as the
// idempotence guard for repeated claims of the same logical payment.
func (r *Repository) GetPaymentForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Payment, error) {
	var p model.Payment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, tx *gorm.DB, id string, status model.PaymentStatus) error {
	return tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", id).Update("status", status).Error
}

// CreateLedgerPair inserts the debit/credit legs of one payment atomically
// within the caller's transaction.
func (r *Repository) CreateLedgerPair(ctx context.Context, tx *gorm.DB, debit, credit *model.LedgerEntry) error {
	if err := tx.WithContext(ctx).Create(debit).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(credit).Error
}

// GetIdempotencyKey loads a stored key record, or nil when the key is fresh.
func (r *Repository) GetIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*model.IdempotencyKey, error) {
	var rec model.IdempotencyKey
	err := tx.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) SaveIdempotencyKey(ctx context.Context, tx *gorm.DB, rec *model.IdempotencyKey) error {
	return tx.WithContext(ctx).Create(rec).Error
}

func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// LedgerImbalance sums all entry deltas; anything but zero is an incident.
func (r *Repository) LedgerImbalance(ctx context.Context) (decimal.Decimal, error) {
	var raw decimal.NullDecimal
	err := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).
		Select("COALESCE(SUM(delta), 0)").Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	return raw.Decimal, nil
}

// SumEntryDeltas recomputes one account's balance movement from its full
// entry history.
func (r *Repository) SumEntryDeltas(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var raw decimal.NullDecimal
	err := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(delta), 0)").Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	return raw.Decimal, nil
}

func (r *Repository) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.WithContext(ctx).Order("id").Find(&accounts).Error
	return accounts, err
}

func (r *Repository) CountPaymentsByStatus(ctx context.Context, status model.PaymentStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("status = ?", status).Count(&n).Error
	return n, err
}

// CountNegativeBalances reports accounts violating the non-negativity
// invariant on either balance column.
func (r *Repository) CountNegativeBalances(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("available_balance < 0 OR reserved_balance < 0").Count(&n).Error
	return n, err
}

// Package mode encodes the three consistency policies. A Strategy is picked
// once at configuration time and passed to both the intake service and the
// worker; the sync half runs inside the request transaction, the async half
// inside the worker's claimed-event transaction.
package mode

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/messages"
	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
)

// Request is the validated intake request handed to the sync half.
type Request struct {
	PaymentID      string
	IdempotencyKey string
	RequestHash    string
	SourceID       string
	DestinationID  string
	Amount         decimal.Decimal
}

type Strategy interface {
	Mode() model.Mode
	// ApplySync performs the synchronous portion and persists the payment
	// row with its resulting status. Business rejections are expressed in
	// the returned status, not as errors.
	ApplySync(ctx context.Context, tx *gorm.DB, req Request) (model.PaymentStatus, error)
	// ApplyAsync performs the asynchronous portion for a claimed outbox
	// event. It must be idempotent under repeated claims: a payment already
	// in a terminal status is left untouched.
	ApplyAsync(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent, payload model.EventPayload) (model.PaymentStatus, error)
}

// InvariantError marks a permanent processing failure. The worker
// dead-letters the event instead of retrying.
type InvariantError struct {
	Kind messages.Kind
}

func (e *InvariantError) Error() string { return messages.Text(e.Kind) }

// Select returns the strategy for a consistency mode.
func Select(m model.Mode, r *repo.Repository) (Strategy, error) {
	switch m {
	case model.ModeStrong:
		return &Strong{repo: r}, nil
	case model.ModeHybrid:
		return &Hybrid{repo: r}, nil
	case model.ModeEventual:
		return &Eventual{repo: r}, nil
	}
	return nil, fmt.Errorf("unknown consistency mode %q", m)
}

func newPayment(req Request, m model.Mode, status model.PaymentStatus) *model.Payment {
	return &model.Payment{
		ID:             req.PaymentID,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    req.RequestHash,
		SourceID:       req.SourceID,
		DestinationID:  req.DestinationID,
		Amount:         req.Amount,
		Mode:           m,
		Status:         status,
	}
}

// writeLedgerPair records the debit/credit legs for a moved amount. The two
// deltas sum to zero by construction.
func writeLedgerPair(ctx context.Context, r *repo.Repository, tx *gorm.DB, paymentID, sourceID, destID string, amount decimal.Decimal) error {
	debit := &model.LedgerEntry{
		ID:        "led-" + uuid.NewString(),
		PaymentID: paymentID,
		AccountID: sourceID,
		Kind:      model.EntryDebit,
		Delta:     amount.Neg(),
	}
	credit := &model.LedgerEntry{
		ID:        "led-" + uuid.NewString(),
		PaymentID: paymentID,
		AccountID: destID,
		Kind:      model.EntryCredit,
		Delta:     amount,
	}
	return r.CreateLedgerPair(ctx, tx, debit, credit)
}

func writeOutboxEvent(ctx context.Context, r *repo.Repository, tx *gorm.DB, eventType model.EventType, req Request) error {
	payload := model.EventPayload{
		PaymentID:     req.PaymentID,
		SourceID:      req.SourceID,
		DestinationID: req.DestinationID,
		Amount:        req.Amount.String(),
	}
	body, err := payloadJSON(payload)
	if err != nil {
		return err
	}
	evt := &model.OutboxEvent{
		ID:            "evt-" + uuid.NewString(),
		AggregateType: "payment",
		AggregateID:   req.PaymentID,
		EventType:     eventType,
		Payload:       body,
		Status:        model.OutboxPending,
	}
	return r.CreateOutboxEvent(ctx, tx, evt)
}

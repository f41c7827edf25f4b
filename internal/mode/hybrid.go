package mode

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/messages"
	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
)

// Hybrid validates and reserves funds synchronously, then settles the
// reservation asynchronously from the outbox.
type Hybrid struct {
	repo *repo.Repository
}

func (h *Hybrid) Mode() model.Mode { return model.ModeHybrid }

func (h *Hybrid) ApplySync(ctx context.Context, tx *gorm.DB, req Request) (model.PaymentStatus, error) {
	source, _, err := h.repo.LockAccountPair(ctx, tx, req.SourceID, req.DestinationID)
	if err != nil {
		return "", err
	}
	if source.AvailableBalance.LessThan(req.Amount) {
		p := newPayment(req, model.ModeHybrid, model.PaymentRejected)
		if err := h.repo.CreatePayment(ctx, tx, p); err != nil {
			return "", err
		}
		return model.PaymentRejected, nil
	}
	source.AvailableBalance = source.AvailableBalance.Sub(req.Amount)
	source.ReservedBalance = source.ReservedBalance.Add(req.Amount)
	if err := h.repo.SaveAccountBalances(ctx, tx, source); err != nil {
		return "", err
	}
	p := newPayment(req, model.ModeHybrid, model.PaymentReserved)
	if err := h.repo.CreatePayment(ctx, tx, p); err != nil {
		return "", err
	}
	if err := writeOutboxEvent(ctx, h.repo, tx, model.EventPaymentReserved, req); err != nil {
		return "", err
	}
	return model.PaymentReserved, nil
}

// ApplyAsync converts the reservation into final ledger entries.
func (h *Hybrid) ApplyAsync(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent, payload model.EventPayload) (model.PaymentStatus, error) {
	if evt.EventType != model.EventPaymentReserved {
		return "", &InvariantError{Kind: messages.KindInvariantViolation}
	}
	_, amount, err := DecodePayload(evt.Payload)
	if err != nil {
		return "", err
	}
	p, err := h.repo.GetPaymentForUpdate(ctx, tx, payload.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", invariantNotFound()
		}
		return "", err
	}
	if p.Status.Terminal() {
		return p.Status, nil
	}
	source, dest, err := h.repo.LockAccountPair(ctx, tx, payload.SourceID, payload.DestinationID)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return "", invariantNotFound()
		}
		return "", err
	}
	// The reservation was taken at intake; running out of reserved funds
	// here means the ledger already drifted.
	if source.ReservedBalance.LessThan(amount) {
		return "", &InvariantError{Kind: messages.KindReservedUnderflow}
	}
	source.ReservedBalance = source.ReservedBalance.Sub(amount)
	dest.AvailableBalance = dest.AvailableBalance.Add(amount)
	if err := h.repo.SaveAccountBalances(ctx, tx, source); err != nil {
		return "", err
	}
	if err := h.repo.SaveAccountBalances(ctx, tx, dest); err != nil {
		return "", err
	}
	if err := writeLedgerPair(ctx, h.repo, tx, p.ID, payload.SourceID, payload.DestinationID, amount); err != nil {
		return "", err
	}
	if err := h.repo.UpdatePaymentStatus(ctx, tx, p.ID, model.PaymentApplied); err != nil {
		return "", err
	}
	return model.PaymentApplied, nil
}

func invariantNotFound() error {
	return &InvariantError{Kind: messages.KindInvariantViolation}
}

package mode

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/messages"
	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
)

// Eventual admits the payment without touching balances; the funds check and
// full ledger application happen asynchronously.
type Eventual struct {
	repo *repo.Repository
}

func (e *Eventual) Mode() model.Mode { return model.ModeEventual }

func (e *Eventual) ApplySync(ctx context.Context, tx *gorm.DB, req Request) (model.PaymentStatus, error) {
	p := newPayment(req, model.ModeEventual, model.PaymentPending)
	if err := e.repo.CreatePayment(ctx, tx, p); err != nil {
		return "", err
	}
	if err := writeOutboxEvent(ctx, e.repo, tx, model.EventPaymentRequested, req); err != nil {
		return "", err
	}
	return model.PaymentPending, nil
}

// ApplyAsync performs the funds check and, when it passes, the full
// debit/credit application. An insufficient balance is a business rejection,
// never a retry.
func (e *Eventual) ApplyAsync(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent, payload model.EventPayload) (model.PaymentStatus, error) {
	if evt.EventType != model.EventPaymentRequested {
		return "", &InvariantError{Kind: messages.KindInvariantViolation}
	}
	_, amount, err := DecodePayload(evt.Payload)
	if err != nil {
		return "", err
	}
	p, err := e.repo.GetPaymentForUpdate(ctx, tx, payload.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", invariantNotFound()
		}
		return "", err
	}
	if p.Status.Terminal() {
		return p.Status, nil
	}
	source, dest, err := e.repo.LockAccountPair(ctx, tx, payload.SourceID, payload.DestinationID)
	if err != nil {
		if errors.Is(err, repo.ErrAccountNotFound) {
			return "", invariantNotFound()
		}
		return "", err
	}
	if source.AvailableBalance.LessThan(amount) {
		if err := e.repo.UpdatePaymentStatus(ctx, tx, p.ID, model.PaymentRejected); err != nil {
			return "", err
		}
		return model.PaymentRejected, nil
	}
	source.AvailableBalance = source.AvailableBalance.Sub(amount)
	dest.AvailableBalance = dest.AvailableBalance.Add(amount)
	if err := e.repo.SaveAccountBalances(ctx, tx, source); err != nil {
		return "", err
	}
	if err := e.repo.SaveAccountBalances(ctx, tx, dest); err != nil {
		return "", err
	}
	if err := writeLedgerPair(ctx, e.repo, tx, p.ID, payload.SourceID, payload.DestinationID, amount); err != nil {
		return "", err
	}
	if err := e.repo.UpdatePaymentStatus(ctx, tx, p.ID, model.PaymentApplied); err != nil {
		return "", err
	}
	return model.PaymentApplied, nil
}

package mode

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
)

// Strong applies the full debit/credit inside the request transaction.
// No outbox event is produced and the async half is a no-op.
type Strong struct {
	repo *repo.Repository
}

func (s *Strong) Mode() model.Mode { return model.ModeStrong }

func (s *Strong) ApplySync(ctx context.Context, tx *gorm.DB, req Request) (model.PaymentStatus, error) {
	source, dest, err := s.repo.LockAccountPair(ctx, tx, req.SourceID, req.DestinationID)
	if err != nil {
		return "", err
	}
	if source.AvailableBalance.LessThan(req.Amount) {
		p := newPayment(req, model.ModeStrong, model.PaymentRejected)
		if err := s.repo.CreatePayment(ctx, tx, p); err != nil {
			return "", err
		}
		return model.PaymentRejected, nil
	}
	source.AvailableBalance = source.AvailableBalance.Sub(req.Amount)
	dest.AvailableBalance = dest.AvailableBalance.Add(req.Amount)
	if err := s.repo.SaveAccountBalances(ctx, tx, source); err != nil {
		return "", err
	}
	if err := s.repo.SaveAccountBalances(ctx, tx, dest); err != nil {
		return "", err
	}
	p := newPayment(req, model.ModeStrong, model.PaymentApplied)
	if err := s.repo.CreatePayment(ctx, tx, p); err != nil {
		return "", err
	}
	if err := writeLedgerPair(ctx, s.repo, tx, req.PaymentID, req.SourceID, req.DestinationID, req.Amount); err != nil {
		return "", err
	}
	return model.PaymentApplied, nil
}

// ApplyAsync only acknowledges; strong mode never enqueues events, so it is
// reached only if an event was enqueued by mistake.
func (s *Strong) ApplyAsync(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent, payload model.EventPayload) (model.PaymentStatus, error) {
	p, err := s.repo.GetPaymentForUpdate(ctx, tx, payload.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", invariantNotFound()
		}
		return "", err
	}
	return p.Status, nil
}

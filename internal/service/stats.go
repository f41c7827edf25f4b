package service

import (
	"context"

	"github.com/paylab/ledgerlab/internal/messages"
	"github.com/paylab/ledgerlab/internal/model"
)

// Stats is the read-only observability snapshot for external tooling.
type Stats struct {
	Payments         map[string]int64 `json:"payments"`
	OutboxPending    int64            `json:"outbox_pending"`
	OutboxProcessing int64            `json:"outbox_processing"`
	OutboxDone       int64            `json:"outbox_done"`
	OutboxDead       int64            `json:"outbox_dead"`
	LedgerImbalance  string           `json:"ledger_imbalance"`
	NegativeBalances int64            `json:"negative_balances"`
	Incidents        map[string]int64 `json:"incidents"`
}

var incidentKinds = []messages.Kind{
	messages.KindLedgerImbalance,
	messages.KindNegativeBalance,
	messages.KindBalanceDrift,
	messages.KindStuckLease,
	messages.KindInvariantViolation,
}

// Snapshot reads current counts; it never mutates state.
func (s *PaymentService) Snapshot(ctx context.Context) (Stats, error) {
	stats := Stats{Payments: make(map[string]int64)}
	for _, status := range []model.PaymentStatus{
		model.PaymentPending, model.PaymentReserved, model.PaymentApplied,
		model.PaymentRejected, model.PaymentFailed,
	} {
		n, err := s.repo.CountPaymentsByStatus(ctx, status)
		if err != nil {
			return Stats{}, err
		}
		stats.Payments[string(status)] = n
	}
	for status, dst := range map[model.OutboxStatus]*int64{
		model.OutboxPending:    &stats.OutboxPending,
		model.OutboxProcessing: &stats.OutboxProcessing,
		model.OutboxDone:       &stats.OutboxDone,
		model.OutboxDead:       &stats.OutboxDead,
	} {
		n, err := s.repo.CountEventsByStatus(ctx, status)
		if err != nil {
			return Stats{}, err
		}
		*dst = n
	}
	imbalance, err := s.repo.LedgerImbalance(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.LedgerImbalance = imbalance.String()
	negative, err := s.repo.CountNegativeBalances(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.NegativeBalances = negative
	incidents, err := s.repo.IncidentCounts(ctx, incidentKinds)
	if err != nil {
		// The snapshot stays useful without the shared counters.
		s.log.Warnf("incident counters unavailable: %v", err)
		incidents = map[string]int64{}
	}
	stats.Incidents = incidents
	return stats, nil
}

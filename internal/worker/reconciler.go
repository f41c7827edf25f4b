package worker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paylab/ledgerlab/internal/messages"
	"github.com/paylab/ledgerlab/internal/repo"
)

// stuckLeaseFactor: an event still PROCESSING this many lease timeouts past
// expiry without being re-claimed counts as drift.
const stuckLeaseFactor = 3

// Report summarizes one reconciliation pass.
type Report struct {
	Imbalance        decimal.Decimal
	DriftAccounts    []string
	NegativeAccounts []string
	StuckEvents      int
}

func (r Report) Clean() bool {
	return r.Imbalance.IsZero() && len(r.DriftAccounts) == 0 &&
		len(r.NegativeAccounts) == 0 && r.StuckEvents == 0
}

// Reconciler audits ledger invariants at runtime. It only observes and
// reports; correction is an operator action.
type Reconciler struct {
	repo         *repo.Repository
	leaseTimeout time.Duration
	log          *zap.SugaredLogger
}

func NewReconciler(r *repo.Repository, leaseTimeout time.Duration, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{repo: r, leaseTimeout: leaseTimeout, log: logger}
}

// RunOnce scans the full ledger. Every account's stored balance is
// recomputed from its entry history against the seeded opening balance.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	imbalance, err := r.repo.LedgerImbalance(ctx)
	if err != nil {
		return report, err
	}
	report.Imbalance = imbalance
	if !imbalance.IsZero() {
		r.incident(ctx, messages.KindLedgerImbalance, "imbalance", imbalance.String())
	}

	accounts, err := r.repo.ListAccounts(ctx)
	if err != nil {
		return report, err
	}
	for _, account := range accounts {
		if account.AvailableBalance.IsNegative() || account.ReservedBalance.IsNegative() {
			report.NegativeAccounts = append(report.NegativeAccounts, account.ID)
			r.incident(ctx, messages.KindNegativeBalance, "account", account.ID)
		}
		deltas, err := r.repo.SumEntryDeltas(ctx, account.ID)
		if err != nil {
			return report, err
		}
		expected := account.OpeningBalance.Add(deltas)
		stored := account.AvailableBalance.Add(account.ReservedBalance)
		if !stored.Equal(expected) {
			report.DriftAccounts = append(report.DriftAccounts, account.ID)
			r.incident(ctx, messages.KindBalanceDrift, "account", account.ID,
				"stored", stored.String(), "expected", expected.String())
		}
	}

	stuck, err := r.repo.StuckEvents(ctx, time.Now(), stuckLeaseFactor*r.leaseTimeout)
	if err != nil {
		return report, err
	}
	report.StuckEvents = len(stuck)
	for _, evt := range stuck {
		r.incident(ctx, messages.KindStuckLease, "event", evt.ID, "attempts", evt.Attempts)
	}
	return report, nil
}

func (r *Reconciler) incident(ctx context.Context, kind messages.Kind, kv ...interface{}) {
	args := append([]interface{}{"kind", kind, "msg", messages.Text(kind)}, kv...)
	r.log.Errorw("reconciliation incident", args...)
	_ = r.repo.BumpIncident(ctx, kind)
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/faultinject"
	"github.com/paylab/ledgerlab/internal/messages"
	"github.com/paylab/ledgerlab/internal/mode"
	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
)

// FaultDecider is the injector port; tests substitute scripted faults.
type FaultDecider interface {
	Decide(operationID string, attempt int) faultinject.Fault
	Profile() faultinject.Profile
}

// Config holds the poller's recognized knobs.
type Config struct {
	LeaseTimeout time.Duration
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BackoffBase  time.Duration
}

// Poller claims pending outbox events exclusively, runs the mode strategy's
// async half, and applies retry/backoff with dead-lettering.
type Poller struct {
	repo     *repo.Repository
	strategy mode.Strategy
	injector FaultDecider
	cfg      Config
	log      *zap.SugaredLogger
}

func NewPoller(r *repo.Repository, strategy mode.Strategy, injector FaultDecider, cfg Config, logger *zap.SugaredLogger) *Poller {
	return &Poller{repo: r, strategy: strategy, injector: injector, cfg: cfg, log: logger}
}

// ProcessAvailable claims and processes one batch. It returns the number of
// events this worker won the claim for.
func (p *Poller) ProcessAvailable(ctx context.Context) int {
	now := time.Now()
	ids, err := p.repo.PollCandidates(ctx, now, p.cfg.BatchSize)
	if err != nil {
		p.log.Errorf("poll outbox: %v", err)
		return 0
	}
	claimed := 0
	for _, id := range ids {
		ok, err := p.repo.ClaimEvent(ctx, id, now, p.cfg.LeaseTimeout)
		if err != nil {
			p.log.Errorf("claim %s: %v", id, err)
			continue
		}
		if !ok {
			// Another worker won the race.
			continue
		}
		claimed++
		p.processClaimed(ctx, id)
	}
	return claimed
}

// processClaimed runs one claimed event in its own transaction and routes
// the outcome: DONE, retry with backoff, or dead-letter.
func (p *Poller) processClaimed(ctx context.Context, id string) {
	var (
		attempt int
		status  model.PaymentStatus
		payment string
	)
	err := p.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		evt, err := p.repo.GetOutboxEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		attempt = evt.Attempts + 1
		payment = evt.AggregateID
		if err := p.injectFault(id, attempt); err != nil {
			return err
		}
		payload, _, err := mode.DecodePayload(evt.Payload)
		if err != nil {
			return err
		}
		status, err = p.strategy.ApplyAsync(ctx, tx, evt, payload)
		if err != nil {
			return err
		}
		return p.repo.MarkEventDone(ctx, tx, id, attempt)
	})
	if err == nil {
		p.log.Infow("event done", "event", id, "payment", payment, "status", status, "attempt", attempt)
		p.publishTerminal(ctx, id, payment, status)
		return
	}

	var inv *mode.InvariantError
	if errors.As(err, &inv) {
		p.deadLetter(ctx, id, payment, attempt, inv.Kind)
		return
	}
	p.retryOrDead(ctx, id, payment, attempt, err)
}

func (p *Poller) injectFault(id string, attempt int) error {
	if p.injector == nil {
		return nil
	}
	switch p.injector.Decide("event:"+id, attempt) {
	case faultinject.FaultStorageDelay:
		time.Sleep(p.injector.Profile().DelayDuration)
	case faultinject.FaultProcessing:
		return fmt.Errorf("injected processing fault: event %s attempt %d", id, attempt)
	case faultinject.FaultDependency:
		return fmt.Errorf("injected dependency fault: event %s attempt %d", id, attempt)
	}
	return nil
}

// retryOrDead handles a transient failure: back off and return the event to
// PENDING, or dead-letter once the attempt ceiling is exceeded.
func (p *Poller) retryOrDead(ctx context.Context, id, paymentID string, attempt int, cause error) {
	if attempt == 0 {
		// The event row never loaded, so the stored attempts counter is
		// still authoritative. Leave the claim to lapse with its lease.
		p.log.Warnw("event load failed", "event", id, "err", cause)
		return
	}
	if attempt >= p.cfg.MaxAttempts {
		p.log.Errorw("event exhausted retries", "event", id, "attempt", attempt, "err", cause)
		p.deadLetter(ctx, id, paymentID, attempt, messages.KindDependencyFailure)
		return
	}
	delay := p.Backoff(attempt)
	p.log.Warnw("event retry", "event", id, "attempt", attempt, "backoff", delay, "err", cause)
	if err := p.repo.MarkEventRetry(ctx, id, attempt, time.Now().Add(delay)); err != nil {
		p.log.Errorf("mark retry %s: %v", id, err)
	}
}

// deadLetter parks the event for audit and fails its payment unless the
// payment already reached a terminal status.
func (p *Poller) deadLetter(ctx context.Context, id, paymentID string, attempt int, kind messages.Kind) {
	if err := p.repo.MarkEventDead(ctx, id, attempt); err != nil {
		p.log.Errorf("mark dead %s: %v", id, err)
		return
	}
	if err := p.failPayment(ctx, paymentID); err != nil {
		p.log.Errorf("fail payment %s: %v", paymentID, err)
	}
	_ = p.repo.BumpIncident(ctx, kind)
	p.log.Errorw("event dead-lettered", "event", id, "payment", paymentID, "kind", kind, "msg", messages.Text(kind))
}

func (p *Poller) failPayment(ctx context.Context, paymentID string) error {
	return p.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := p.repo.GetPaymentForUpdate(ctx, tx, paymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if payment.Status.Terminal() {
			return nil
		}
		return p.repo.UpdatePaymentStatus(ctx, tx, paymentID, model.PaymentFailed)
	})
}

// publishTerminal feeds the audit stream once the ledger work is committed.
func (p *Poller) publishTerminal(ctx context.Context, eventID, paymentID string, status model.PaymentStatus) {
	if status != model.PaymentApplied && status != model.PaymentRejected {
		return
	}
	payment, err := p.repo.GetPayment(ctx, paymentID)
	if err != nil {
		p.log.Warnf("load payment %s for audit: %v", paymentID, err)
		return
	}
	if err := p.repo.PublishOutcome(ctx, payment, eventID); err != nil {
		p.log.Warnf("audit publish %s: %v", paymentID, err)
	}
}

// Backoff is monotonically increasing in the attempt count and bounded.
func (p *Poller) Backoff(attempt int) time.Duration {
	shift := attempt
	if shift > 6 {
		shift = 6
	}
	return p.cfg.BackoffBase << uint(shift)
}

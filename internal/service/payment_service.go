package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/faultinject"
	"github.com/paylab/ledgerlab/internal/messages"
	"github.com/paylab/ledgerlab/internal/mode"
	"github.com/paylab/ledgerlab/internal/model"
	"github.com/paylab/ledgerlab/internal/repo"
)

var (
	// ErrValidation rejects a malformed request before any transaction.
	ErrValidation = errors.New("invalid request")
	// ErrConflict rejects an idempotency key reused with a different
	// fingerprint. No state is mutated.
	ErrConflict = errors.New("idempotency conflict")
	// ErrTransient marks an infrastructure failure the caller may retry.
	ErrTransient = errors.New("transient failure")
)

// SubmitRequest is the intake boundary payload.
type SubmitRequest struct {
	IdempotencyKey string
	SourceID       string
	DestinationID  string
	Amount         decimal.Decimal
}

// SubmitResponse is stored verbatim for idempotent replay.
type SubmitResponse struct {
	PaymentID string              `json:"payment_id"`
	Status    model.PaymentStatus `json:"status"`
	Replayed  bool                `json:"-"`
}

// PaymentService runs intake: validation, the idempotency gate, the mode
// strategy's sync half and the outbox write, all in one transaction.
type PaymentService struct {
	repo     *repo.Repository
	strategy mode.Strategy
	injector *faultinject.Injector
	log      *zap.SugaredLogger
}

func NewPaymentService(r *repo.Repository, strategy mode.Strategy, injector *faultinject.Injector, logger *zap.SugaredLogger) *PaymentService {
	return &PaymentService{repo: r, strategy: strategy, injector: injector, log: logger}
}

// Fingerprint computes the canonical request hash used by the idempotency
// gate to detect key reuse with a different body.
func (s *PaymentService) Fingerprint(req SubmitRequest) string {
	canonical := fmt.Sprintf("%s|%s|%s|%s", req.IdempotencyKey, req.SourceID, req.DestinationID, req.Amount.String())
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// SubmitPayment processes one payment under the configured consistency mode.
// Duplicate retries with the same key and fingerprint replay the stored
// response and create no new state.
func (s *PaymentService) SubmitPayment(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if err := validate(req); err != nil {
		return SubmitResponse{}, err
	}
	if err := s.injectIntakeFault(req.IdempotencyKey); err != nil {
		return SubmitResponse{}, err
	}

	fingerprint := s.Fingerprint(req)
	var resp SubmitResponse
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.GetIdempotencyKey(ctx, tx, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.RequestHash != fingerprint {
				return fmt.Errorf("%w: %s", ErrConflict, messages.Text(messages.KindIdempotencyConflict))
			}
			if err := json.Unmarshal([]byte(existing.Response), &resp); err != nil {
				return fmt.Errorf("decode stored response: %w", err)
			}
			resp.Replayed = true
			return nil
		}

		paymentID := "pay-" + uuid.NewString()
		status, err := s.strategy.ApplySync(ctx, tx, mode.Request{
			PaymentID:      paymentID,
			IdempotencyKey: req.IdempotencyKey,
			RequestHash:    fingerprint,
			SourceID:       req.SourceID,
			DestinationID:  req.DestinationID,
			Amount:         req.Amount,
		})
		if err != nil {
			if errors.Is(err, repo.ErrAccountNotFound) {
				return fmt.Errorf("%w: %s", ErrValidation, messages.Text(messages.KindInvalidPayment))
			}
			return err
		}
		resp = SubmitResponse{PaymentID: paymentID, Status: status}
		body, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encode response snapshot: %w", err)
		}
		return s.repo.SaveIdempotencyKey(ctx, tx, &model.IdempotencyKey{
			Key:         req.IdempotencyKey,
			RequestHash: fingerprint,
			Response:    string(body),
		})
	})
	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) {
			return SubmitResponse{}, err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent submission with the same key won the insert race
			// and committed first. Its stored response answers this request.
			recovered, rerr := s.replayCommitted(ctx, req.IdempotencyKey, fingerprint)
			if rerr == nil {
				return recovered, nil
			}
			if errors.Is(rerr, ErrConflict) {
				return SubmitResponse{}, rerr
			}
		}
		s.log.Errorw("submit payment", "key", req.IdempotencyKey, "err", err)
		return SubmitResponse{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return resp, nil
}

// replayCommitted re-reads the idempotency record after losing an insert
// race and replays the winner's response when the fingerprints match.
func (s *PaymentService) replayCommitted(ctx context.Context, key, fingerprint string) (SubmitResponse, error) {
	stored, err := s.repo.GetIdempotencyKey(ctx, s.repo.DB(ctx), key)
	if err != nil {
		return SubmitResponse{}, err
	}
	if stored == nil {
		return SubmitResponse{}, gorm.ErrRecordNotFound
	}
	if stored.RequestHash != fingerprint {
		return SubmitResponse{}, fmt.Errorf("%w: %s", ErrConflict, messages.Text(messages.KindIdempotencyConflict))
	}
	var resp SubmitResponse
	if err := json.Unmarshal([]byte(stored.Response), &resp); err != nil {
		return SubmitResponse{}, fmt.Errorf("decode stored response: %w", err)
	}
	resp.Replayed = true
	return resp, nil
}

func validate(req SubmitRequest) error {
	if len(req.IdempotencyKey) < 8 || len(req.IdempotencyKey) > 128 {
		return fmt.Errorf("%w: idempotency key length", ErrValidation)
	}
	if req.SourceID == "" || req.DestinationID == "" {
		return fmt.Errorf("%w: %s", ErrValidation, messages.Text(messages.KindInvalidPayment))
	}
	if req.SourceID == req.DestinationID {
		return fmt.Errorf("%w: source and destination must differ", ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return nil
}

// injectIntakeFault applies the deterministic fault decision for this
// request. Intake is never retried internally, so attempt is always 1.
func (s *PaymentService) injectIntakeFault(key string) error {
	if s.injector == nil {
		return nil
	}
	switch s.injector.Decide("intake:"+key, 1) {
	case faultinject.FaultStorageDelay:
		time.Sleep(s.injector.Profile().DelayDuration)
	case faultinject.FaultProcessing, faultinject.FaultDependency:
		return fmt.Errorf("%w: %s", ErrTransient, messages.Text(messages.KindDependencyFailure))
	}
	return nil
}

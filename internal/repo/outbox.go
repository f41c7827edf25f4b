package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/paylab/ledgerlab/internal/model"
)

// PollCandidates lists event ids eligible for claiming: PENDING rows whose
// backoff delay has elapsed, plus PROCESSING rows whose lease expired.
// Candidates are only hints; ownership is taken by ClaimEvent.
func (r *Repository) PollCandidates(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("(status = ? AND (lease_expires_at IS NULL OR lease_expires_at <= ?)) OR (status = ? AND lease_expires_at <= ?)",
			model.OutboxPending, now, model.OutboxProcessing, now).
		Order("created_at, id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ClaimEvent takes exclusive ownership of one event by a conditional update.
// Exactly one of any number of racing claimants observes claimed=true; the
// rest see RowsAffected 0. The lease expiry doubles as the retry-backoff
// timestamp while the event is PENDING.
func (r *Repository) ClaimEvent(ctx context.Context, id string, now time.Time, leaseTimeout time.Duration) (bool, error) {
	lease := now.Add(leaseTimeout)
	res := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ? AND ((status = ? AND (lease_expires_at IS NULL OR lease_expires_at <= ?)) OR (status = ? AND lease_expires_at <= ?))",
			id, model.OutboxPending, now, model.OutboxProcessing, now).
		Updates(map[string]interface{}{
			"status":           model.OutboxProcessing,
			"lease_expires_at": lease,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetOutboxEvent loads one event.
func (r *Repository) GetOutboxEvent(ctx context.Context, tx *gorm.DB, id string) (*model.OutboxEvent, error) {
	var evt model.OutboxEvent
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&evt).Error; err != nil {
		return nil, err
	}
	return &evt, nil
}

// MarkEventDone finishes an event. Done events are retained for audit.
func (r *Repository) MarkEventDone(ctx context.Context, tx *gorm.DB, id string, attempts int) error {
	return tx.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           model.OutboxDone,
			"attempts":         attempts,
			"lease_expires_at": nil,
		}).Error
}

// MarkEventRetry returns the event to PENDING with a backoff deadline.
func (r *Repository) MarkEventRetry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           model.OutboxPending,
			"attempts":         attempts,
			"lease_expires_at": nextAttemptAt,
		}).Error
}

// MarkEventDead dead-letters an event; it is excluded from further claims
// but never deleted.
func (r *Repository) MarkEventDead(ctx context.Context, id string, attempts int) error {
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           model.OutboxDead,
			"attempts":         attempts,
			"lease_expires_at": nil,
		}).Error
}

func (r *Repository) CountEventsByStatus(ctx context.Context, status model.OutboxStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("status = ?", status).Count(&n).Error
	return n, err
}

// StuckEvents lists PROCESSING events whose lease expired longer ago than
// the given horizon; recovery should have re-claimed them by now.
func (r *Repository) StuckEvents(ctx context.Context, now time.Time, horizon time.Duration) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND lease_expires_at <= ?", model.OutboxProcessing, now.Add(-horizon)).
		Find(&events).Error
	return events, err
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"github.com/paylab/ledgerlab/internal/messages"
	"github.com/paylab/ledgerlab/internal/model"
)

const incidentKeyPrefix = "incident:"

// BumpIncident increments the cross-process counter for an incident kind.
// Redis being down must not hide the incident, so failures are logged and
// reported to the caller for local counting.
func (r *Repository) BumpIncident(ctx context.Context, kind messages.Kind) error {
	if r.rdb == nil {
		return nil
	}
	if err := r.rdb.Incr(ctx, incidentKeyPrefix+string(kind)).Err(); err != nil {
		r.log.Warnf("incident counter %s: %v", kind, err)
		return err
	}
	return nil
}

// IncidentCounts reads all incident counters for the stats snapshot.
func (r *Repository) IncidentCounts(ctx context.Context, kinds []messages.Kind) (map[string]int64, error) {
	counts := make(map[string]int64, len(kinds))
	if r.rdb == nil {
		return counts, nil
	}
	for _, kind := range kinds {
		val, err := r.rdb.Get(ctx, incidentKeyPrefix+string(kind)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		counts[string(kind)] = val
	}
	return counts, nil
}

// PublishOutcome emits a payment's terminal outcome onto the audit stream
// once its outbox event reached DONE. The ledger is already committed; a
// publish failure is logged, not retried, because the outbox row itself is
// the durable record.
func (r *Repository) PublishOutcome(ctx context.Context, p *model.Payment, eventID string) error {
	if r.writer == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]interface{}{
		"payment_id":  p.ID,
		"source":      p.SourceID,
		"destination": p.DestinationID,
		"amount":      p.Amount,
		"status":      p.Status,
		"event_id":    eventID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(p.ID),
		Value: payload,
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

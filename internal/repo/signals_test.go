package repo

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/paylab/ledgerlab/internal/messages"
)

func TestBumpIncident_IncrementsCounter(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectIncr("incident:LEDGER_IMBALANCE").SetVal(1)

	r := NewRepository(nil, rdb, nil, zap.NewNop().Sugar())
	assert.NoError(t, r.BumpIncident(context.Background(), messages.KindLedgerImbalance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncidentCounts_MissingKeyIsZero(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet("incident:LEDGER_IMBALANCE").SetVal("3")
	mock.ExpectGet("incident:STUCK_LEASE").RedisNil()

	r := NewRepository(nil, rdb, nil, zap.NewNop().Sugar())
	counts, err := r.IncidentCounts(context.Background(), []messages.Kind{
		messages.KindLedgerImbalance, messages.KindStuckLease,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), counts["LEDGER_IMBALANCE"])
	assert.Equal(t, int64(0), counts["STUCK_LEASE"])
}

func TestIncidentSignals_NoRedisIsNoop(t *testing.T) {
	r := NewRepository(nil, nil, nil, zap.NewNop().Sugar())
	assert.NoError(t, r.BumpIncident(context.Background(), messages.KindStuckLease))
	counts, err := r.IncidentCounts(context.Background(), []messages.Kind{messages.KindStuckLease})
	assert.NoError(t, err)
	assert.Empty(t, counts)
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryDebit  EntryKind = "DEBIT"
	EntryCredit EntryKind = "CREDIT"
)

// LedgerEntry is one leg of a double-entry pair. Entries are immutable and
// the two deltas of a payment always sum to zero.
type LedgerEntry struct {
	ID        string          `gorm:"primaryKey;size:64"`
	PaymentID string          `gorm:"size:64;not null;index"`
	AccountID string          `gorm:"size:64;not null;index"`
	Kind      EntryKind       `gorm:"size:8;not null"`
	Delta     decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	CreatedAt time.Time       `gorm:"autoCreateTime;index"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

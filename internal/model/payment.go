package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects when ledger mutation happens relative to the intake response.
type Mode string

const (
	ModeStrong   Mode = "strong"
	ModeHybrid   Mode = "hybrid"
	ModeEventual Mode = "eventual"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeStrong, ModeHybrid, ModeEventual:
		return Mode(s), true
	}
	return "", false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentReserved PaymentStatus = "RESERVED"
	PaymentApplied  PaymentStatus = "APPLIED"
	PaymentRejected PaymentStatus = "REJECTED"
	PaymentFailed   PaymentStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentApplied || s == PaymentRejected || s == PaymentFailed
}

type Payment struct {
	ID             string          `gorm:"primaryKey;size:64"`
	IdempotencyKey string          `gorm:"size:128;not null;uniqueIndex"`
	RequestHash    string          `gorm:"size:64;not null"`
	SourceID       string          `gorm:"size:64;not null;index"`
	DestinationID  string          `gorm:"size:64;not null;index"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Mode           Mode            `gorm:"size:16;not null"`
	Status         PaymentStatus   `gorm:"size:16;not null;index"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

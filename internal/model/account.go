package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID               string          `gorm:"primaryKey;size:64"`
	AvailableBalance decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	ReservedBalance  decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	OpeningBalance   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	// Version is reserved for optimistic locking; concurrency control
	// currently relies on row locks only.
	Version   uint64    `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Account) TableName() string { return "accounts" }

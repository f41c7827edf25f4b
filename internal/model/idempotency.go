package model

import "time"

// IdempotencyKey stores the fingerprint and response snapshot of the first
// intake for a given client key. Rows are write-once.
type IdempotencyKey struct {
	Key         string    `gorm:"primaryKey;size:128"`
	RequestHash string    `gorm:"size:64;not null"`
	Response    string    `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (IdempotencyKey) TableName() string { return "idempotency_keys" }

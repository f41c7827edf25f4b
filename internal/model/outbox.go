package model

import "time"

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxDone       OutboxStatus = "DONE"
	OutboxDead       OutboxStatus = "DEAD"
)

type EventType string

const (
	// EventPaymentReserved asks the worker to settle a hybrid reservation.
	EventPaymentReserved EventType = "PAYMENT_RESERVED"
	// EventPaymentRequested asks the worker to run the full eventual flow.
	EventPaymentRequested EventType = "PAYMENT_REQUESTED"
)

type OutboxEvent struct {
	ID             string       `gorm:"primaryKey;size:64"`
	AggregateType  string       `gorm:"size:64;not null"`
	AggregateID    string       `gorm:"size:64;not null;index"`
	EventType      EventType    `gorm:"size:64;not null;index"`
	Payload        string       `gorm:"type:jsonb;not null"`
	Status         OutboxStatus `gorm:"size:16;not null;index"`
	Attempts       int          `gorm:"not null;default:0"`
	LeaseExpiresAt *time.Time   `gorm:"index"`
	CreatedAt      time.Time    `gorm:"autoCreateTime;index"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// EventPayload is the serialized body of an OutboxEvent.
type EventPayload struct {
	PaymentID     string `json:"payment_id"`
	SourceID      string `json:"source_account_id"`
	DestinationID string `json:"destination_account_id"`
	Amount        string `json:"amount"`
}

package model

import "time"

// Outbox statuses.
const (
	OutboxPending   = "PENDING"
	OutboxPublished = "PUBLISHED"
	OutboxFailed    = "FAILED"
)

// OutboxEntry is appended in the same transaction as the mutation it
// describes; a separate dispatcher drains it to the broker.
type OutboxEntry struct {
	ID          uint64    `gorm:"primaryKey"`
	TenantID    string    `gorm:"size:36;not null;index:idx_outbox_status"`
	Topic       string    `gorm:"size:128;not null"`
	Payload     string    `gorm:"type:jsonb;not null"`
	Status      string    `gorm:"size:16;not null;default:'PENDING';index:idx_outbox_status"`
	Error       *string   `gorm:"size:512"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	ProcessedAt *time.Time
}

func (OutboxEntry) TableName() string { return "event_outbox" }

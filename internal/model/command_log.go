package model

import "time"

// CommandLog records an executed idempotency-keyed command so a retry with
// the same key returns the stored outcome instead of mutating again.
type CommandLog struct {
	ID             uint64    `gorm:"primaryKey"`
	TenantID       string    `gorm:"size:36;not null;uniqueIndex:ux_command_key"`
	IdempotencyKey string    `gorm:"size:64;not null;uniqueIndex:ux_command_key"`
	Action         string    `gorm:"size:64;not null;uniqueIndex:ux_command_key"`
	ResultData     string    `gorm:"type:jsonb"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (CommandLog) TableName() string { return "command_log" }

package model

import "time"

// Partner is shared master data referenced by documents. Renames fan out
// to dependent document projections via a propagation event.
type Partner struct {
	ID        string    `gorm:"primaryKey;size:36"`
	TenantID  string    `gorm:"size:36;not null;index:idx_partner_tenant"`
	Name      string    `gorm:"size:256;not null"`
	Version   uint64    `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Partner) TableName() string { return "partner" }

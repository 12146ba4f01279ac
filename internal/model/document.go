package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document is a posted business document: versioned header plus owned lines.
// Version is the optimistic concurrency token and grows by exactly one on
// every successful mutation.
type Document struct {
	ID        string          `gorm:"primaryKey;size:36"`
	TenantID  string          `gorm:"size:36;not null;index:idx_document_tenant"`
	DocNo     string          `gorm:"size:64;not null"`
	PartnerID string          `gorm:"size:36;index:idx_document_partner"`
	Status    string          `gorm:"size:32;not null;default:'DRAFT'"`
	Notes     string          `gorm:"size:1024"`
	Total     decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	Version   uint64          `gorm:"not null;default:0"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (Document) TableName() string { return "document" }

// DocumentLine belongs to exactly one document and is replaced, never
// merged, when the document is updated.
type DocumentLine struct {
	ID          uint64          `gorm:"primaryKey"`
	DocumentID  string          `gorm:"size:36;not null;index:idx_line_document"`
	LineNo      int             `gorm:"not null"`
	Description string          `gorm:"size:256"`
	Quantity    decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,8);not null"`
}

func (DocumentLine) TableName() string { return "document_line" }

// Document statuses.
const (
	DocStatusDraft  = "DRAFT"
	DocStatusPosted = "POSTED"
	DocStatusVoid   = "VOID"
)

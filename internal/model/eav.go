package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EAV field primitive types.
const (
	FieldText    = "TEXT"
	FieldNumber  = "NUMBER"
	FieldDate    = "DATE"
	FieldBoolean = "BOOLEAN"
)

// ObjectDefinition is a runtime-defined object type. Re-defining a type
// inserts a new version and clears the active flag on the previous one;
// existing records stay bound to the version they were created under.
type ObjectDefinition struct {
	ID        uint64        `gorm:"primaryKey"`
	TenantID  string        `gorm:"size:36;not null;index:idx_definition_type"`
	TypeCode  string        `gorm:"size:64;not null;index:idx_definition_type"`
	Version   int           `gorm:"not null;default:1"`
	Active    bool          `gorm:"not null;default:true"`
	CreatedAt time.Time     `gorm:"autoCreateTime"`
	Fields    []ObjectField `gorm:"foreignKey:DefinitionID"`
}

func (ObjectDefinition) TableName() string { return "object_definition" }

// ObjectField declares one typed attribute of an object definition.
type ObjectField struct {
	ID           uint64 `gorm:"primaryKey"`
	DefinitionID uint64 `gorm:"not null;index:idx_field_definition"`
	Name         string `gorm:"size:64;not null"`
	DataType     string `gorm:"size:16;not null"`
	Required     bool   `gorm:"not null;default:false"`
}

func (ObjectField) TableName() string { return "object_field" }

// ObjectRecord is one instance of a runtime-defined object.
type ObjectRecord struct {
	ID           uint64            `gorm:"primaryKey"`
	PublicID     string            `gorm:"size:36;not null;uniqueIndex:ux_record_public"`
	TenantID     string            `gorm:"size:36;not null;index:idx_record_tenant"`
	DefinitionID uint64            `gorm:"not null"`
	CreatedAt    time.Time         `gorm:"autoCreateTime"`
	Attributes   []RecordAttribute `gorm:"foreignKey:RecordID"`
}

func (ObjectRecord) TableName() string { return "object_record" }

// RecordAttribute holds exactly one typed value; which column is non-null
// follows the field's declared type. At most one row per (record, field).
type RecordAttribute struct {
	ID          uint64           `gorm:"primaryKey"`
	RecordID    uint64           `gorm:"not null;uniqueIndex:ux_record_field"`
	FieldID     uint64           `gorm:"not null;uniqueIndex:ux_record_field"`
	ValueText   *string          `gorm:"size:2048"`
	ValueNumber *decimal.Decimal `gorm:"type:numeric(20,8)"`
	ValueDate   *time.Time
	ValueBool   *bool
}

func (RecordAttribute) TableName() string { return "record_attribute" }

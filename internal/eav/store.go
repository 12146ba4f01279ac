// Package eav stores runtime-defined object types as definition, field,
// record and typed-value rows, so tenants can add business objects without
// schema migration. Reads pivot attribute rows into one dictionary per
// record. Filtering is by identity only: attribute-value predicates would
// need per-type joins or a secondary index and are a known limitation, not
// supported here.
package eav

import (
	"context"
	"errors"
	"time"

	"github.com/docflowlabs/docflow-service/internal/apperr"
	"github.com/docflowlabs/docflow-service/internal/event"
	"github.com/docflowlabs/docflow-service/internal/model"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the attribute store engine.
type Store struct {
	repo *repo.Repository
	log  *zap.SugaredLogger
}

// NewStore returns Store.
func NewStore(r *repo.Repository, log *zap.SugaredLogger) *Store {
	return &Store{repo: r, log: log}
}

// FieldDef declares one field of an object type.
type FieldDef struct {
	Name     string
	DataType string
	Required bool
}

// ListOptions is the pagination/sort spec for record listings.
type ListOptions struct {
	Limit    int
	Offset   int
	SortDesc bool
}

func validDataType(t string) bool {
	switch t {
	case model.FieldText, model.FieldNumber, model.FieldDate, model.FieldBoolean:
		return true
	}
	return false
}

// Define creates or re-versions an object type. The previous active
// version is deactivated but kept, so historical records stay readable.
func (s *Store) Define(ctx context.Context, tenantID, typeCode string, fields []FieldDef) (*model.ObjectDefinition, error) {
	if typeCode == "" {
		return nil, apperr.NewField(apperr.KindValidation, "type_code_required", "object type code is required", "type_code")
	}
	if len(fields) == 0 {
		return nil, apperr.NewField(apperr.KindValidation, "fields_required", "at least one field is required", "fields")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, apperr.NewField(apperr.KindValidation, "field_name_required", "field name is required", "fields")
		}
		if !validDataType(f.DataType) {
			return nil, apperr.NewField(apperr.KindValidation, "invalid_data_type", "unknown field data type: "+f.DataType, f.Name)
		}
		if seen[f.Name] {
			return nil, apperr.NewField(apperr.KindValidation, "duplicate_field", "field declared twice: "+f.Name, f.Name)
		}
		seen[f.Name] = true
	}

	var def *model.ObjectDefinition
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		version := 1
		var current model.ObjectDefinition
		err := tx.Where("tenant_id = ? AND type_code = ? AND active = ?", tenantID, typeCode, true).
			First(&current).Error
		switch {
		case err == nil:
			version = current.Version + 1
			if err := tx.Model(&model.ObjectDefinition{}).Where("id = ?", current.ID).
				Update("active", false).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		def = &model.ObjectDefinition{
			TenantID: tenantID,
			TypeCode: typeCode,
			Version:  version,
			Active:   true,
		}
		if err := tx.Create(def).Error; err != nil {
			return err
		}
		defFields := make([]model.ObjectField, 0, len(fields))
		for _, f := range fields {
			defFields = append(defFields, model.ObjectField{
				DefinitionID: def.ID,
				Name:         f.Name,
				DataType:     f.DataType,
				Required:     f.Required,
			})
		}
		if err := tx.Create(&defFields).Error; err != nil {
			return err
		}
		def.Fields = defFields
		return nil
	})
	if err != nil {
		return nil, err
	}
	return def, nil
}

func (s *Store) activeDefinition(ctx context.Context, tx *gorm.DB, tenantID, typeCode string) (*model.ObjectDefinition, error) {
	var def model.ObjectDefinition
	err := tx.WithContext(ctx).Preload("Fields").
		Where("tenant_id = ? AND type_code = ? AND active = ?", tenantID, typeCode, true).
		First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "object_type_not_found", "unknown object type: "+typeCode)
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// CreateRecord stores one record bound to the active definition. Values
// for fields the definition does not declare are rejected. The record and
// its outbox entry commit in one transaction.
func (s *Store) CreateRecord(ctx context.Context, tenantID, typeCode string, values map[string]interface{}) (string, error) {
	publicID := uuid.NewString()
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		def, err := s.activeDefinition(ctx, tx, tenantID, typeCode)
		if err != nil {
			return err
		}
		byName := make(map[string]model.ObjectField, len(def.Fields))
		for _, f := range def.Fields {
			byName[f.Name] = f
		}
		for name := range values {
			if _, ok := byName[name]; !ok {
				return apperr.NewField(apperr.KindValidation, "unknown_field", "field not in definition: "+name, name)
			}
		}
		for _, f := range def.Fields {
			if f.Required {
				if _, ok := values[f.Name]; !ok {
					return apperr.NewField(apperr.KindValidation, "field_required", "required field missing: "+f.Name, f.Name)
				}
			}
		}

		rec := &model.ObjectRecord{
			PublicID:     publicID,
			TenantID:     tenantID,
			DefinitionID: def.ID,
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		attrs := make([]model.RecordAttribute, 0, len(values))
		for _, f := range def.Fields {
			v, ok := values[f.Name]
			if !ok {
				continue
			}
			attr, err := coerce(f, v)
			if err != nil {
				return err
			}
			attr.RecordID = rec.ID
			attrs = append(attrs, attr)
		}
		if len(attrs) > 0 {
			if err := tx.Create(&attrs).Error; err != nil {
				return err
			}
		}

		env := event.New(event.AggregateRecord, publicID, tenantID, map[string]interface{}{
			"typeCode": typeCode,
		})
		payload, err := env.Encode()
		if err != nil {
			return err
		}
		return s.repo.CreateOutboxEntry(ctx, tx, &model.OutboxEntry{
			TenantID: tenantID,
			Topic:    event.TopicRecordCreated,
			Payload:  string(payload),
		})
	})
	if err != nil {
		return "", err
	}
	return publicID, nil
}

// coerce maps a supplied value into the attribute column declared by the
// field's type.
func coerce(f model.ObjectField, v interface{}) (model.RecordAttribute, error) {
	attr := model.RecordAttribute{FieldID: f.ID}
	bad := func() (model.RecordAttribute, error) {
		return attr, apperr.NewField(apperr.KindValidation, "type_mismatch",
			"value does not match declared type "+f.DataType, f.Name)
	}
	switch f.DataType {
	case model.FieldText:
		s, ok := v.(string)
		if !ok {
			return bad()
		}
		attr.ValueText = &s
	case model.FieldNumber:
		var d decimal.Decimal
		switch n := v.(type) {
		case decimal.Decimal:
			d = n
		case float64:
			d = decimal.NewFromFloat(n)
		case int:
			d = decimal.NewFromInt(int64(n))
		case int64:
			d = decimal.NewFromInt(n)
		case string:
			parsed, err := decimal.NewFromString(n)
			if err != nil {
				return bad()
			}
			d = parsed
		default:
			return bad()
		}
		attr.ValueNumber = &d
	case model.FieldDate:
		switch t := v.(type) {
		case time.Time:
			attr.ValueDate = &t
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return bad()
			}
			attr.ValueDate = &parsed
		default:
			return bad()
		}
	case model.FieldBoolean:
		b, ok := v.(bool)
		if !ok {
			return bad()
		}
		attr.ValueBool = &b
	default:
		return bad()
	}
	return attr, nil
}

// pivot turns attribute rows into one dictionary keyed by field name,
// resolving each value from whichever typed column is set.
func pivot(rec model.ObjectRecord, fields map[uint64]model.ObjectField) map[string]interface{} {
	out := map[string]interface{}{
		"_id":        rec.PublicID,
		"_createdAt": rec.CreatedAt,
	}
	for _, a := range rec.Attributes {
		f, ok := fields[a.FieldID]
		if !ok {
			continue
		}
		switch {
		case a.ValueText != nil:
			out[f.Name] = *a.ValueText
		case a.ValueNumber != nil:
			out[f.Name] = *a.ValueNumber
		case a.ValueDate != nil:
			out[f.Name] = *a.ValueDate
		case a.ValueBool != nil:
			out[f.Name] = *a.ValueBool
		}
	}
	return out
}

func (s *Store) fieldsFor(ctx context.Context, definitionIDs []uint64) (map[uint64]model.ObjectField, error) {
	var fields []model.ObjectField
	if err := s.repo.DB(ctx).Where("definition_id IN ?", definitionIDs).Find(&fields).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint64]model.ObjectField, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}
	return byID, nil
}

// GetRecord fetches one record of a type as a pivoted dictionary.
func (s *Store) GetRecord(ctx context.Context, tenantID, typeCode, publicID string) (map[string]interface{}, error) {
	gotType, values, err := s.GetRecordAny(ctx, tenantID, publicID)
	if err != nil {
		return nil, err
	}
	if gotType != typeCode {
		return nil, apperr.New(apperr.KindNotFound, "record_not_found", "record does not exist")
	}
	return values, nil
}

// GetRecordAny fetches a record by identity alone, returning its type
// code. Used by the projection path, which only knows the aggregate id.
func (s *Store) GetRecordAny(ctx context.Context, tenantID, publicID string) (string, map[string]interface{}, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return "", nil, apperr.NewField(apperr.KindValidation, "invalid_record_id", "record id must be a uuid", "id")
	}
	var rec model.ObjectRecord
	err := s.repo.DB(ctx).Preload("Attributes").
		Where("tenant_id = ? AND public_id = ?", tenantID, publicID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, apperr.New(apperr.KindNotFound, "record_not_found", "record does not exist")
	}
	if err != nil {
		return "", nil, err
	}
	var def model.ObjectDefinition
	if err := s.repo.DB(ctx).First(&def, rec.DefinitionID).Error; err != nil {
		return "", nil, err
	}
	fields, err := s.fieldsFor(ctx, []uint64{rec.DefinitionID})
	if err != nil {
		return "", nil, err
	}
	return def.TypeCode, pivot(rec, fields), nil
}

// ListRecords pages through a type's records, any definition version,
// newest first by default. Identity/pagination filtering only.
func (s *Store) ListRecords(ctx context.Context, tenantID, typeCode string, opt ListOptions) ([]map[string]interface{}, error) {
	var defIDs []uint64
	if err := s.repo.DB(ctx).Model(&model.ObjectDefinition{}).
		Where("tenant_id = ? AND type_code = ?", tenantID, typeCode).
		Pluck("id", &defIDs).Error; err != nil {
		return nil, err
	}
	if len(defIDs) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "object_type_not_found", "unknown object type: "+typeCode)
	}

	order := "created_at"
	if opt.SortDesc {
		order = "created_at desc"
	}
	if opt.Limit <= 0 {
		opt.Limit = 50
	}
	var recs []model.ObjectRecord
	if err := s.repo.DB(ctx).Preload("Attributes").
		Where("tenant_id = ? AND definition_id IN ?", tenantID, defIDs).
		Order(order).Limit(opt.Limit).Offset(opt.Offset).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	fields, err := s.fieldsFor(ctx, defIDs)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(recs))
	for _, rec := range recs {
		out = append(out, pivot(rec, fields))
	}
	return out, nil
}

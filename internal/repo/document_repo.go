package repo

import (
	"context"
	"time"

	"github.com/docflowlabs/docflow-service/internal/model"
	"gorm.io/gorm"
)

// GetDocument fetches a tenant's document header.
func (r *Repository) GetDocument(ctx context.Context, tx *gorm.DB, tenantID, id string) (*model.Document, error) {
	var d model.Document
	if err := tx.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocumentLines fetches lines ordered by line number.
func (r *Repository) GetDocumentLines(ctx context.Context, tx *gorm.DB, documentID string) ([]model.DocumentLine, error) {
	var lines []model.DocumentLine
	err := tx.WithContext(ctx).
		Where("document_id = ?", documentID).Order("line_no").Find(&lines).Error
	return lines, err
}

// CreateDocument inserts a new header with its lines at version 1.
func (r *Repository) CreateDocument(ctx context.Context, tx *gorm.DB, d *model.Document, lines []model.DocumentLine) error {
	d.Version = 1
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].DocumentID = d.ID
	}
	return tx.WithContext(ctx).Create(&lines).Error
}

// UpdateDocumentCAS applies the header update only if the stored version
// still equals expectedVersion, bumping it by one. Zero rows affected is
// reported as ErrVersionConflict.
func (r *Repository) UpdateDocumentCAS(ctx context.Context, tx *gorm.DB, d *model.Document, expectedVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Document{}).
		Where("id = ? AND tenant_id = ? AND version = ?", d.ID, d.TenantID, expectedVersion).
		Updates(map[string]interface{}{
			"doc_no":     d.DocNo,
			"partner_id": d.PartnerID,
			"status":     d.Status,
			"notes":      d.Notes,
			"total":      d.Total,
			"version":    expectedVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// UpdateDocumentForce applies the header update unconditionally and still
// increments the stored version by one. Used only after an optimistic
// attempt lost its race.
func (r *Repository) UpdateDocumentForce(ctx context.Context, tx *gorm.DB, d *model.Document) error {
	res := tx.WithContext(ctx).
		Model(&model.Document{}).
		Where("id = ? AND tenant_id = ?", d.ID, d.TenantID).
		Updates(map[string]interface{}{
			"doc_no":     d.DocNo,
			"partner_id": d.PartnerID,
			"status":     d.Status,
			"notes":      d.Notes,
			"total":      d.Total,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReplaceDocumentLines deletes every existing line and inserts the new set.
func (r *Repository) ReplaceDocumentLines(ctx context.Context, tx *gorm.DB, documentID string, lines []model.DocumentLine) error {
	if err := tx.WithContext(ctx).
		Where("document_id = ?", documentID).Delete(&model.DocumentLine{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].ID = 0
		lines[i].DocumentID = documentID
	}
	return tx.WithContext(ctx).Create(&lines).Error
}

// ListDocumentIDsByPartner returns ids of documents referencing a partner,
// used to fan out master-data changes to dependent projections.
func (r *Repository) ListDocumentIDsByPartner(ctx context.Context, tenantID, partnerID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Where("tenant_id = ? AND partner_id = ?", tenantID, partnerID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

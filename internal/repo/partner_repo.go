package repo

import (
	"context"
	"time"

	"github.com/docflowlabs/docflow-service/internal/model"
	"gorm.io/gorm"
)

// GetPartner fetches a tenant's partner.
func (r *Repository) GetPartner(ctx context.Context, tx *gorm.DB, tenantID, id string) (*model.Partner, error) {
	var p model.Partner
	if err := tx.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePartnerCAS renames a partner under an optimistic version check.
func (r *Repository) UpdatePartnerCAS(ctx context.Context, tx *gorm.DB, p *model.Partner, expectedVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Partner{}).
		Where("id = ? AND tenant_id = ? AND version = ?", p.ID, p.TenantID, expectedVersion).
		Updates(map[string]interface{}{
			"name":       p.Name,
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

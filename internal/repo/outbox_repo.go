package repo

import (
	"context"
	"errors"
	"time"

	"github.com/docflowlabs/docflow-service/internal/model"
	"gorm.io/gorm"
)

// CreateOutboxEntry appends an event row inside the caller's transaction.
func (r *Repository) CreateOutboxEntry(ctx context.Context, tx *gorm.DB, e *model.OutboxEntry) error {
	e.Status = model.OutboxPending
	return tx.WithContext(ctx).Create(e).Error
}

// PollPendingOutbox pulls pending rows in creation order per tenant.
func (r *Repository) PollPendingOutbox(ctx context.Context, limit int) ([]model.OutboxEntry, error) {
	var entries []model.OutboxEntry
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("tenant_id, created_at, id").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// MarkOutboxPublished records a confirmed send.
func (r *Repository) MarkOutboxPublished(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.OutboxPublished,
			"processed_at": &now,
		}).Error
}

// MarkOutboxFailed records a publish given up on, keeping the error text.
func (r *Repository) MarkOutboxFailed(ctx context.Context, id uint64, errText string) error {
	now := time.Now()
	if len(errText) > 512 {
		errText = errText[:512]
	}
	return r.db.WithContext(ctx).Model(&model.OutboxEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.OutboxFailed,
			"error":        &errText,
			"processed_at": &now,
		}).Error
}

// CommandExists checks whether an idempotency-keyed command already ran.
func (r *Repository) CommandExists(ctx context.Context, tx *gorm.DB, tenantID, key, action string) (bool, *model.CommandLog, error) {
	if key == "" {
		return false, nil, nil
	}
	var c model.CommandLog
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ? AND action = ?", tenantID, key, action).
		First(&c).Error
	if err == nil {
		return true, &c, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil, nil
	}
	return false, nil, err
}

// CreateCommandLog records an executed idempotency-keyed command. A unique
// violation on (tenant, key, action) surfaces as ErrDuplicateCommand.
func (r *Repository) CreateCommandLog(ctx context.Context, tx *gorm.DB, c *model.CommandLog) error {
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCommand
		}
		return err
	}
	return nil
}

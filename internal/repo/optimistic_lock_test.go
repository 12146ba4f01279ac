package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docflowlabs/docflow-service/internal/logger"
	"github.com/docflowlabs/docflow-service/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Document{}, &model.DocumentLine{}, &model.Partner{},
		&model.OutboxEntry{}, &model.CommandLog{},
	))
	return NewRepository(db, must(logger.NewLogger("info"))), db
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}

func TestUpdateDocumentCAS_InterleavedWriters(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	db.Create(&model.Document{ID: "d1", TenantID: "t1", DocNo: "INV-1", Status: model.DocStatusDraft, Version: 1})

	// both writers read the same snapshot
	w1, err := repo.GetDocument(ctx, db, "t1", "d1")
	assert.NoError(t, err)
	w2, err := repo.GetDocument(ctx, db, "t1", "d1")
	assert.NoError(t, err)

	w1.Notes = "first"
	assert.NoError(t, repo.UpdateDocumentCAS(ctx, db, w1, w1.Version))

	// the second writer's precondition is now stale
	w2.Notes = "second"
	assert.ErrorIs(t, repo.UpdateDocumentCAS(ctx, db, w2, w2.Version), ErrVersionConflict)

	var final model.Document
	assert.NoError(t, db.First(&final, "id = ?", "d1").Error)
	assert.Equal(t, uint64(2), final.Version)
	assert.Equal(t, "first", final.Notes)
}

func TestUpdateDocumentCAS_VersionMismatch(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	db.Create(&model.Document{ID: "d1", TenantID: "t1", DocNo: "INV-1", Version: 5})

	d, err := repo.GetDocument(ctx, db, "t1", "d1")
	assert.NoError(t, err)
	err = repo.UpdateDocumentCAS(ctx, db, d, 4)
	assert.ErrorIs(t, err, ErrVersionConflict)

	var final model.Document
	assert.NoError(t, db.First(&final, "id = ?", "d1").Error)
	assert.Equal(t, uint64(5), final.Version)
}

func TestUpdateDocumentForce_AlwaysIncrements(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	db.Create(&model.Document{ID: "d1", TenantID: "t1", DocNo: "INV-1", Version: 6})

	d, err := repo.GetDocument(ctx, db, "t1", "d1")
	assert.NoError(t, err)
	d.Notes = "overwritten"
	// stale expectation does not matter on the authoritative path
	assert.NoError(t, repo.UpdateDocumentForce(ctx, db, d))

	var final model.Document
	assert.NoError(t, db.First(&final, "id = ?", "d1").Error)
	assert.Equal(t, uint64(7), final.Version)
	assert.Equal(t, "overwritten", final.Notes)
}

func TestOutboxAtomicity_AbortInjection(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	db.Create(&model.Document{ID: "d1", TenantID: "t1", DocNo: "INV-1", Version: 1})

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		d, err := repo.GetDocument(ctx, tx, "t1", "d1")
		if err != nil {
			return err
		}
		d.Notes = "never visible"
		if err := repo.UpdateDocumentCAS(ctx, tx, d, d.Version); err != nil {
			return err
		}
		if err := repo.CreateOutboxEntry(ctx, tx, &model.OutboxEntry{
			TenantID: "t1", Topic: "docflow.document.updated", Payload: "{}",
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// neither half of the aborted transaction is visible
	var outboxCount int64
	assert.NoError(t, db.Model(&model.OutboxEntry{}).Count(&outboxCount).Error)
	assert.Equal(t, int64(0), outboxCount)

	var final model.Document
	assert.NoError(t, db.First(&final, "id = ?", "d1").Error)
	assert.Equal(t, uint64(1), final.Version)
	assert.Empty(t, final.Notes)
}

func TestReplaceDocumentLines_FullReplace(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	db.Create(&model.Document{ID: "d1", TenantID: "t1", DocNo: "INV-1", Version: 1})
	assert.NoError(t, repo.ReplaceDocumentLines(ctx, db, "d1", []model.DocumentLine{
		{LineNo: 1, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10), Amount: decimal.NewFromInt(10)},
		{LineNo: 2, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(5), Amount: decimal.NewFromInt(10)},
	}))
	assert.NoError(t, repo.ReplaceDocumentLines(ctx, db, "d1", []model.DocumentLine{
		{LineNo: 1, Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(7), Amount: decimal.NewFromInt(21)},
	}))

	lines, err := repo.GetDocumentLines(ctx, db, "d1")
	assert.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.True(t, lines[0].Amount.Equal(decimal.NewFromInt(21)))
}

func TestCreateCommandLog_DuplicateKey(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	first := &model.CommandLog{TenantID: "t1", IdempotencyKey: "k1", Action: "document.create", ResultData: `{"id":"d1","version":1}`}
	assert.NoError(t, repo.CreateCommandLog(ctx, db, first))

	// the same (tenant, key, action) from a concurrent writer
	second := &model.CommandLog{TenantID: "t1", IdempotencyKey: "k1", Action: "document.create", ResultData: `{"id":"d2","version":1}`}
	err := repo.CreateCommandLog(ctx, db, second)
	assert.True(t, errors.Is(err, ErrDuplicateCommand))

	// a different tenant or action is not a duplicate
	assert.NoError(t, repo.CreateCommandLog(ctx, db, &model.CommandLog{
		TenantID: "t2", IdempotencyKey: "k1", Action: "document.create", ResultData: `{"id":"d3","version":1}`,
	}))
	assert.NoError(t, repo.CreateCommandLog(ctx, db, &model.CommandLog{
		TenantID: "t1", IdempotencyKey: "k1", Action: "partner.rename", ResultData: `{"id":"p1","name":"Acme"}`,
	}))
}

package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/docflowlabs/docflow-service/internal/config"
	"github.com/docflowlabs/docflow-service/internal/engine"
	"github.com/docflowlabs/docflow-service/internal/logger"
	"github.com/docflowlabs/docflow-service/internal/model"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestServices(t *testing.T) (*DocumentService, *PartnerService, *gorm.DB, context.Context) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Document{}, &model.DocumentLine{}, &model.Partner{},
		&model.OutboxEntry{}, &model.CommandLog{},
	))

	log, err := logger.NewLogger("error")
	assert.NoError(t, err)
	repository := repo.NewRepository(db, log)
	eng := engine.New(db, log, true)
	docs := NewDocumentService(repository, eng, log)
	partners := NewPartnerService(repository, eng, config.RetryConfig{MaxAttempts: 3, BackoffMs: 1}, log)
	return docs, partners, db, context.Background()
}

func seedDocument(t *testing.T, db *gorm.DB, id string, version uint64) {
	assert.NoError(t, db.Create(&model.Document{
		ID: id, TenantID: "t1", DocNo: "INV-1", Status: model.DocStatusDraft,
		Total: decimal.Zero, Version: version,
	}).Error)
}

func oneLine(qty, price int64) []LineInput {
	return []LineInput{{LineNo: 1, Quantity: decimal.NewFromInt(qty), UnitPrice: decimal.NewFromInt(price)}}
}

func outboxCount(t *testing.T, db *gorm.DB, tenant string) int64 {
	var n int64
	assert.NoError(t, db.Model(&model.OutboxEntry{}).Where("tenant_id = ?", tenant).Count(&n).Error)
	return n
}

func TestUpdate_VersionMonotonicity(t *testing.T) {
	docs, _, db, ctx := newTestServices(t)
	seedDocument(t, db, "d1", 1)

	for i := 0; i < 3; i++ {
		res := docs.Update(ctx, UpdateDocumentCommand{
			Tenant:     "t1",
			DocumentID: "d1",
			Header:     HeaderInput{DocNo: "INV-1", Status: model.DocStatusDraft},
			Lines:      oneLine(1, 10),
		})
		assert.True(t, res.Success)

		var d model.Document
		assert.NoError(t, db.First(&d, "id = ?", "d1").Error)
		assert.Equal(t, uint64(i+2), d.Version)
	}
	// exactly one outbox row per successful mutation
	assert.Equal(t, int64(3), outboxCount(t, db, "t1"))
}

func TestUpdate_ConcurrentWritersLastWriterWins(t *testing.T) {
	docs, _, db, ctx := newTestServices(t)
	seedDocument(t, db, "d1", 5)

	// A and B both read version 5; B commits first
	five := uint64(5)
	resB := docs.Update(ctx, UpdateDocumentCommand{
		Tenant: "t1", DocumentID: "d1", ExpectedVersion: &five,
		Header: HeaderInput{DocNo: "INV-1", Status: model.DocStatusDraft, Notes: "B"},
		Lines:  oneLine(1, 100),
	})
	assert.True(t, resB.Success)

	// A's precondition on 5 fails; the engine escalates and overwrites
	resA := docs.Update(ctx, UpdateDocumentCommand{
		Tenant: "t1", DocumentID: "d1", ExpectedVersion: &five,
		Header: HeaderInput{DocNo: "INV-1", Status: model.DocStatusPosted, Notes: "A"},
		Lines:  oneLine(2, 50),
	})
	assert.True(t, resA.Success)

	var final model.Document
	assert.NoError(t, db.First(&final, "id = ?", "d1").Error)
	assert.Equal(t, uint64(7), final.Version)
	assert.Equal(t, "A", final.Notes)
	assert.Equal(t, model.DocStatusPosted, final.Status)
	assert.True(t, final.Total.Equal(decimal.NewFromInt(100)))

	var lines []model.DocumentLine
	assert.NoError(t, db.Where("document_id = ?", "d1").Find(&lines).Error)
	assert.Len(t, lines, 1)
	assert.True(t, lines[0].Quantity.Equal(decimal.NewFromInt(2)))

	// one outbox entry per successful phase: B's optimistic, A's authoritative
	assert.Equal(t, int64(2), outboxCount(t, db, "t1"))
}

func TestUpdate_NotFound(t *testing.T) {
	docs, _, _, ctx := newTestServices(t)

	res := docs.Update(ctx, UpdateDocumentCommand{
		Tenant: "t1", DocumentID: "missing",
		Header: HeaderInput{DocNo: "INV-1", Status: model.DocStatusDraft},
		Lines:  oneLine(1, 10),
	})
	assert.False(t, res.Success)
	assert.Equal(t, "document_not_found", res.Errors[0].Code)
}

func TestUpdate_ValidationBeforeMutation(t *testing.T) {
	docs, _, db, ctx := newTestServices(t)
	seedDocument(t, db, "d1", 1)

	res := docs.Update(ctx, UpdateDocumentCommand{
		Tenant: "t1", DocumentID: "d1",
		Header: HeaderInput{DocNo: "INV-1", Status: "NONSENSE"},
		Lines:  oneLine(1, 10),
	})
	assert.False(t, res.Success)
	assert.Equal(t, "invalid_status", res.Errors[0].Code)

	var d model.Document
	assert.NoError(t, db.First(&d, "id = ?", "d1").Error)
	assert.Equal(t, uint64(1), d.Version)
	assert.Equal(t, int64(0), outboxCount(t, db, "t1"))
}

func TestUpdate_UnknownPartnerRejected(t *testing.T) {
	docs, _, db, ctx := newTestServices(t)
	seedDocument(t, db, "d1", 1)

	res := docs.Update(ctx, UpdateDocumentCommand{
		Tenant: "t1", DocumentID: "d1",
		Header: HeaderInput{DocNo: "INV-1", Status: model.DocStatusDraft, PartnerID: "nobody"},
		Lines:  oneLine(1, 10),
	})
	assert.False(t, res.Success)
	assert.Equal(t, "partner_not_found", res.Errors[0].Code)
}

func TestCreate_Idempotent(t *testing.T) {
	docs, _, db, ctx := newTestServices(t)

	cmd := CreateDocumentCommand{
		Tenant:         "t1",
		IdempotencyKey: "create-1",
		Header:         HeaderInput{DocNo: "INV-9", Status: model.DocStatusDraft},
		Lines:          oneLine(3, 4),
	}
	res1 := docs.Create(ctx, cmd)
	assert.True(t, res1.Success)
	data1 := res1.Data.(map[string]interface{})

	// advance the document past creation; the replay must still echo the
	// recorded outcome, not the current state
	up := docs.Update(ctx, UpdateDocumentCommand{
		Tenant: "t1", DocumentID: data1["id"].(string),
		Header: HeaderInput{DocNo: "INV-9", Status: model.DocStatusPosted},
		Lines:  oneLine(3, 4),
	})
	assert.True(t, up.Success)

	res2 := docs.Create(ctx, cmd)
	assert.True(t, res2.Success)
	data2 := res2.Data.(map[string]interface{})
	assert.Equal(t, data1["id"], data2["id"])
	assert.Equal(t, uint64(1), data2["version"])

	var logged model.CommandLog
	assert.NoError(t, db.Where("idempotency_key = ?", "create-1").First(&logged).Error)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%q,"version":1}`, data1["id"]), logged.ResultData)

	var n int64
	assert.NoError(t, db.Model(&model.Document{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(2), outboxCount(t, db, "t1"))
}

func TestCreate_StartsAtVersionOne(t *testing.T) {
	docs, _, db, ctx := newTestServices(t)

	res := docs.Create(ctx, CreateDocumentCommand{
		Tenant: "t1",
		Header: HeaderInput{DocNo: "INV-2", Status: model.DocStatusDraft},
		Lines:  oneLine(1, 25),
	})
	assert.True(t, res.Success)

	var d model.Document
	assert.NoError(t, db.First(&d).Error)
	assert.Equal(t, uint64(1), d.Version)
	assert.True(t, d.Total.Equal(decimal.NewFromInt(25)))
}

package eav

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docflowlabs/docflow-service/internal/apperr"
	"github.com/docflowlabs/docflow-service/internal/event"
	"github.com/docflowlabs/docflow-service/internal/logger"
	"github.com/docflowlabs/docflow-service/internal/model"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB, context.Context) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.ObjectDefinition{}, &model.ObjectField{},
		&model.ObjectRecord{}, &model.RecordAttribute{},
		&model.OutboxEntry{},
	))
	log, err := logger.NewLogger("error")
	assert.NoError(t, err)
	return NewStore(repo.NewRepository(db, log), log), db, context.Background()
}

func TestDefineAndQuery_WidgetAge(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.Define(ctx, "t1", "Widget", []FieldDef{
		{Name: "Age", DataType: model.FieldNumber},
	})
	assert.NoError(t, err)

	id, err := store.CreateRecord(ctx, "t1", "Widget", map[string]interface{}{"Age": 42})
	assert.NoError(t, err)

	values, err := store.GetRecord(ctx, "t1", "Widget", id)
	assert.NoError(t, err)

	age, ok := values["Age"].(decimal.Decimal)
	assert.True(t, ok, "Age must come back numeric, got %T", values["Age"])
	assert.True(t, age.Equal(decimal.NewFromInt(42)))
}

func TestRoundTrip_AllPrimitiveTypes(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.Define(ctx, "t1", "Sample", []FieldDef{
		{Name: "Label", DataType: model.FieldText},
		{Name: "Amount", DataType: model.FieldNumber},
		{Name: "Due", DataType: model.FieldDate},
		{Name: "Open", DataType: model.FieldBoolean},
	})
	assert.NoError(t, err)

	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	id, err := store.CreateRecord(ctx, "t1", "Sample", map[string]interface{}{
		"Label":  "hello",
		"Amount": decimal.NewFromFloat(12.5),
		"Due":    due,
		"Open":   true,
	})
	assert.NoError(t, err)

	values, err := store.GetRecord(ctx, "t1", "Sample", id)
	assert.NoError(t, err)

	assert.Equal(t, "hello", values["Label"])
	amount := values["Amount"].(decimal.Decimal)
	assert.True(t, amount.Equal(decimal.NewFromFloat(12.5)))
	assert.True(t, values["Due"].(time.Time).Equal(due))
	assert.Equal(t, true, values["Open"])
}

func TestCreateRecord_UnknownTypeNotFound(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.CreateRecord(ctx, "t1", "Ghost", map[string]interface{}{"x": 1})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateRecord_UnknownFieldRejected(t *testing.T) {
	store, db, ctx := newTestStore(t)

	_, err := store.Define(ctx, "t1", "Widget", []FieldDef{{Name: "Age", DataType: model.FieldNumber}})
	assert.NoError(t, err)

	_, err = store.CreateRecord(ctx, "t1", "Widget", map[string]interface{}{"Age": 1, "Color": "red"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// the rejection rolled back the whole record
	var n int64
	assert.NoError(t, db.Model(&model.ObjectRecord{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestCreateRecord_RequiredFieldMissing(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.Define(ctx, "t1", "Widget", []FieldDef{
		{Name: "Age", DataType: model.FieldNumber, Required: true},
	})
	assert.NoError(t, err)

	_, err = store.CreateRecord(ctx, "t1", "Widget", map[string]interface{}{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateRecord_TypeMismatchRejected(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.Define(ctx, "t1", "Widget", []FieldDef{{Name: "Open", DataType: model.FieldBoolean}})
	assert.NoError(t, err)

	_, err = store.CreateRecord(ctx, "t1", "Widget", map[string]interface{}{"Open": "yes"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestGetRecord_MalformedIdentity(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.GetRecord(ctx, "t1", "Widget", "not-a-uuid")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRedefine_VersionsAndKeepsOldRecords(t *testing.T) {
	store, db, ctx := newTestStore(t)

	_, err := store.Define(ctx, "t1", "Widget", []FieldDef{{Name: "Age", DataType: model.FieldNumber}})
	assert.NoError(t, err)
	id, err := store.CreateRecord(ctx, "t1", "Widget", map[string]interface{}{"Age": 7})
	assert.NoError(t, err)

	def2, err := store.Define(ctx, "t1", "Widget", []FieldDef{
		{Name: "Age", DataType: model.FieldNumber},
		{Name: "Color", DataType: model.FieldText},
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, def2.Version)

	// only one definition stays active
	var active int64
	assert.NoError(t, db.Model(&model.ObjectDefinition{}).Where("active = ?", true).Count(&active).Error)
	assert.Equal(t, int64(1), active)

	// the old record still reads back through its own version
	values, err := store.GetRecord(ctx, "t1", "Widget", id)
	assert.NoError(t, err)
	age := values["Age"].(decimal.Decimal)
	assert.True(t, age.Equal(decimal.NewFromInt(7)))

	// new records bind to the new version
	id2, err := store.CreateRecord(ctx, "t1", "Widget", map[string]interface{}{"Age": 8, "Color": "blue"})
	assert.NoError(t, err)
	values2, err := store.GetRecord(ctx, "t1", "Widget", id2)
	assert.NoError(t, err)
	assert.Equal(t, "blue", values2["Color"])
}

func TestListRecords_PaginationAndOutbox(t *testing.T) {
	store, db, ctx := newTestStore(t)

	_, err := store.Define(ctx, "t1", "Widget", []FieldDef{{Name: "Age", DataType: model.FieldNumber}})
	assert.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := store.CreateRecord(ctx, "t1", "Widget", map[string]interface{}{"Age": i})
		assert.NoError(t, err)
	}

	page, err := store.ListRecords(ctx, "t1", "Widget", ListOptions{Limit: 3})
	assert.NoError(t, err)
	assert.Len(t, page, 3)

	rest, err := store.ListRecords(ctx, "t1", "Widget", ListOptions{Limit: 3, Offset: 3})
	assert.NoError(t, err)
	assert.Len(t, rest, 2)

	// every record creation appended exactly one outbox entry in the same
	// transaction
	var entries []model.OutboxEntry
	assert.NoError(t, db.Find(&entries).Error)
	assert.Len(t, entries, 5)
	assert.Equal(t, event.TopicRecordCreated, entries[0].Topic)
}

func TestListRecords_TenantIsolation(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.Define(ctx, "t1", "Widget", []FieldDef{{Name: "Age", DataType: model.FieldNumber}})
	assert.NoError(t, err)
	_, err = store.Define(ctx, "t2", "Widget", []FieldDef{{Name: "Age", DataType: model.FieldNumber}})
	assert.NoError(t, err)

	_, err = store.CreateRecord(ctx, "t1", "Widget", map[string]interface{}{"Age": 1})
	assert.NoError(t, err)

	records, err := store.ListRecords(ctx, "t2", "Widget", ListOptions{})
	assert.NoError(t, err)
	assert.Empty(t, records)
}

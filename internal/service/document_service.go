package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/docflowlabs/docflow-service/internal/apperr"
	"github.com/docflowlabs/docflow-service/internal/engine"
	"github.com/docflowlabs/docflow-service/internal/event"
	"github.com/docflowlabs/docflow-service/internal/model"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"github.com/docflowlabs/docflow-service/internal/result"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DocumentService owns document commands and strong-consistency reads.
type DocumentService struct {
	repo   *repo.Repository
	engine *engine.Engine
	log    *zap.SugaredLogger
}

// NewDocumentService returns DocumentService.
func NewDocumentService(r *repo.Repository, e *engine.Engine, log *zap.SugaredLogger) *DocumentService {
	return &DocumentService{repo: r, engine: e, log: log}
}

// LineInput is one submitted document line.
type LineInput struct {
	LineNo      int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// HeaderInput is the mutable header portion of a document command.
type HeaderInput struct {
	DocNo     string
	PartnerID string
	Status    string
	Notes     string
}

// UpdateDocumentCommand replaces a document's header and full line set.
// ExpectedVersion, when nil, defaults to the version read during Load.
type UpdateDocumentCommand struct {
	Tenant          string
	DocumentID      string
	ExpectedVersion *uint64
	Header          HeaderInput
	Lines           []LineInput
}

func (c UpdateDocumentCommand) TenantID() string { return c.Tenant }

// CreateDocumentCommand creates a document at version 1.
type CreateDocumentCommand struct {
	Tenant         string
	IdempotencyKey string
	Header         HeaderInput
	Lines          []LineInput
}

func (c CreateDocumentCommand) TenantID() string { return c.Tenant }

// every mutating command must expose its tenant; resolved at compile time
var (
	_ engine.Command = UpdateDocumentCommand{}
	_ engine.Command = CreateDocumentCommand{}
)

func validStatus(s string) bool {
	switch s {
	case model.DocStatusDraft, model.DocStatusPosted, model.DocStatusVoid:
		return true
	}
	return false
}

// buildLines computes per-line amounts and the document total.
func buildLines(in []LineInput) ([]model.DocumentLine, decimal.Decimal) {
	lines := make([]model.DocumentLine, 0, len(in))
	total := decimal.Zero
	for _, l := range in {
		amount := l.Quantity.Mul(l.UnitPrice)
		total = total.Add(amount)
		lines = append(lines, model.DocumentLine{
			LineNo:      l.LineNo,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Amount:      amount,
		})
	}
	return lines, total
}

func validateInput(h HeaderInput, lines []LineInput) error {
	if h.DocNo == "" {
		return apperr.NewField(apperr.KindValidation, "doc_no_required", "document number is required", "doc_no")
	}
	if !validStatus(h.Status) {
		return apperr.NewField(apperr.KindValidation, "invalid_status", "unknown document status", "status")
	}
	if len(lines) == 0 {
		return apperr.NewField(apperr.KindValidation, "lines_required", "at least one line is required", "lines")
	}
	for _, l := range lines {
		if l.Quantity.IsNegative() || l.UnitPrice.IsNegative() {
			return apperr.NewField(apperr.KindValidation, "negative_amount", "quantity and price must not be negative", "lines")
		}
	}
	return nil
}

// documentUpdateHooks is the per-aggregate strategy the generic engine
// drives for document updates.
type documentUpdateHooks struct {
	repo *repo.Repository
	cmd  UpdateDocumentCommand
	sc   result.Scope

	doc        *model.Document
	lines      []model.DocumentLine
	total      decimal.Decimal
	newVersion uint64
}

var _ engine.Hooks = (*documentUpdateHooks)(nil)

func (h *documentUpdateHooks) Load(ctx context.Context, tx *gorm.DB) error {
	h.doc = nil
	h.newVersion = 0
	doc, err := h.repo.GetDocument(ctx, tx, h.cmd.Tenant, h.cmd.DocumentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.KindNotFound, "document_not_found", "document does not exist")
		}
		return err
	}
	h.doc = doc
	h.lines, h.total = buildLines(h.cmd.Lines)
	return nil
}

func (h *documentUpdateHooks) Validate(ctx context.Context, tx *gorm.DB) error {
	if err := validateInput(h.cmd.Header, h.cmd.Lines); err != nil {
		return err
	}
	if h.cmd.Header.PartnerID != "" {
		if _, err := h.repo.GetPartner(ctx, tx, h.cmd.Tenant, h.cmd.Header.PartnerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NewField(apperr.KindValidation, "partner_not_found", "referenced partner does not exist", "partner_id")
			}
			return err
		}
	}
	return nil
}

func (h *documentUpdateHooks) applyHeader() *model.Document {
	d := *h.doc
	d.DocNo = h.cmd.Header.DocNo
	d.PartnerID = h.cmd.Header.PartnerID
	d.Status = h.cmd.Header.Status
	d.Notes = h.cmd.Header.Notes
	d.Total = h.total
	return &d
}

func (h *documentUpdateHooks) ApplyOptimistic(ctx context.Context, tx *gorm.DB) error {
	expected := h.doc.Version
	if h.cmd.ExpectedVersion != nil {
		expected = *h.cmd.ExpectedVersion
	}
	if err := h.repo.UpdateDocumentCAS(ctx, tx, h.applyHeader(), expected); err != nil {
		return err
	}
	h.newVersion = expected + 1
	return nil
}

func (h *documentUpdateHooks) ApplyAuthoritative(ctx context.Context, tx *gorm.DB) error {
	if err := h.repo.UpdateDocumentForce(ctx, tx, h.applyHeader()); err != nil {
		return err
	}
	h.newVersion = h.doc.Version + 1
	return nil
}

func (h *documentUpdateHooks) ReplaceLines(ctx context.Context, tx *gorm.DB) error {
	return h.repo.ReplaceDocumentLines(ctx, tx, h.doc.ID, h.lines)
}

func (h *documentUpdateHooks) AddOutboxEntry(ctx context.Context, tx *gorm.DB) error {
	env := event.New(event.AggregateDocument, h.doc.ID, h.cmd.Tenant, map[string]interface{}{
		"version": h.newVersion,
		"status":  h.cmd.Header.Status,
		"total":   h.total.String(),
	})
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	return h.repo.CreateOutboxEntry(ctx, tx, &model.OutboxEntry{
		TenantID: h.cmd.Tenant,
		Topic:    event.TopicDocumentUpdated,
		Payload:  string(payload),
	})
}

func (h *documentUpdateHooks) NotFoundResult() result.Result {
	return result.Fail(h.sc, result.FieldError{Code: "document_not_found", Message: "document does not exist"})
}

func (h *documentUpdateHooks) SuccessResult() result.Result {
	return result.OK(h.sc, map[string]interface{}{
		"id":      h.cmd.DocumentID,
		"version": h.newVersion,
		"total":   h.total.String(),
	})
}

// Update runs the two-attempt protocol for a document update.
func (s *DocumentService) Update(ctx context.Context, cmd UpdateDocumentCommand) result.Result {
	sc := result.Scope{Tenant: cmd.TenantID(), Module: "document", Action: "update"}
	return s.engine.Run(ctx, sc, &documentUpdateHooks{repo: s.repo, cmd: cmd, sc: sc})
}

// createOutcome is the recorded result of an idempotency-keyed create,
// stored in the command log and echoed verbatim on replay.
type createOutcome struct {
	ID      string `json:"id"`
	Version uint64 `json:"version"`
}

// Create inserts a document at version 1 in one transaction with its
// outbox entry. Idempotency-keyed: a replay returns the stored outcome.
func (s *DocumentService) Create(ctx context.Context, cmd CreateDocumentCommand) result.Result {
	sc := result.Scope{Tenant: cmd.TenantID(), Module: "document", Action: "create"}
	if err := validateInput(cmd.Header, cmd.Lines); err != nil {
		return s.engine.Fail(sc, err)
	}

	var outcome createOutcome
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		existed, logged, err := s.repo.CommandExists(ctx, tx, cmd.Tenant, cmd.IdempotencyKey, "document.create")
		if err != nil {
			return err
		}
		if existed {
			return json.Unmarshal([]byte(logged.ResultData), &outcome)
		}
		if cmd.Header.PartnerID != "" {
			if _, err := s.repo.GetPartner(ctx, tx, cmd.Tenant, cmd.Header.PartnerID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NewField(apperr.KindValidation, "partner_not_found", "referenced partner does not exist", "partner_id")
				}
				return err
			}
		}
		lines, total := buildLines(cmd.Lines)
		doc := &model.Document{
			ID:        uuid.NewString(),
			TenantID:  cmd.Tenant,
			DocNo:     cmd.Header.DocNo,
			PartnerID: cmd.Header.PartnerID,
			Status:    cmd.Header.Status,
			Notes:     cmd.Header.Notes,
			Total:     total,
		}
		if err := s.repo.CreateDocument(ctx, tx, doc, lines); err != nil {
			return err
		}
		env := event.New(event.AggregateDocument, doc.ID, cmd.Tenant, map[string]interface{}{
			"version": doc.Version,
			"status":  doc.Status,
			"total":   total.String(),
		})
		payload, err := env.Encode()
		if err != nil {
			return err
		}
		if err := s.repo.CreateOutboxEntry(ctx, tx, &model.OutboxEntry{
			TenantID: cmd.Tenant,
			Topic:    event.TopicDocumentCreated,
			Payload:  string(payload),
		}); err != nil {
			return err
		}
		outcome = createOutcome{ID: doc.ID, Version: doc.Version}
		if cmd.IdempotencyKey != "" {
			data, err := json.Marshal(outcome)
			if err != nil {
				return err
			}
			if err := s.repo.CreateCommandLog(ctx, tx, &model.CommandLog{
				TenantID:       cmd.Tenant,
				IdempotencyKey: cmd.IdempotencyKey,
				Action:         "document.create",
				ResultData:     string(data),
			}); err != nil {
				if errors.Is(err, repo.ErrDuplicateCommand) {
					return apperr.Wrap(apperr.KindDuplicate, err, "duplicate_command", "idempotency key used by a concurrent command")
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.engine.Fail(sc, err)
	}
	return result.OK(sc, map[string]interface{}{"id": outcome.ID, "version": outcome.Version})
}

// Get reads a document with its lines from the write store (strongly
// consistent).
func (s *DocumentService) Get(ctx context.Context, tenantID, id string) (*model.Document, []model.DocumentLine, error) {
	doc, err := s.repo.GetDocument(ctx, s.repo.DB(ctx), tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.New(apperr.KindNotFound, "document_not_found", "document does not exist")
		}
		return nil, nil, err
	}
	lines, err := s.repo.GetDocumentLines(ctx, s.repo.DB(ctx), id)
	if err != nil {
		return nil, nil, err
	}
	return doc, lines, nil
}

// Repo exposes underlying repository (unit tests helper).
func (s *DocumentService) Repo() *repo.Repository { return s.repo }

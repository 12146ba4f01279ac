// Package projection keeps the read store eventually consistent with the
// write store. Applies are idempotent full-document upserts: the document
// is rebuilt from the authoritative write-store state and replaces the
// stored projection wholesale, so duplicate and out-of-order delivery of
// the latest state are both safe.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/docflowlabs/docflow-service/internal/apperr"
	"github.com/docflowlabs/docflow-service/internal/eav"
	"github.com/docflowlabs/docflow-service/internal/event"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DocumentView is the denormalized projection of one document.
type DocumentView struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	DocNo       string     `json:"docNo"`
	Status      string     `json:"status"`
	PartnerID   string     `json:"partnerId,omitempty"`
	PartnerName string     `json:"partnerName,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Total       string     `json:"total"`
	Version     uint64     `json:"version"`
	Lines       []LineView `json:"lines"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// LineView is one projected document line.
type LineView struct {
	LineNo      int    `json:"lineNo"`
	Description string `json:"description,omitempty"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Amount      string `json:"amount"`
}

// RecordView is the projection of one runtime-defined object record.
type RecordView struct {
	ID       string                 `json:"id"`
	TenantID string                 `json:"tenantId"`
	TypeCode string                 `json:"typeCode"`
	Values   map[string]interface{} `json:"values"`
}

// Manager routes decoded events to per-aggregate-type projection handlers.
type Manager struct {
	repo  *repo.Repository
	eav   *eav.Store
	store ReadStore
	log   *zap.SugaredLogger
}

// NewManager returns Manager.
func NewManager(r *repo.Repository, e *eav.Store, store ReadStore, log *zap.SugaredLogger) *Manager {
	return &Manager{repo: r, eav: e, store: store, log: log}
}

// Apply projects one event. Applying the same envelope twice produces a
// byte-identical projection document both times.
func (m *Manager) Apply(ctx context.Context, topic string, env event.Envelope) error {
	switch topic {
	case event.TopicDocumentCreated, event.TopicDocumentUpdated:
		return m.projectDocument(ctx, env.TenantID, env.AggregateID)
	case event.TopicPartnerUpdated:
		return m.propagatePartner(ctx, env.TenantID, env.AggregateID)
	case event.TopicRecordCreated:
		return m.projectRecord(ctx, env.TenantID, env.AggregateID)
	default:
		m.log.Warnw("unknown topic, event skipped", "topic", topic)
		return nil
	}
}

// projectDocument rebuilds one document view from the write store and
// replaces the stored projection.
func (m *Manager) projectDocument(ctx context.Context, tenantID, documentID string) error {
	db := m.repo.DB(ctx)
	doc, err := m.repo.GetDocument(ctx, db, tenantID, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// aggregate gone from the write store; nothing to project
			m.log.Warnw("document missing, projection skipped", "tenant", tenantID, "id", documentID)
			return nil
		}
		return err
	}
	lines, err := m.repo.GetDocumentLines(ctx, db, documentID)
	if err != nil {
		return err
	}

	view := DocumentView{
		ID:        doc.ID,
		TenantID:  doc.TenantID,
		DocNo:     doc.DocNo,
		Status:    doc.Status,
		PartnerID: doc.PartnerID,
		Notes:     doc.Notes,
		Total:     doc.Total.String(),
		Version:   doc.Version,
		Lines:     make([]LineView, 0, len(lines)),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	if doc.PartnerID != "" {
		p, err := m.repo.GetPartner(ctx, db, tenantID, doc.PartnerID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if p != nil {
			view.PartnerName = p.Name
		}
	}
	for _, l := range lines {
		view.Lines = append(view.Lines, LineView{
			LineNo:      l.LineNo,
			Description: l.Description,
			Quantity:    l.Quantity.String(),
			UnitPrice:   l.UnitPrice.String(),
			Amount:      l.Amount.String(),
		})
	}

	payload, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, DocumentKey(tenantID, documentID), payload)
}

// propagatePartner re-projects every document referencing the partner.
// Each dependent goes through the same idempotent apply path; there is no
// shortcut that patches the previous projection in place.
func (m *Manager) propagatePartner(ctx context.Context, tenantID, partnerID string) error {
	ids, err := m.repo.ListDocumentIDsByPartner(ctx, tenantID, partnerID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.projectDocument(ctx, tenantID, id); err != nil {
			return err
		}
	}
	m.log.Infow("partner change propagated", "tenant", tenantID, "partner", partnerID, "documents", len(ids))
	return nil
}

// projectRecord rebuilds one object-record view from the attribute store.
func (m *Manager) projectRecord(ctx context.Context, tenantID, recordID string) error {
	typeCode, values, err := m.eav.GetRecordAny(ctx, tenantID, recordID)
	if err != nil {
		if apperr.IsNotFound(err) {
			m.log.Warnw("record missing, projection skipped", "tenant", tenantID, "id", recordID)
			return nil
		}
		return err
	}
	view := RecordView{ID: recordID, TenantID: tenantID, TypeCode: typeCode, Values: values}
	payload, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, RecordKey(tenantID, recordID), payload)
}

// GetDocumentView reads a projected document (eventually consistent).
func (m *Manager) GetDocumentView(ctx context.Context, tenantID, documentID string) (*DocumentView, error) {
	raw, err := m.store.Get(ctx, DocumentKey(tenantID, documentID))
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "projection_not_found", "no projection for document")
	}
	var view DocumentView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

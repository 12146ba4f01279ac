package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/docflowlabs/docflow-service/internal/apperr"
	"github.com/docflowlabs/docflow-service/internal/config"
	"github.com/docflowlabs/docflow-service/internal/engine"
	"github.com/docflowlabs/docflow-service/internal/event"
	"github.com/docflowlabs/docflow-service/internal/model"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"github.com/docflowlabs/docflow-service/internal/result"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PartnerService mutates shared master data. It uses the bounded-retry
// command class: the optimistic attempt is re-run with backoff and a
// conflict is surfaced to the caller once the budget is spent, never
// escalated to an unconditional write.
type PartnerService struct {
	repo   *repo.Repository
	engine *engine.Engine
	retry  config.RetryConfig
	log    *zap.SugaredLogger
}

// NewPartnerService returns PartnerService.
func NewPartnerService(r *repo.Repository, e *engine.Engine, retry config.RetryConfig, log *zap.SugaredLogger) *PartnerService {
	return &PartnerService{repo: r, engine: e, retry: retry, log: log}
}

// RenamePartnerCommand renames a partner; the emitted event fans out to
// every dependent document projection.
type RenamePartnerCommand struct {
	Tenant         string
	PartnerID      string
	Name           string
	IdempotencyKey string
}

func (c RenamePartnerCommand) TenantID() string { return c.Tenant }

var _ engine.Command = RenamePartnerCommand{}

// renameOutcome is the recorded result of an idempotency-keyed rename,
// echoed verbatim on replay.
type renameOutcome struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Rename applies a partner rename and emits the propagation event.
func (s *PartnerService) Rename(ctx context.Context, cmd RenamePartnerCommand) result.Result {
	sc := result.Scope{Tenant: cmd.TenantID(), Module: "partner", Action: "rename"}
	if cmd.Name == "" {
		return result.Fail(sc, result.FieldError{Code: "name_required", Message: "partner name is required", Field: "name"})
	}

	outcome := renameOutcome{ID: cmd.PartnerID, Name: cmd.Name}
	backoff := time.Duration(s.retry.BackoffMs) * time.Millisecond
	err := s.engine.RunWithRetry(ctx, s.retry.MaxAttempts, backoff, func(tx *gorm.DB) error {
		existed, logged, err := s.repo.CommandExists(ctx, tx, cmd.Tenant, cmd.IdempotencyKey, "partner.rename")
		if err != nil {
			return err
		}
		if existed {
			return json.Unmarshal([]byte(logged.ResultData), &outcome)
		}
		p, err := s.repo.GetPartner(ctx, tx, cmd.Tenant, cmd.PartnerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.KindNotFound, "partner_not_found", "partner does not exist")
			}
			return err
		}
		if p.Name != cmd.Name {
			renamed := *p
			renamed.Name = cmd.Name
			if err := s.repo.UpdatePartnerCAS(ctx, tx, &renamed, p.Version); err != nil {
				return err
			}
			env := event.New(event.AggregatePartner, p.ID, cmd.Tenant, map[string]interface{}{
				"name": cmd.Name,
			})
			payload, err := env.Encode()
			if err != nil {
				return err
			}
			if err := s.repo.CreateOutboxEntry(ctx, tx, &model.OutboxEntry{
				TenantID: cmd.Tenant,
				Topic:    event.TopicPartnerUpdated,
				Payload:  string(payload),
			}); err != nil {
				return err
			}
		}
		if cmd.IdempotencyKey != "" {
			data, err := json.Marshal(outcome)
			if err != nil {
				return err
			}
			if err := s.repo.CreateCommandLog(ctx, tx, &model.CommandLog{
				TenantID:       cmd.Tenant,
				IdempotencyKey: cmd.IdempotencyKey,
				Action:         "partner.rename",
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
	return result.OK(sc, map[string]interface{}{"id": outcome.ID, "name": outcome.Name})
}

// Get reads a partner from the write store.
func (s *PartnerService) Get(ctx context.Context, tenantID, id string) (*model.Partner, error) {
	p, err := s.repo.GetPartner(ctx, s.repo.DB(ctx), tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "partner_not_found", "partner does not exist")
		}
		return nil, err
	}
	return p, nil
}

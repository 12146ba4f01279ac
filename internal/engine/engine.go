package engine

import (
	"context"
	"errors"

	"github.com/docflowlabs/docflow-service/internal/apperr"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"github.com/docflowlabs/docflow-service/internal/result"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Command is the minimum capability every mutating command carries. Tenant
// resolution is a compile-time contract, never reflection.
type Command interface {
	TenantID() string
}

// Hooks is the per-aggregate-type strategy consumed by Run. The two-attempt
// protocol is fixed; only these steps vary by aggregate type.
//
// Load must fully reset the strategy's cached state: it is called again
// before the authoritative attempt, after the optimistic transaction has
// been rolled back.
type Hooks interface {
	Load(ctx context.Context, tx *gorm.DB) error
	Validate(ctx context.Context, tx *gorm.DB) error
	// ApplyOptimistic must carry the version precondition and surface
	// repo.ErrVersionConflict when it matches no row.
	ApplyOptimistic(ctx context.Context, tx *gorm.DB) error
	// ApplyAuthoritative writes without a precondition, still bumping the
	// version. There is no fallback behind it.
	ApplyAuthoritative(ctx context.Context, tx *gorm.DB) error
	ReplaceLines(ctx context.Context, tx *gorm.DB) error
	AddOutboxEntry(ctx context.Context, tx *gorm.DB) error
	NotFoundResult() result.Result
	SuccessResult() result.Result
}

// Engine runs aggregate mutations: the fixed optimistic-then-authoritative
// protocol, and the bounded-retry loop used by the simpler command class.
type Engine struct {
	db           *gorm.DB
	log          *zap.SugaredLogger
	exposeErrors bool
}

// New constructs the engine.
func New(db *gorm.DB, log *zap.SugaredLogger, exposeErrors bool) *Engine {
	return &Engine{db: db, log: log, exposeErrors: exposeErrors}
}

// Run executes the two-attempt update protocol. The optimistic attempt and
// the authoritative attempt are separate transactions; the first is fully
// rolled back before the second begins. Exactly one outbox entry and one
// version increment result from a successful run, whichever attempt wins.
func (e *Engine) Run(ctx context.Context, sc result.Scope, h Hooks) result.Result {
	err := e.attempt(ctx, h, true)
	if errors.Is(err, repo.ErrVersionConflict) {
		// optimistic attempt lost its race; re-load fresh state and
		// overwrite unconditionally
		err = e.attempt(ctx, h, false)
	}
	switch {
	case err == nil:
		return h.SuccessResult()
	case errors.Is(err, gorm.ErrRecordNotFound) || apperr.IsNotFound(err):
		return h.NotFoundResult()
	case apperr.KindOf(err) == apperr.KindValidation,
		apperr.KindOf(err) == apperr.KindDuplicate,
		apperr.KindOf(err) == apperr.KindForbidden:
		return result.FromError(sc, err, e.exposeErrors)
	default:
		e.log.Errorw("update failed", "module", sc.Module, "action", sc.Action, "tenant", sc.Tenant, "err", err)
		return result.FromError(sc, err, e.exposeErrors)
	}
}

// Fail maps an error to a failure result under the engine's masking policy.
func (e *Engine) Fail(sc result.Scope, err error) result.Result {
	if apperr.KindOf(err) == apperr.KindInternal || apperr.KindOf(err) == apperr.KindUnknown {
		e.log.Errorw("command failed", "module", sc.Module, "action", sc.Action, "tenant", sc.Tenant, "err", err)
	}
	return result.FromError(sc, err, e.exposeErrors)
}

func (e *Engine) attempt(ctx context.Context, h Hooks, optimistic bool) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := h.Load(ctx, tx); err != nil {
			return err
		}
		if optimistic {
			// validation is terminal; never re-run on the authoritative pass
			if err := h.Validate(ctx, tx); err != nil {
				return err
			}
			if err := h.ApplyOptimistic(ctx, tx); err != nil {
				return err
			}
		} else {
			if err := h.ApplyAuthoritative(ctx, tx); err != nil {
				return err
			}
		}
		if err := h.ReplaceLines(ctx, tx); err != nil {
			return err
		}
		return h.AddOutboxEntry(ctx, tx)
	})
}

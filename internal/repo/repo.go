package repo

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrVersionConflict means the optimistic version precondition matched no
// row: a concurrent writer got there first.
var ErrVersionConflict = errors.New("optimistic version conflict")

// ErrDuplicateCommand means a command log row with the same idempotency key
// was inserted concurrently: the first-check-then-insert window was lost.
var ErrDuplicateCommand = errors.New("duplicate command")

// Repository is the write-store access layer. All mutating methods take
// the transaction they must run in; the caller owns the boundary.
type Repository struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

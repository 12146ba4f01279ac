package engine

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/docflowlabs/docflow-service/internal/apperr"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"gorm.io/gorm"
)

// RunWithRetry is the sibling command pattern: re-run the whole optimistic
// transaction up to maxAttempts times with randomized backoff, then give
// up with a concurrency-conflict error. Unlike Run it never escalates to
// an unconditional write.
func (e *Engine) RunWithRetry(ctx context.Context, maxAttempts int, backoff time.Duration, op func(tx *gorm.DB) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(jitter(backoff)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = e.db.WithContext(ctx).Transaction(op)
		if !errors.Is(err, repo.ErrVersionConflict) {
			return err
		}
	}
	return apperr.New(apperr.KindConcurrencyConflict, "concurrency_conflict",
		"update lost to concurrent writers, please retry")
}

// jitter picks a duration in [base/2, base*3/2).
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	half := int64(base) / 2
	return time.Duration(half + rand.Int63n(int64(base)))
}

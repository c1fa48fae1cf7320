package service

import (
	"context"
	"errors"
	"time"

	"github.com/quayside/supplygate/internal/auth/store"
)

const (
	conflictRetries = 3
	conflictBackoff = 10 * time.Millisecond
)

// withConflictRetry runs fn, retrying a bounded number of times with a short
// backoff when the store reports a write conflict. Any other error, or an
// exhausted retry budget, is returned to the caller; an attempt that dies
// here is an infrastructure failure and must not count against the account.
func withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := range conflictRetries {
		err = fn()
		if err == nil || !errors.Is(err, store.ErrConflict) {
			return err
		}

		select {
		case <-time.After(conflictBackoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// BatchOptions carries the callbacks of a batch run. Both are optional.
type BatchOptions struct {
	// OnProgress fires before each identifier is attempted.
	OnProgress func(types.Progress)
	// OnResult fires after each attempt.
	OnResult func(types.Progress, types.AcquisitionResult)
}

// RunBatch acquires identifiers one at a time, pausing the configured delay
// between consecutive attempts. Individual failures never stop the run.
//
// An unauthenticated session returns ErrNotAuthenticated before anything is
// attempted. When ctx is cancelled the run stops and returns the results
// gathered so far together with ctx.Err().
func (e *Engine) RunBatch(ctx context.Context, sessionID string, identifiers []string, opts BatchOptions) ([]types.AcquisitionResult, error) {
	if !e.creds.IsAuthenticated(sessionID) {
		return nil, ErrNotAuthenticated
	}

	total := len(identifiers)
	results := make([]types.AcquisitionResult, 0, total)
	e.log.Info("batch started", zap.String("session", sessionID), zap.Int("total", total))

	for i, id := range identifiers {
		if i > 0 {
			if err := sleep(ctx, e.cfg.Delay); err != nil {
				e.log.Info("batch cancelled", zap.Int("completed", len(results)), zap.Int("total", total))
				return results, err
			}
		} else if err := ctx.Err(); err != nil {
			return results, err
		}

		p := types.Progress{Current: i + 1, Total: total, CurrentIdentifier: id}
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}

		res := e.Acquire(ctx, sessionID, id)
		results = append(results, res)
		if opts.OnResult != nil {
			opts.OnResult(p, res)
		}
	}

	e.log.Info("batch finished", zap.String("session", sessionID), zap.Int("total", total))
	return results, nil
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

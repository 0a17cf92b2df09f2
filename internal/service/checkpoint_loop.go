package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/sessiongate/internal/custody"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// RunCheckpointLoop commits every delegated session each interval until ctx
// is done. Unchanged sessions are no-ops.
func (s *Service) RunCheckpointLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if _, err := s.SweepCheckpoints(sweepCtx); err != nil {
				slog.Warn("checkpoint sweep failed", "error", err)
			}
			cancel()
		}
	}
}

// SweepCheckpoints commits every delegated session once and reports how
// many base-layer records changed.
func (s *Service) SweepCheckpoints(ctx context.Context) (int, error) {
	ids, err := s.store.ListDelegatedSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list delegated sessions: %w", err)
	}

	changed := 0
	for _, id := range ids {
		res, err := s.FlushSession(ctx, id)
		if err != nil {
			// Undelegated between listing and locking.
			if domain.KindOf(err) != domain.KindProtocolStateViolation {
				slog.Warn("checkpoint failed", "session_id", id, "error", err)
			}
			continue
		}
		if res.Changed {
			changed++
		}
	}
	return changed, nil
}

// FlushSession commits a delegated session without a caller. It backs the
// checkpoint loop and the operator API.
func (s *Service) FlushSession(ctx context.Context, id uuid.UUID) (custody.CommitResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	res, err := s.custody.Flush(ctx, id)
	if err != nil {
		return custody.CommitResult{}, err
	}
	s.afterCommit(ctx, id, res)
	return res, nil
}

// ListDelegated returns the IDs of sessions currently on the fast layer.
func (s *Service) ListDelegated(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.store.ListDelegatedSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list delegated sessions: %w", err)
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

// RestoreFastLayer reseeds every delegated session the fast layer has lost
// from its last commit. It runs at startup and reports how many sessions
// were reseeded.
func (s *Service) RestoreFastLayer(ctx context.Context) (int, error) {
	ids, err := s.store.ListDelegatedSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list delegated sessions: %w", err)
	}

	restored := 0
	for _, id := range ids {
		unlock := s.locks.Lock(id)
		ok, err := s.custody.Restore(ctx, id)
		unlock()
		if err != nil {
			return restored, fmt.Errorf("failed to restore session %s: %w", id, err)
		}
		if ok {
			restored++
		}
	}
	return restored, nil
}

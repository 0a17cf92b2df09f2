// Package monitor tracks range status for a liquidity position registered
// against a session.
package monitor

import (
	"github.com/google/uuid"

	"github.com/xiaot623/gogo/sessiongate/internal/authz"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// Register builds a monitor for the session identified by sessionID. The
// status starts optimistically in range until the first checkpoint.
func Register(sessionID uuid.UUID, session domain.Session, pool, position domain.Identity, minBound, maxBound int32) (domain.Monitor, error) {
	if minBound > maxBound {
		return domain.Monitor{}, domain.ErrInvalidRange
	}
	if !session.IsActive {
		return domain.Monitor{}, domain.ErrSessionInactive
	}
	return domain.Monitor{
		SessionRef:  sessionID,
		PoolRef:     pool,
		PositionRef: position,
		MinBound:    minBound,
		MaxBound:    maxBound,
		IsInRange:   true,
	}, nil
}

// Observation is one externally read position status.
type Observation struct {
	Value int32
	FeeA  uint64
	FeeB  uint64
}

// Checkpoint applies obs to m on behalf of caller, gated on the parent
// session. It reports the range transition; it never acts on it.
func Checkpoint(m domain.Monitor, session domain.Session, caller domain.Identity, obs Observation, now int64) (domain.Monitor, domain.Transition, error) {
	if err := authz.ValidateSigner(session, caller, now); err != nil {
		return m, domain.TransitionNone, err
	}

	wasInRange := m.IsInRange
	nowInRange := m.Contains(obs.Value)

	next := m
	next.LastObservedValue = obs.Value
	next.IsInRange = nowInRange
	next.FeeSnapshotA = obs.FeeA
	next.FeeSnapshotB = obs.FeeB
	next.LastCheckedAt = now

	transition := domain.TransitionNone
	switch {
	case wasInRange && !nowInRange:
		transition = domain.TransitionExitedRange
	case !wasInRange && nowInRange:
		transition = domain.TransitionEnteredRange
	}
	return next, transition, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/monitor"
)

// RegisterMonitorRequest describes the position to watch.
type RegisterMonitorRequest struct {
	Pool     domain.Identity `json:"pool"`
	Position domain.Identity `json:"position"`
	MinBound int32           `json:"min_bound"`
	MaxBound int32           `json:"max_bound"`
}

// MonitorResult is the outcome of a monitor checkpoint.
type MonitorResult struct {
	Monitor    domain.Monitor    `json:"monitor"`
	Transition domain.Transition `json:"transition"`
	Alert      bool              `json:"alert"`
}

// RegisterMonitor attaches the session's single position monitor. Only the
// owner may register it.
func (s *Service) RegisterMonitor(ctx context.Context, id uuid.UUID, caller domain.Identity, req RegisterMonitorRequest) (domain.Monitor, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	snap, err := s.custody.Current(ctx, id)
	if err != nil {
		return domain.Monitor{}, err
	}
	if caller != snap.Session.Owner {
		return domain.Monitor{}, domain.ErrUnauthorizedOwner
	}

	m, err := monitor.Register(id, snap.Session, req.Pool, req.Position, req.MinBound, req.MaxBound)
	if err != nil {
		return domain.Monitor{}, err
	}
	if err := s.store.CreateMonitor(ctx, m, s.now()); err != nil {
		return domain.Monitor{}, err
	}

	s.emit(ctx, id, domain.EventTypeMonitorRegistered, domain.MonitorPayload{
		MinBound:  m.MinBound,
		MaxBound:  m.MaxBound,
		IsInRange: m.IsInRange,
	})
	return m, nil
}

// GetMonitor returns the session's monitor.
func (s *Service) GetMonitor(ctx context.Context, id uuid.UUID) (domain.Monitor, error) {
	m, err := s.store.GetMonitor(ctx, id)
	if err != nil {
		return domain.Monitor{}, fmt.Errorf("failed to get monitor: %w", err)
	}
	if m == nil {
		return domain.Monitor{}, domain.ErrMonitorNotFound
	}
	return *m, nil
}

// CheckpointMonitor records an observation from the delegated signer and
// surfaces a range exit as an alert.
func (s *Service) CheckpointMonitor(ctx context.Context, id uuid.UUID, caller domain.Identity, obs monitor.Observation) (MonitorResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.GetMonitor(ctx, id)
	if err != nil {
		return MonitorResult{}, err
	}
	snap, err := s.custody.Current(ctx, id)
	if err != nil {
		return MonitorResult{}, err
	}

	next, transition, err := monitor.Checkpoint(current, snap.Session, caller, obs, s.unixNow())
	if err != nil {
		return MonitorResult{}, err
	}
	if err := s.store.UpdateMonitor(ctx, next); err != nil {
		return MonitorResult{}, fmt.Errorf("failed to update monitor: %w", err)
	}
	s.metrics.MonitorChecks.WithLabelValues(string(transition)).Inc()

	payload := domain.MonitorPayload{
		ObservedValue: next.LastObservedValue,
		MinBound:      next.MinBound,
		MaxBound:      next.MaxBound,
		IsInRange:     next.IsInRange,
		FeeA:          next.FeeSnapshotA,
		FeeB:          next.FeeSnapshotB,
		Transition:    transition,
	}
	s.emit(ctx, id, domain.EventTypeMonitorChecked, payload)
	switch transition {
	case domain.TransitionExitedRange:
		slog.Warn("position out of range", "session_id", id, "observed", next.LastObservedValue,
			"min_bound", next.MinBound, "max_bound", next.MaxBound)
		s.emit(ctx, id, domain.EventTypePositionOutOfRange, payload)
	case domain.TransitionEnteredRange:
		s.emit(ctx, id, domain.EventTypePositionInRange, payload)
	}

	return MonitorResult{Monitor: next, Transition: transition, Alert: transition.IsAlert()}, nil
}

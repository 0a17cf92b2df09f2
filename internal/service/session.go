package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/sessiongate/internal/authz"
	"github.com/xiaot623/gogo/sessiongate/internal/custody"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// CreateSessionRequest describes a new session. The caller is the owner.
type CreateSessionRequest struct {
	DelegatedSigner domain.Identity      `json:"delegated_signer"`
	DurationSecs    int64                `json:"duration_secs"`
	ExposureCap     uint64               `json:"exposure_cap"`
	Capabilities    domain.CapabilitySet `json:"capability_mask"`
}

// ActionResult is the outcome of an authorized action.
type ActionResult struct {
	custody.Snapshot
	Delta             uint64 `json:"delta"`
	RemainingExposure uint64 `json:"remaining_exposure"`
	VenueRef          string `json:"venue_ref,omitempty"`
}

// CreateSession initializes a resident session owned by owner.
func (s *Service) CreateSession(ctx context.Context, owner domain.Identity, req CreateSessionRequest) (custody.Snapshot, error) {
	now := s.now()
	session, err := domain.NewSession(owner, req.DelegatedSigner, now.Unix(), req.DurationSecs, req.ExposureCap, req.Capabilities)
	if err != nil {
		return custody.Snapshot{}, err
	}

	id := uuid.New()
	if err := s.store.CreateSession(ctx, id, session, now); err != nil {
		return custody.Snapshot{}, fmt.Errorf("failed to create session: %w", err)
	}

	snap, err := s.custody.Current(ctx, id)
	if err != nil {
		return custody.Snapshot{}, err
	}
	s.emit(ctx, id, domain.EventTypeSessionCreated, snap.Session)
	return snap, nil
}

// GetSession returns the live copy of a session.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (custody.Snapshot, error) {
	return s.custody.Current(ctx, id)
}

// ListSessions returns the live copy of every session owned by owner.
func (s *Service) ListSessions(ctx context.Context, owner domain.Identity) ([]custody.Snapshot, error) {
	entries, err := s.store.ListSessions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	snaps := make([]custody.Snapshot, 0, len(entries))
	for _, entry := range entries {
		snap, err := s.custody.Current(ctx, entry.SessionID)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Delegate hands custody of a session to the fast layer.
func (s *Service) Delegate(ctx context.Context, id uuid.UUID, caller domain.Identity) (custody.Snapshot, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	snap, err := s.custody.Delegate(ctx, id, caller)
	if err != nil {
		return custody.Snapshot{}, err
	}
	s.metrics.CustodyTotal.WithLabelValues(string(snap.Custody.State)).Inc()
	s.emit(ctx, id, domain.EventTypeSessionDelegated, domain.CustodyPayload{
		State:     snap.Custody.State,
		CommitSeq: snap.Custody.CommitSeq,
	})
	return snap, nil
}

// Checkpoint commits the fast copy to the base layer.
func (s *Service) Checkpoint(ctx context.Context, id uuid.UUID, caller domain.Identity) (custody.CommitResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	res, err := s.custody.Commit(ctx, id, caller)
	if err != nil {
		return custody.CommitResult{}, err
	}
	s.afterCommit(ctx, id, res)
	return res, nil
}

// Undelegate deactivates the session and returns custody to the base layer.
func (s *Service) Undelegate(ctx context.Context, id uuid.UUID, caller domain.Identity) (custody.CommitResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	res, err := s.custody.Undelegate(ctx, id, caller)
	if err != nil {
		return custody.CommitResult{}, err
	}
	s.metrics.CustodyTotal.WithLabelValues(string(res.Custody.State)).Inc()
	s.metrics.CommitsTotal.WithLabelValues(strconv.FormatBool(res.Changed)).Inc()
	s.emit(ctx, id, domain.EventTypeSessionUndelegated, domain.CustodyPayload{
		State:     res.Custody.State,
		CommitSeq: res.Custody.CommitSeq,
		Changed:   res.Changed,
	})
	return res, nil
}

func (s *Service) afterCommit(ctx context.Context, id uuid.UUID, res custody.CommitResult) {
	s.metrics.CommitsTotal.WithLabelValues(strconv.FormatBool(res.Changed)).Inc()
	if !res.Changed {
		return
	}
	s.emit(ctx, id, domain.EventTypeSessionCommitted, domain.CustodyPayload{
		State:     res.Custody.State,
		CommitSeq: res.Custody.CommitSeq,
		Changed:   true,
	})
}

// AuthorizeAction runs a generic action of kind through the authorization
// engine. A nil amount means the action moves no value.
func (s *Service) AuthorizeAction(ctx context.Context, id uuid.UUID, caller domain.Identity, kind domain.ActionKind, amount *uint64) (ActionResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	req := authz.Request{Caller: caller, Kind: kind}
	if amount != nil {
		req.Amounts = []uint64{*amount}
	}
	return s.applyAction(ctx, id, "execute_action", req, "")
}

// applyAction authorizes req against the live copy and persists the
// successor to the custody holder. Callers hold the session lock.
func (s *Service) applyAction(ctx context.Context, id uuid.UUID, operation string, req authz.Request, venueRef string) (ActionResult, error) {
	now := s.unixNow()
	return s.persistAction(ctx, id, operation, req, venueRef, func(current domain.Session) (domain.Session, error) {
		return authz.Authorize(current, req, now)
	})
}

// persistAction writes the record produced by next and records the outcome.
func (s *Service) persistAction(ctx context.Context, id uuid.UUID, operation string, req authz.Request, venueRef string, next func(domain.Session) (domain.Session, error)) (ActionResult, error) {
	var before domain.Session
	snap, err := s.custody.Apply(ctx, id, func(current domain.Session) (domain.Session, error) {
		before = current
		return next(current)
	})
	if err != nil {
		s.reject(ctx, id, operation, req.Kind, err)
		return ActionResult{}, err
	}

	res := ActionResult{
		Snapshot:          snap,
		Delta:             snap.Session.CumulativeSpend - before.CumulativeSpend,
		RemainingExposure: snap.Session.RemainingExposure(),
		VenueRef:          venueRef,
	}
	s.metrics.ActionsTotal.WithLabelValues(operation, "ok").Inc()
	s.emit(ctx, id, domain.EventTypeActionAuthorized, domain.ActionPayload{
		Operation:       operation,
		Kind:            req.Kind,
		Delta:           res.Delta,
		CumulativeSpend: snap.Session.CumulativeSpend,
		ExposureCap:     snap.Session.ExposureCap,
		TotalActions:    snap.Session.TotalActions,
		VenueRef:        venueRef,
	})
	return res, nil
}

// reject records a failed action. Unknown sessions have no trail to write.
func (s *Service) reject(ctx context.Context, id uuid.UUID, operation string, kind domain.ActionKind, err error) {
	code := domain.KindOf(err)
	s.metrics.ActionsTotal.WithLabelValues(operation, string(code)).Inc()
	if code == domain.KindSessionNotFound {
		return
	}
	if !domain.IsAuthorizationFailure(err) {
		slog.Warn("action failed", "session_id", id, "operation", operation, "error", err)
	}
	s.emit(ctx, id, domain.EventTypeActionRejected, domain.RejectionPayload{
		Operation: operation,
		Kind:      kind,
		Code:      code,
		Reason:    err.Error(),
	})
}

// AuthorizeWatch allows the owner and the delegated signer to observe a
// session's events.
func (s *Service) AuthorizeWatch(ctx context.Context, sessionID string, caller domain.Identity) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("%w: session id: %v", domain.ErrInvalidArgument, err)
	}
	snap, err := s.custody.Current(ctx, id)
	if err != nil {
		return err
	}
	if caller != snap.Session.Owner && caller != snap.Session.DelegatedSigner {
		return domain.ErrUnauthorizedSigner
	}
	return nil
}

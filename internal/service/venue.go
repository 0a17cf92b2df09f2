package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/sessiongate/internal/authz"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
	"github.com/xiaot623/gogo/sessiongate/internal/policy"
	"github.com/xiaot623/gogo/sessiongate/internal/venue"
)

// SwapRequest is a venue swap through a pool.
type SwapRequest struct {
	Pool         domain.Identity `json:"pool"`
	AmountIn     uint64          `json:"amount_in"`
	MinAmountOut uint64          `json:"min_amount_out"`
}

// AddLiquidityRequest deposits both sides of a pool into a position.
type AddLiquidityRequest struct {
	Pool     domain.Identity `json:"pool"`
	Position domain.Identity `json:"position"`
	AmountA  uint64          `json:"amount_a"`
	AmountB  uint64          `json:"amount_b"`
}

// ClosePositionRequest withdraws and closes a position.
type ClosePositionRequest struct {
	Pool     domain.Identity `json:"pool"`
	Position domain.Identity `json:"position"`
}

// Swap counts AmountIn against the exposure cap.
func (s *Service) Swap(ctx context.Context, id uuid.UUID, caller domain.Identity, req SwapRequest) (ActionResult, error) {
	return s.venueAction(ctx, id, caller, []uint64{req.AmountIn}, venue.Call{
		Operation:    venue.OperationSwap,
		Pool:         req.Pool,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
	})
}

// AddLiquidity counts both deposit amounts against the exposure cap.
func (s *Service) AddLiquidity(ctx context.Context, id uuid.UUID, caller domain.Identity, req AddLiquidityRequest) (ActionResult, error) {
	return s.venueAction(ctx, id, caller, []uint64{req.AmountA, req.AmountB}, venue.Call{
		Operation: venue.OperationAddLiquidity,
		Pool:      req.Pool,
		Position:  req.Position,
		AmountA:   req.AmountA,
		AmountB:   req.AmountB,
	})
}

// ClosePosition returns value to the owner. Spend is a ratchet, so only the
// activity counters move.
func (s *Service) ClosePosition(ctx context.Context, id uuid.UUID, caller domain.Identity, req ClosePositionRequest) (ActionResult, error) {
	return s.venueAction(ctx, id, caller, nil, venue.Call{
		Operation: venue.OperationClosePosition,
		Pool:      req.Pool,
		Position:  req.Position,
	})
}

// venueAction authorizes, runs the policy guard, calls the venue and only
// then persists the successor record. Every venue operation needs the LP
// capability.
func (s *Service) venueAction(ctx context.Context, id uuid.UUID, caller domain.Identity, amounts []uint64, call venue.Call) (ActionResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	operation := string(call.Operation)
	req := authz.Request{Caller: caller, Kind: domain.ActionLPRebalance, Amounts: amounts}

	snap, err := s.custody.Current(ctx, id)
	if err != nil {
		s.reject(ctx, id, operation, req.Kind, err)
		return ActionResult{}, err
	}
	// The successor is computed once, before the venue runs. Once the venue
	// has moved value the record must reflect it regardless of the clock.
	next, err := authz.Authorize(snap.Session, req, s.unixNow())
	if err != nil {
		s.reject(ctx, id, operation, req.Kind, err)
		return ActionResult{}, err
	}

	call.IdempotencyKey = actionKey(id, call.Operation, snap.Session.TotalActions)
	call.SessionID = id
	call.Signer = caller
	if s.policyEngine != nil {
		decision, reason, err := s.policyEngine.Evaluate(ctx, call)
		if err != nil {
			return ActionResult{}, err
		}
		if decision != policy.DecisionAllow {
			err := fmt.Errorf("%w: policy %s: %s", domain.ErrVenueRejected, decision, reason)
			s.reject(ctx, id, operation, req.Kind, err)
			return ActionResult{}, err
		}
	}

	start := time.Now()
	receipt, err := s.venue.Execute(ctx, call)
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.VenueCallSeconds.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, venue.ErrOutcomeUnknown) {
			slog.Error("venue outcome unknown, session not charged",
				"session_id", id, "operation", operation, "idempotency_key", call.IdempotencyKey, "error", err)
		} else {
			slog.Warn("venue call failed", "session_id", id, "operation", operation, "error", err)
		}
		err = fmt.Errorf("%w: %w", domain.ErrVenueRejected, err)
		s.reject(ctx, id, operation, req.Kind, err)
		return ActionResult{}, err
	}

	res, err := s.persistAction(ctx, id, operation, req, receipt.Ref, func(current domain.Session) (domain.Session, error) {
		if current != snap.Session {
			return domain.Session{}, fmt.Errorf("%w: session changed during venue call", domain.ErrProtocolStateViolation)
		}
		return next, nil
	})
	if err != nil {
		slog.Error("venue call succeeded but the session was not updated",
			"session_id", id, "operation", operation, "venue_ref", receipt.Ref, "error", err)
	}
	return res, err
}

// actionKey identifies the next action on a session. It only changes once an
// action is recorded, so retrying an unrecorded call reuses it.
func actionKey(id uuid.UUID, op venue.Operation, totalActions uint64) string {
	return uuid.NewSHA1(id, []byte(string(op)+":"+strconv.FormatUint(totalActions, 10))).String()
}

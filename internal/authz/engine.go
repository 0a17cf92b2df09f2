// Package authz decides whether a principal may act on a session and
// computes the record that results.
package authz

import (
	"fmt"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// Request is one action proposed against a session.
type Request struct {
	Caller domain.Identity
	Kind   domain.ActionKind
	// Amounts are the parts of the action's notional value. Empty means the
	// action moves no value outward.
	Amounts []uint64
}

// ValidateSigner runs the liveness and signer gates shared by every
// delegated-signer operation.
func ValidateSigner(s domain.Session, caller domain.Identity, now int64) error {
	if !s.IsActive {
		return domain.ErrSessionInactive
	}
	if s.IsExpired(now) {
		return fmt.Errorf("%w: now=%d expires_at=%d", domain.ErrSessionExpired, now, s.ExpiresAt)
	}
	if caller != s.DelegatedSigner {
		return domain.ErrUnauthorizedSigner
	}
	return nil
}

// Authorize validates req against s at time now and returns the successor
// record. On error the caller's record is untouched since s is a value.
func Authorize(s domain.Session, req Request, now int64) (domain.Session, error) {
	if err := ValidateSigner(s, req.Caller, now); err != nil {
		return s, err
	}
	if !s.CapabilityMask.Has(req.Kind) {
		return s, fmt.Errorf("%w: %s", domain.ErrStrategyNotEnabled, req.Kind)
	}

	next := s
	if len(req.Amounts) > 0 {
		spend, err := Accumulate(s.CumulativeSpend, s.ExposureCap, req.Amounts...)
		if err != nil {
			return s, err
		}
		next.CumulativeSpend = spend
	}
	if next.TotalActions == ^uint64(0) {
		return s, fmt.Errorf("%w: total_actions", domain.ErrOverflow)
	}
	next.TotalActions++
	next.LastActionAt = now
	return next, nil
}

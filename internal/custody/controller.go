// Package custody moves session records between the base layer and the fast
// layer.
//
// A session starts resident on the base layer. Delegate hands the exact
// record bytes to the fast layer, which from then on holds the only writable
// copy. Commit copies the fast copy back without moving custody, and
// Undelegate deactivates the record, commits it and returns custody for good.
package custody

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// BaseLayer is the authoritative store.
type BaseLayer interface {
	GetSessionRecord(ctx context.Context, id uuid.UUID) ([]byte, *domain.Custody, error)
	UpdateSessionRecord(ctx context.Context, id uuid.UUID, record []byte, expect domain.CustodyState) error
	SetCustody(ctx context.Context, id uuid.UUID, from, to domain.CustodyState, at time.Time) (domain.Custody, error)
	CommitSessionRecord(ctx context.Context, id uuid.UUID, record []byte, to domain.CustodyState, at time.Time) (domain.Custody, bool, error)
}

// FastLayer holds delegated record bytes. Load returns nil, nil when absent.
// CompareAndSwap writes data only while the layer still holds old and
// reports false when it does not.
type FastLayer interface {
	Load(ctx context.Context, id uuid.UUID) ([]byte, error)
	Store(ctx context.Context, id uuid.UUID, data []byte) error
	CompareAndSwap(ctx context.Context, id uuid.UUID, old, data []byte) (bool, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

// applyAttempts bounds how often Apply rereads a fast copy that another
// writer replaced underneath it.
const applyAttempts = 3

// Snapshot is a session as read from whichever layer holds custody.
type Snapshot struct {
	SessionID uuid.UUID      `json:"session_id"`
	Session   domain.Session `json:"session"`
	Custody   domain.Custody `json:"custody"`
}

// CommitResult reports the outcome of a commit or undelegate.
type CommitResult struct {
	Snapshot
	// Changed is false when the base layer already held identical bytes.
	Changed bool `json:"changed"`
}

// Controller implements the custody state machine.
type Controller struct {
	base BaseLayer
	fast FastLayer
	now  func() time.Time
}

// NewController creates a controller. A nil clock means time.Now.
func NewController(base BaseLayer, fast FastLayer, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{base: base, fast: fast, now: now}
}

// Current returns the live copy of a session.
func (c *Controller) Current(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	snap, _, err := c.current(ctx, id)
	return snap, err
}

func (c *Controller) current(ctx context.Context, id uuid.UUID) (Snapshot, []byte, error) {
	record, custody, err := c.base.GetSessionRecord(ctx, id)
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("failed to read base record: %w", err)
	}
	if custody == nil {
		return Snapshot{}, nil, domain.ErrSessionNotFound
	}
	if custody.State.OnFastLayer() {
		fastRecord, err := c.fast.Load(ctx, id)
		if err != nil {
			return Snapshot{}, nil, fmt.Errorf("failed to read fast record: %w", err)
		}
		if fastRecord == nil {
			if err := c.reseed(ctx, id, record, *custody); err != nil {
				return Snapshot{}, nil, err
			}
		} else {
			record = fastRecord
		}
	}

	snap := Snapshot{SessionID: id, Custody: *custody}
	if err := snap.Session.UnmarshalBinary(record); err != nil {
		return Snapshot{}, nil, err
	}
	return snap, record, nil
}

// Restore reseeds the fast copy of a delegated session from its last
// committed record when the fast layer has lost it, as happens when a
// memory fast layer restarts. It reports whether a copy was written.
// Actions applied after that commit are lost.
func (c *Controller) Restore(ctx context.Context, id uuid.UUID) (bool, error) {
	record, custody, err := c.base.GetSessionRecord(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to read base record: %w", err)
	}
	if custody == nil {
		return false, domain.ErrSessionNotFound
	}
	if !custody.State.OnFastLayer() {
		return false, nil
	}
	fastRecord, err := c.fast.Load(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to read fast record: %w", err)
	}
	if fastRecord != nil {
		return false, nil
	}
	if err := c.reseed(ctx, id, record, *custody); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Controller) reseed(ctx context.Context, id uuid.UUID, record []byte, custody domain.Custody) error {
	slog.Warn("fast layer has no copy of a delegated session, reseeding from last commit",
		"session_id", id, "commit_seq", custody.CommitSeq)
	if err := c.fast.Store(ctx, id, record); err != nil {
		return fmt.Errorf("failed to reseed fast record: %w", err)
	}
	return nil
}

// Delegate hands custody of a resident session to the fast layer. Only the
// owner may delegate, and the record bytes are transferred unchanged.
func (c *Controller) Delegate(ctx context.Context, id uuid.UUID, caller domain.Identity) (Snapshot, error) {
	snap, record, err := c.current(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if caller != snap.Session.Owner {
		return Snapshot{}, domain.ErrUnauthorizedOwner
	}
	if snap.Custody.State != domain.CustodyResident {
		return Snapshot{}, fmt.Errorf("%w: delegate from %s", domain.ErrProtocolStateViolation, snap.Custody.State)
	}

	if err := c.fast.Store(ctx, id, record); err != nil {
		return Snapshot{}, fmt.Errorf("failed to write fast record: %w", err)
	}
	custody, err := c.base.SetCustody(ctx, id, domain.CustodyResident, domain.CustodyDelegated, c.now())
	if err != nil {
		if rmErr := c.fast.Remove(ctx, id); rmErr != nil {
			slog.Warn("failed to roll back fast record", "session_id", id, "error", rmErr)
		}
		return Snapshot{}, err
	}
	snap.Custody = custody
	return snap, nil
}

// Commit copies the fast copy to the base layer on behalf of a custody
// bearer (the owner or the delegated signer).
func (c *Controller) Commit(ctx context.Context, id uuid.UUID, caller domain.Identity) (CommitResult, error) {
	snap, record, err := c.current(ctx, id)
	if err != nil {
		return CommitResult{}, err
	}
	if err := checkBearer(snap.Session, caller); err != nil {
		return CommitResult{}, err
	}
	return c.commit(ctx, snap, record, domain.CustodyDelegated)
}

// Flush is Commit without a caller, for the periodic checkpoint loop.
func (c *Controller) Flush(ctx context.Context, id uuid.UUID) (CommitResult, error) {
	snap, record, err := c.current(ctx, id)
	if err != nil {
		return CommitResult{}, err
	}
	return c.commit(ctx, snap, record, domain.CustodyDelegated)
}

// Undelegate deactivates the fast copy, commits it and returns custody to
// the base layer. Custody can never be delegated again afterwards.
func (c *Controller) Undelegate(ctx context.Context, id uuid.UUID, caller domain.Identity) (CommitResult, error) {
	snap, _, err := c.current(ctx, id)
	if err != nil {
		return CommitResult{}, err
	}
	if err := checkBearer(snap.Session, caller); err != nil {
		return CommitResult{}, err
	}
	if !snap.Custody.State.OnFastLayer() {
		return CommitResult{}, fmt.Errorf("%w: undelegate from %s", domain.ErrProtocolStateViolation, snap.Custody.State)
	}

	snap.Session.IsActive = false
	record, err := snap.Session.MarshalBinary()
	if err != nil {
		return CommitResult{}, err
	}
	res, err := c.commit(ctx, snap, record, domain.CustodyReturned)
	if err != nil {
		return CommitResult{}, err
	}
	if err := c.fast.Remove(ctx, id); err != nil {
		slog.Warn("failed to remove fast record after undelegate", "session_id", id, "error", err)
	}
	return res, nil
}

func (c *Controller) commit(ctx context.Context, snap Snapshot, record []byte, to domain.CustodyState) (CommitResult, error) {
	if !snap.Custody.State.OnFastLayer() {
		return CommitResult{}, fmt.Errorf("%w: commit from %s", domain.ErrProtocolStateViolation, snap.Custody.State)
	}
	custody, changed, err := c.base.CommitSessionRecord(ctx, snap.SessionID, record, to, c.now())
	if err != nil {
		return CommitResult{}, err
	}
	snap.Custody = custody
	return CommitResult{Snapshot: snap, Changed: changed}, nil
}

// Apply runs fn against the live copy and writes its result back to the
// layer that holds custody. If fn fails nothing is written. A fast copy
// that changed between the read and the write is reread and fn runs again
// on the newer record.
func (c *Controller) Apply(ctx context.Context, id uuid.UUID, fn func(domain.Session) (domain.Session, error)) (Snapshot, error) {
	for attempt := 1; ; attempt++ {
		snap, current, err := c.current(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		next, err := fn(snap.Session)
		if err != nil {
			return snap, err
		}
		if next.Owner != snap.Session.Owner || next.DelegatedSigner != snap.Session.DelegatedSigner {
			return snap, fmt.Errorf("%w: owner and delegated signer are immutable", domain.ErrProtocolStateViolation)
		}

		record, err := next.MarshalBinary()
		if err != nil {
			return snap, err
		}
		if !snap.Custody.State.OnFastLayer() {
			if err := c.base.UpdateSessionRecord(ctx, id, record, snap.Custody.State); err != nil {
				return snap, err
			}
			snap.Session = next
			return snap, nil
		}

		swapped, err := c.fast.CompareAndSwap(ctx, id, current, record)
		if err != nil {
			return snap, fmt.Errorf("failed to write fast record: %w", err)
		}
		if swapped {
			snap.Session = next
			return snap, nil
		}
		slog.Debug("fast record changed underneath apply", "session_id", id, "attempt", attempt)
		if attempt == applyAttempts {
			return snap, fmt.Errorf("%w: fast record kept changing", domain.ErrProtocolStateViolation)
		}
	}
}

func checkBearer(s domain.Session, caller domain.Identity) error {
	if caller != s.Owner && caller != s.DelegatedSigner {
		return domain.ErrUnauthorizedSigner
	}
	return nil
}

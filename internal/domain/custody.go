package domain

import (
	"time"

	"github.com/google/uuid"
)

// CustodyState is where mutation rights for a session record currently live.
type CustodyState string

const (
	// CustodyResident: base layer holds custody, never delegated.
	CustodyResident CustodyState = "resident"
	// CustodyDelegated: the fast layer holds exclusive mutation rights.
	CustodyDelegated CustodyState = "delegated"
	// CustodyReturned: custody is back on the base layer for good.
	CustodyReturned CustodyState = "returned"
)

// OnFastLayer reports whether the fast layer holds the live copy.
func (c CustodyState) OnFastLayer() bool {
	return c == CustodyDelegated
}

// Custody is the base layer's bookkeeping for one session's custody.
type Custody struct {
	SessionID       uuid.UUID    `json:"session_id"`
	State           CustodyState `json:"state"`
	CommitSeq       uint64       `json:"commit_seq"`
	DelegatedAt     *time.Time   `json:"delegated_at,omitempty"`
	LastCommittedAt *time.Time   `json:"last_committed_at,omitempty"`
	ReturnedAt      *time.Time   `json:"returned_at,omitempty"`
}

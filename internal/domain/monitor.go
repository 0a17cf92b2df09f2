package domain

import "github.com/google/uuid"

// Monitor tracks one external liquidity position's range status for a
// session. It never moves value.
type Monitor struct {
	SessionRef        uuid.UUID `json:"session_ref"`
	PoolRef           Identity  `json:"venue_pool_ref"`
	PositionRef       Identity  `json:"position_ref"`
	MinBound          int32     `json:"min_bound"`
	MaxBound          int32     `json:"max_bound"`
	LastObservedValue int32     `json:"last_observed_value"`
	IsInRange         bool      `json:"is_in_range"`
	FeeSnapshotA      uint64    `json:"fee_snapshot_a"`
	FeeSnapshotB      uint64    `json:"fee_snapshot_b"`
	LastCheckedAt     int64     `json:"last_checked_at"`
}

// Contains reports whether v lies within the inclusive bounds.
func (m Monitor) Contains(v int32) bool {
	return v >= m.MinBound && v <= m.MaxBound
}

// Transition describes how a checkpoint moved the range status.
type Transition string

const (
	TransitionNone         Transition = "none"
	TransitionExitedRange  Transition = "exited_range"
	TransitionEnteredRange Transition = "entered_range"
)

// IsAlert reports whether the transition must be surfaced as an alert.
func (t Transition) IsAlert() bool {
	return t == TransitionExitedRange
}

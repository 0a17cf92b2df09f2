package domain

import "encoding/json"

// EventType represents the type of an audit event.
type EventType string

const (
	EventTypeSessionCreated     EventType = "session_created"
	EventTypeSessionDelegated   EventType = "session_delegated"
	EventTypeSessionCommitted   EventType = "session_committed"
	EventTypeSessionUndelegated EventType = "session_undelegated"
	EventTypeActionAuthorized   EventType = "action_authorized"
	EventTypeActionRejected     EventType = "action_rejected"
	EventTypeMonitorRegistered  EventType = "monitor_registered"
	EventTypeMonitorChecked     EventType = "monitor_checked"
	EventTypePositionOutOfRange EventType = "position_out_of_range"
	EventTypePositionInRange    EventType = "position_in_range"
)

// Event is one entry in a session's audit trail.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ActionPayload is the payload of action_authorized.
type ActionPayload struct {
	Operation       string     `json:"operation"`
	Kind            ActionKind `json:"kind"`
	Delta           uint64     `json:"delta"`
	CumulativeSpend uint64     `json:"cumulative_spend"`
	ExposureCap     uint64     `json:"exposure_cap"`
	TotalActions    uint64     `json:"total_actions"`
	VenueRef        string     `json:"venue_ref,omitempty"`
}

// RejectionPayload is the payload of action_rejected.
type RejectionPayload struct {
	Operation string     `json:"operation"`
	Kind      ActionKind `json:"kind"`
	Code      Kind       `json:"code"`
	Reason    string     `json:"reason"`
}

// CustodyPayload is the payload of custody transition events.
type CustodyPayload struct {
	State     CustodyState `json:"state"`
	CommitSeq uint64       `json:"commit_seq"`
	Changed   bool         `json:"changed"`
}

// MonitorPayload is the payload of monitor events.
type MonitorPayload struct {
	ObservedValue int32      `json:"observed_value"`
	MinBound      int32      `json:"min_bound"`
	MaxBound      int32      `json:"max_bound"`
	IsInRange     bool       `json:"is_in_range"`
	FeeA          uint64     `json:"fee_a"`
	FeeB          uint64     `json:"fee_b"`
	Transition    Transition `json:"transition"`
}

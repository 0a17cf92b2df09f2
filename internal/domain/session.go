package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind indexes a bit in a session's capability mask.
type ActionKind uint8

const (
	ActionLPRebalance ActionKind = iota
	ActionYieldSwitch
	ActionLiquidationProtect
)

// MaxActionKinds is the width of the capability mask.
const MaxActionKinds = 8

var actionKindNames = map[ActionKind]string{
	ActionLPRebalance:        "lp_rebalance",
	ActionYieldSwitch:        "yield_switch",
	ActionLiquidationProtect: "liquidation_protect",
}

func (k ActionKind) String() string {
	if name, ok := actionKindNames[k]; ok {
		return name
	}
	return "action_" + strconv.Itoa(int(k))
}

// ParseActionKind accepts a kind name or its numeric index.
func ParseActionKind(s string) (ActionKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range actionKindNames {
		if name == s {
			return kind, nil
		}
	}
	if rest, ok := strings.CutPrefix(s, "action_"); ok {
		s = rest
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown action kind %q", s)
	}
	return ActionKind(n), nil
}

// CapabilitySet is a fixed-width set of enabled action kinds.
type CapabilitySet uint8

const (
	CapabilityLP          = CapabilitySet(1 << ActionLPRebalance)
	CapabilityYield       = CapabilitySet(1 << ActionYieldSwitch)
	CapabilityLiquidation = CapabilitySet(1 << ActionLiquidationProtect)
	CapabilityAll         = CapabilityLP | CapabilityYield | CapabilityLiquidation
)

// CapabilitiesOf builds a set from the given kinds. Kinds outside the mask
// width are ignored.
func CapabilitiesOf(kinds ...ActionKind) CapabilitySet {
	var c CapabilitySet
	for _, k := range kinds {
		if k < MaxActionKinds {
			c |= 1 << k
		}
	}
	return c
}

// Has reports whether the capability bit for k is set.
func (c CapabilitySet) Has(k ActionKind) bool {
	if k >= MaxActionKinds {
		return false
	}
	return c&(1<<k) != 0
}

// Kinds lists the enabled kinds in ascending order.
func (c CapabilitySet) Kinds() []ActionKind {
	var kinds []ActionKind
	for k := ActionKind(0); k < MaxActionKinds; k++ {
		if c.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Session is the delegated-authority record. Owner and DelegatedSigner never
// change after creation; only the authorization engine and undelegation
// mutate the rest.
type Session struct {
	Owner           Identity      `json:"owner"`
	DelegatedSigner Identity      `json:"delegated_signer"`
	ExpiresAt       int64         `json:"expires_at"`
	ExposureCap     uint64        `json:"exposure_cap"`
	CumulativeSpend uint64        `json:"cumulative_spend"`
	IsActive        bool          `json:"is_active"`
	CapabilityMask  CapabilitySet `json:"capability_mask"`
	TotalActions    uint64        `json:"total_actions"`
	LastActionAt    int64         `json:"last_action_at"`
}

// NewSession initializes a record at time now lasting durationSecs.
func NewSession(owner, signer Identity, now, durationSecs int64, exposureCap uint64, mask CapabilitySet) (Session, error) {
	if owner.IsZero() || signer.IsZero() {
		return Session{}, fmt.Errorf("%w: owner and delegated signer are required", ErrInvalidArgument)
	}
	if durationSecs <= 0 {
		return Session{}, fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidArgument, durationSecs)
	}
	expiresAt := now + durationSecs
	if expiresAt < now {
		return Session{}, ErrOverflow
	}
	return Session{
		Owner:           owner,
		DelegatedSigner: signer,
		ExpiresAt:       expiresAt,
		ExposureCap:     exposureCap,
		IsActive:        true,
		CapabilityMask:  mask,
		LastActionAt:    now,
	}, nil
}

// IsExpired reports whether the session is expired at now. Expiry is
// inclusive: a session is expired at exactly ExpiresAt.
func (s Session) IsExpired(now int64) bool {
	return now >= s.ExpiresAt
}

// RemainingExposure is how much more spend the cap admits.
func (s Session) RemainingExposure() uint64 {
	if s.CumulativeSpend >= s.ExposureCap {
		return 0
	}
	return s.ExposureCap - s.CumulativeSpend
}

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseActionKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

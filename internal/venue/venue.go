// Package venue forwards pre-authorized value-moving calls to the external
// liquidity venue. The venue's own pricing and account layout are opaque.
package venue

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

// Operation names a venue entry point.
type Operation string

const (
	OperationSwap          Operation = "swap"
	OperationAddLiquidity  Operation = "add_liquidity"
	OperationClosePosition Operation = "close_position"
)

// Call is a venue request that has already passed session authorization.
// IdempotencyKey names the session action the call belongs to; a retry of
// an action whose outcome was never recorded carries the same key.
type Call struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Operation      Operation       `json:"operation"`
	SessionID      uuid.UUID       `json:"session_id"`
	Signer         domain.Identity `json:"signer"`
	Pool           domain.Identity `json:"pool"`
	Position       domain.Identity `json:"position"`
	AmountIn       uint64          `json:"amount_in"`
	MinAmountOut   uint64          `json:"min_amount_out"`
	AmountA        uint64          `json:"amount_a"`
	AmountB        uint64          `json:"amount_b"`
}

// Receipt is the venue's acknowledgement of an executed call.
type Receipt struct {
	Ref string `json:"ref"`
}

// ErrOutcomeUnknown marks a failed call that may still have executed, such
// as a timeout or an unreadable receipt.
var ErrOutcomeUnknown = errors.New("venue outcome unknown")

// Venue executes calls. A nil error means the call executed. An error
// wrapping ErrOutcomeUnknown means it may or may not have, and the venue is
// expected to deduplicate on IdempotencyKey. Any other error means the call
// had no effect.
type Venue interface {
	Execute(ctx context.Context, call Call) (Receipt, error)
}

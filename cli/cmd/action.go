package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

var (
	flagKind     string
	flagAmount   uint64
	flagPool     string
	flagPosition string
	flagAmountIn uint64
	flagMinOut   uint64
	flagAmountA  uint64
	flagAmountB  uint64
)

type actionBody struct {
	Kind   domain.ActionKind `json:"kind"`
	Amount *uint64           `json:"amount,omitempty"`
}

type swapBody struct {
	Pool         domain.Identity `json:"pool"`
	AmountIn     uint64          `json:"amount_in"`
	MinAmountOut uint64          `json:"min_amount_out"`
}

type liquidityBody struct {
	Pool     domain.Identity `json:"pool"`
	Position domain.Identity `json:"position"`
	AmountA  uint64          `json:"amount_a"`
	AmountB  uint64          `json:"amount_b"`
}

type closeBody struct {
	Pool     domain.Identity `json:"pool"`
	Position domain.Identity `json:"position"`
}

var actCmd = &cobra.Command{
	Use:   "act <session-id>",
	Short: "Authorize an action against a session",
	Long: `Run the session gate for one action. Without --amount the exposure check
is skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := domain.ParseActionKind(flagKind)
		if err != nil {
			return fmt.Errorf("--kind: %w", err)
		}
		body := actionBody{Kind: kind}
		if cmd.Flags().Changed("amount") {
			amount := flagAmount
			body.Amount = &amount
		}
		return sessionCall(cmd, http.MethodPost, sessionPath(args[0], "/actions"), nil, body)
	},
}

var swapCmd = &cobra.Command{
	Use:   "swap <session-id>",
	Short: "Swap through the venue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := parseIdentityFlag("pool", flagPool)
		if err != nil {
			return err
		}
		body := swapBody{Pool: pool, AmountIn: flagAmountIn, MinAmountOut: flagMinOut}
		return sessionCall(cmd, http.MethodPost, sessionPath(args[0], "/swap"), nil, body)
	},
}

var liquidityCmd = &cobra.Command{
	Use:   "liquidity <session-id>",
	Short: "Add liquidity to a venue position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, position, err := poolAndPosition()
		if err != nil {
			return err
		}
		body := liquidityBody{Pool: pool, Position: position, AmountA: flagAmountA, AmountB: flagAmountB}
		return sessionCall(cmd, http.MethodPost, sessionPath(args[0], "/liquidity"), nil, body)
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a venue position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, position, err := poolAndPosition()
		if err != nil {
			return err
		}
		return sessionCall(cmd, http.MethodPost, sessionPath(args[0], "/close"), nil, closeBody{Pool: pool, Position: position})
	},
}

func init() {
	actCmd.Flags().StringVar(&flagKind, "kind", "lp_rebalance", "Action kind (name or index)")
	actCmd.Flags().Uint64Var(&flagAmount, "amount", 0, "Exposure consumed by the action")

	swapCmd.Flags().StringVar(&flagPool, "pool", "", "Venue pool (hex)")
	swapCmd.Flags().Uint64Var(&flagAmountIn, "amount-in", 0, "Input amount")
	swapCmd.Flags().Uint64Var(&flagMinOut, "min-out", 0, "Minimum output amount")

	liquidityCmd.Flags().StringVar(&flagPool, "pool", "", "Venue pool (hex)")
	liquidityCmd.Flags().StringVar(&flagPosition, "position", "", "Venue position (hex)")
	liquidityCmd.Flags().Uint64Var(&flagAmountA, "amount-a", 0, "Amount of token A")
	liquidityCmd.Flags().Uint64Var(&flagAmountB, "amount-b", 0, "Amount of token B")

	closeCmd.Flags().StringVar(&flagPool, "pool", "", "Venue pool (hex)")
	closeCmd.Flags().StringVar(&flagPosition, "position", "", "Venue position (hex)")

	rootCmd.AddCommand(actCmd, swapCmd, liquidityCmd, closeCmd)
}

func parseIdentityFlag(name, value string) (domain.Identity, error) {
	if value == "" {
		return domain.Identity{}, fmt.Errorf("--%s is required", name)
	}
	id, err := domain.ParseIdentity(value)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("--%s: %w", name, err)
	}
	return id, nil
}

func poolAndPosition() (domain.Identity, domain.Identity, error) {
	pool, err := parseIdentityFlag("pool", flagPool)
	if err != nil {
		return domain.Identity{}, domain.Identity{}, err
	}
	position, err := parseIdentityFlag("position", flagPosition)
	if err != nil {
		return domain.Identity{}, domain.Identity{}, err
	}
	return pool, position, nil
}

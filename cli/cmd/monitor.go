package cmd

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

var (
	flagMinBound int32
	flagMaxBound int32
	flagObserved int32
	flagFeeA     uint64
	flagFeeB     uint64
)

type registerMonitorBody struct {
	Pool     domain.Identity `json:"pool"`
	Position domain.Identity `json:"position"`
	MinBound int32           `json:"min_bound"`
	MaxBound int32           `json:"max_bound"`
}

type monitorCheckBody struct {
	ObservedValue int32  `json:"observed_value"`
	FeeA          uint64 `json:"fee_a"`
	FeeB          uint64 `json:"fee_b"`
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a venue position's price range",
}

var monitorRegisterCmd = &cobra.Command{
	Use:   "register <session-id>",
	Short: "Register a range monitor for a session's position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, position, err := poolAndPosition()
		if err != nil {
			return err
		}
		body := registerMonitorBody{Pool: pool, Position: position, MinBound: flagMinBound, MaxBound: flagMaxBound}
		return sessionCall(cmd, http.MethodPost, sessionPath(args[0], "/monitor"), nil, body)
	},
}

var monitorGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show a session's monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCall(cmd, http.MethodGet, sessionPath(args[0], "/monitor"), nil, nil)
	},
}

var monitorCheckCmd = &cobra.Command{
	Use:   "check <session-id>",
	Short: "Record an observation and report range transitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := monitorCheckBody{ObservedValue: flagObserved, FeeA: flagFeeA, FeeB: flagFeeB}
		return sessionCall(cmd, http.MethodPost, sessionPath(args[0], "/monitor/checkpoint"), nil, body)
	},
}

func init() {
	monitorRegisterCmd.Flags().StringVar(&flagPool, "pool", "", "Venue pool (hex)")
	monitorRegisterCmd.Flags().StringVar(&flagPosition, "position", "", "Venue position (hex)")
	monitorRegisterCmd.Flags().Int32Var(&flagMinBound, "min", 0, "Lower bound (inclusive)")
	monitorRegisterCmd.Flags().Int32Var(&flagMaxBound, "max", 0, "Upper bound (inclusive)")

	monitorCheckCmd.Flags().Int32Var(&flagObserved, "value", 0, "Observed value")
	monitorCheckCmd.Flags().Uint64Var(&flagFeeA, "fee-a", 0, "Accrued fees of token A")
	monitorCheckCmd.Flags().Uint64Var(&flagFeeB, "fee-b", 0, "Accrued fees of token B")

	monitorCmd.AddCommand(monitorRegisterCmd, monitorGetCmd, monitorCheckCmd)
	rootCmd.AddCommand(monitorCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"liquidity-alerts/internal/app"
)

var (
	simulateMarket float64
	simulateVault  float64
	simulateDryRun bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一组流动性数据并走完告警流程",
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			MarketLiquidity: simulateMarket,
			VaultLiquidity:  simulateVault,
			DryRun:          simulateDryRun,
			Out:             cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "outcome:", outcome)
		return nil
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateMarket, "market-liquidity", 0, "market 可用流动性 (USD)")
	simulateCmd.Flags().Float64Var(&simulateVault, "vault-liquidity", 0, "vault 可用流动性 (USD)")
	simulateCmd.Flags().BoolVar(&simulateDryRun, "dry-run", false, "只打印 webhook payload，不发送")
}

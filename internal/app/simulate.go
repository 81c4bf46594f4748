package app

import (
	"context"
	"errors"
	"io"

	"liquidity-alerts/internal/alerting"
	"liquidity-alerts/internal/provider"
	"liquidity-alerts/internal/service"
)

// SimulateOptions 描述模拟告警的输入。
type SimulateOptions struct {
	MarketLiquidity float64
	VaultLiquidity  float64
	DryRun          bool
	Out             io.Writer
}

// SimulateAlert 使用给定的流动性快照跑一遍完整流程。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) (service.Outcome, error) {
	if opts.MarketLiquidity < 0 || opts.VaultLiquidity < 0 {
		return "", errors.New("--market-liquidity 与 --vault-liquidity 不能为负数")
	}

	var notifier alerting.Notifier
	if opts.DryRun {
		if opts.Out == nil {
			return "", errors.New("dry run requires an output writer")
		}
		notifier = alerting.NewStdoutNotifier(opts.Out)
	} else {
		notifier = a.newNotifier()
	}

	markets := staticMarkets{market: provider.Market{
		Symbol:          a.Config.Market.Symbol,
		TotalSupplyUSD:  provider.Float(opts.MarketLiquidity),
		TotalBorrowsUSD: provider.Float(0),
		CashUSD:         provider.Float(opts.MarketLiquidity),
	}}
	vaults := staticVaults{vault: provider.Vault{
		Symbol:            a.Config.Vault.Symbol,
		TotalLiquidityUSD: provider.Float(opts.VaultLiquidity),
	}}

	svc := service.New(a.serviceOptions(), nil, markets, vaults, notifier, nil, nil, a.Logger)
	return svc.RunOnce(ctx)
}

type staticMarkets struct {
	market provider.Market
}

func (s staticMarkets) ListMarkets(ctx context.Context, chainID int64) ([]provider.Market, error) {
	return []provider.Market{s.market}, nil
}

type staticVaults struct {
	vault provider.Vault
}

func (s staticVaults) ListVaults(ctx context.Context, chainID int64) ([]provider.Vault, error) {
	return []provider.Vault{s.vault}, nil
}

var _ provider.MarketLister = staticMarkets{}
var _ provider.VaultLister = staticVaults{}

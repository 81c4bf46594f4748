// Package pool derives normalized USD liquidity metrics from raw market and
// vault records.
package pool

import (
	"math"

	"liquidity-alerts/internal/provider"
)

// Metrics is the normalized view of one monitored source for a single run.
type Metrics struct {
	TotalSupply        float64
	TotalBorrows       float64
	AvailableLiquidity float64
	APY                float64
}

// CalculateMarket maps a lending market record to Metrics. An absent record
// yields all-zero metrics.
func CalculateMarket(m *provider.Market) Metrics {
	if m == nil {
		return Metrics{}
	}

	return Metrics{
		TotalSupply:        value(m.TotalSupplyUSD),
		TotalBorrows:       value(m.TotalBorrowsUSD),
		AvailableLiquidity: value(m.CashUSD),
		APY:                value(firstPresent(m.SupplyAPY, m.BaseSupplyAPY)),
	}
}

// CalculateVault derives vault metrics from its allocations. The APY is the
// sum of weight*apy; weights are taken as reported and not renormalized.
// Available liquidity is capped at the vault's total liquidity and floored at zero.
func CalculateVault(v *provider.Vault) Metrics {
	if v == nil {
		return Metrics{}
	}

	vaultLiquidity := value(v.TotalLiquidityUSD)

	var apy, totalSupplied, totalMarketLiquidity float64
	if len(v.Allocations) > 0 {
		for _, a := range v.Allocations {
			apy += nonNegative(a.Weight) * nonNegative(a.APY)
			totalSupplied += nonNegative(a.SuppliedUSD)
			totalMarketLiquidity += nonNegative(a.LiquidityUSD)
		}
	} else {
		apy = value(firstPresent(v.TotalAPY, v.BaseAPY))
	}

	// idle cash goes negative when allocations report more than the vault holds
	idleCash := vaultLiquidity - totalSupplied

	return Metrics{
		TotalSupply:        vaultLiquidity,
		TotalBorrows:       totalSupplied,
		AvailableLiquidity: math.Max(0, math.Min(vaultLiquidity, idleCash+totalMarketLiquidity)),
		APY:                apy,
	}
}

func firstPresent(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return nonNegative(*v)
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

package pool

import (
	"math"
	"testing"

	"liquidity-alerts/internal/provider"
)

func TestCalculateMarketAbsent(t *testing.T) {
	if got := CalculateMarket(nil); got != (Metrics{}) {
		t.Fatalf("absent market should be all zero, got %+v", got)
	}
}

func TestCalculateMarketMapsFields(t *testing.T) {
	m := &provider.Market{
		TotalSupplyUSD:  provider.Float(10_000_000),
		TotalBorrowsUSD: provider.Float(7_000_000),
		CashUSD:         provider.Float(3_000_000),
		SupplyAPY:       provider.Float(5.5),
		BaseSupplyAPY:   provider.Float(4.1),
	}

	want := Metrics{TotalSupply: 10_000_000, TotalBorrows: 7_000_000, AvailableLiquidity: 3_000_000, APY: 5.5}
	if got := CalculateMarket(m); got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestCalculateMarketDefaults(t *testing.T) {
	tests := []struct {
		name   string
		market provider.Market
		want   Metrics
	}{
		{
			name:   "apy falls back to base",
			market: provider.Market{BaseSupplyAPY: provider.Float(4.1)},
			want:   Metrics{APY: 4.1},
		},
		{
			name:   "missing fields are zero",
			market: provider.Market{CashUSD: provider.Float(12)},
			want:   Metrics{AvailableLiquidity: 12},
		},
		{
			name:   "negative fields are zero",
			market: provider.Market{CashUSD: provider.Float(-5), TotalSupplyUSD: provider.Float(-1)},
			want:   Metrics{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.market
			if got := CalculateMarket(&m); got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalculateVaultAbsent(t *testing.T) {
	if got := CalculateVault(nil); got != (Metrics{}) {
		t.Fatalf("absent vault should be all zero, got %+v", got)
	}
}

func TestCalculateVaultWeightedAPY(t *testing.T) {
	v := &provider.Vault{
		TotalLiquidityUSD: provider.Float(1_000_000),
		Allocations: []provider.Allocation{
			{Weight: 0.6, APY: 8, SuppliedUSD: 600_000, LiquidityUSD: 100_000},
			{Weight: 0.4, APY: 5, SuppliedUSD: 300_000, LiquidityUSD: 50_000},
		},
		TotalAPY: provider.Float(99),
	}

	got := CalculateVault(v)
	if math.Abs(got.APY-6.8) > 1e-9 {
		t.Fatalf("weighted apy = %v, want 6.8", got.APY)
	}
	if got.TotalSupply != 1_000_000 || got.TotalBorrows != 900_000 {
		t.Fatalf("unexpected totals: %+v", got)
	}
	// idle 100k + market liquidity 150k
	if got.AvailableLiquidity != 250_000 {
		t.Fatalf("available = %v, want 250000", got.AvailableLiquidity)
	}
}

func TestCalculateVaultWeightsNotRenormalized(t *testing.T) {
	v := &provider.Vault{
		TotalLiquidityUSD: provider.Float(100),
		Allocations:       []provider.Allocation{{Weight: 0.5, APY: 10}},
	}
	if got := CalculateVault(v).APY; got != 5 {
		t.Fatalf("apy = %v, want 5", got)
	}
}

func TestCalculateVaultWithoutAllocations(t *testing.T) {
	v := &provider.Vault{
		TotalLiquidityUSD: provider.Float(2_000_000),
		BaseAPY:           provider.Float(4.2),
	}

	want := Metrics{TotalSupply: 2_000_000, AvailableLiquidity: 2_000_000, APY: 4.2}
	if got := CalculateVault(v); got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	v.TotalAPY = provider.Float(5)
	if got := CalculateVault(v).APY; got != 5 {
		t.Fatalf("total apy should win over base, got %v", got)
	}
}

func TestCalculateVaultClampsToTotalLiquidity(t *testing.T) {
	cases := []*provider.Vault{
		{
			TotalLiquidityUSD: provider.Float(30_000_000),
			Allocations: []provider.Allocation{
				{Weight: 1, APY: 5, SuppliedUSD: 20_000_000, LiquidityUSD: 900_000_000},
			},
		},
		{
			TotalLiquidityUSD: provider.Float(1_000),
			Allocations: []provider.Allocation{
				{Weight: 0.5, SuppliedUSD: 5_000, LiquidityUSD: 10_000},
				{Weight: 0.5, SuppliedUSD: 5_000, LiquidityUSD: 10_000},
			},
		},
		{TotalLiquidityUSD: provider.Float(0)},
		{},
	}
	for i, v := range cases {
		got := CalculateVault(v)
		if got.AvailableLiquidity > got.TotalSupply {
			t.Fatalf("case %d: available %v exceeds total supply %v", i, got.AvailableLiquidity, got.TotalSupply)
		}
	}

	if got := CalculateVault(cases[0]).AvailableLiquidity; got != 30_000_000 {
		t.Fatalf("available should clamp to vault liquidity, got %v", got)
	}
}

func TestCalculateVaultOversubscribed(t *testing.T) {
	v := &provider.Vault{
		TotalLiquidityUSD: provider.Float(100),
		Allocations:       []provider.Allocation{{Weight: 1, SuppliedUSD: 150, LiquidityUSD: 20}},
	}
	// idle cash is -50 and 20 - 50 floors at zero
	if got := CalculateVault(v).AvailableLiquidity; got != 0 {
		t.Fatalf("available = %v, want 0", got)
	}

	v = &provider.Vault{
		TotalLiquidityUSD: provider.Float(10),
		Allocations:       []provider.Allocation{{Weight: 1, SuppliedUSD: 100}},
	}
	if got := CalculateVault(v).AvailableLiquidity; got != 0 {
		t.Fatalf("available = %v, want 0", got)
	}
}

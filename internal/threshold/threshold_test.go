package threshold

import (
	"testing"

	"liquidity-alerts/internal/pool"
)

func TestBreachIsStrict(t *testing.T) {
	tests := []struct {
		liquidity, floor float64
		want             bool
	}{
		{4_499_999.99, 4_500_000, true},
		{4_500_000, 4_500_000, false},
		{4_500_000.01, 4_500_000, false},
		{0, 1, true},
		{0, 0, false},
	}
	for _, tt := range tests {
		if got := Breach(tt.liquidity, tt.floor); got != tt.want {
			t.Errorf("Breach(%v, %v) = %v, want %v", tt.liquidity, tt.floor, got, tt.want)
		}
	}
}

func TestEvaluateMarketBelowThreshold(t *testing.T) {
	d := Evaluate(
		map[string]pool.Metrics{"USDC Market": {AvailableLiquidity: 3_000_000}},
		map[string]float64{"USDC Market": 4_500_000},
	)
	if !d.ShouldAlert || !d.Breaches["USDC Market"] {
		t.Fatalf("expected market breach, got %+v", d)
	}
}

func TestEvaluateVaultBreachAloneTriggers(t *testing.T) {
	d := Evaluate(
		map[string]pool.Metrics{
			"USDC Market": {AvailableLiquidity: 5_000_000},
			"USDC Vault":  {AvailableLiquidity: 28_000_000},
		},
		map[string]float64{"USDC Market": 4_500_000, "USDC Vault": 29_000_000},
	)
	if !d.ShouldAlert {
		t.Fatal("vault breach should raise the alert")
	}
	if d.Breaches["USDC Market"] || !d.Breaches["USDC Vault"] {
		t.Fatalf("unexpected breach flags: %+v", d.Breaches)
	}
}

func TestEvaluateHealthy(t *testing.T) {
	d := Evaluate(
		map[string]pool.Metrics{
			"USDC Market": {AvailableLiquidity: 5_000_000},
			"USDC Vault":  {AvailableLiquidity: 30_000_000},
		},
		map[string]float64{"USDC Market": 4_500_000, "USDC Vault": 29_000_000},
	)
	if d.ShouldAlert {
		t.Fatalf("no source is below its floor: %+v", d)
	}
	if len(d.Breaches) != 2 {
		t.Fatalf("every source should carry a flag: %+v", d.Breaches)
	}
}

func TestEvaluateMissingThresholdUsesZero(t *testing.T) {
	d := Evaluate(map[string]pool.Metrics{"orphan": {}}, nil)
	if d.ShouldAlert {
		t.Fatal("zero liquidity is not below a zero floor")
	}
}

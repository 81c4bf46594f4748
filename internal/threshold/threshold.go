package threshold

import "liquidity-alerts/internal/pool"

// Decision is the outcome of comparing every source against its floor.
type Decision struct {
	ShouldAlert bool
	Breaches    map[string]bool
}

// Breach reports whether liquidity sits strictly below the floor.
func Breach(liquidity, floor float64) bool {
	return liquidity < floor
}

// Evaluate flags each source whose available liquidity is below its threshold.
// Sources without a configured threshold are compared against zero.
func Evaluate(metrics map[string]pool.Metrics, thresholds map[string]float64) Decision {
	d := Decision{Breaches: make(map[string]bool, len(metrics))}
	for source, m := range metrics {
		breach := Breach(m.AvailableLiquidity, thresholds[source])
		d.Breaches[source] = breach
		d.ShouldAlert = d.ShouldAlert || breach
	}
	return d
}

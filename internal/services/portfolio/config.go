package portfolio

// Config holds the strategy knobs for scoring, selection and sizing.
type Config struct {
	SafeAsset      string
	DefensiveAsset string
	Leveraged      []string
	MaxPositions   int

	FastWeight     float64
	MedWeight      float64
	SlowWeight     float64
	AboveSMAFactor float64
	BelowSMAFactor float64

	TargetVolatility  float64
	LeveragedCap      float64
	ResidualThreshold float64
	Deadband          float64
}

// DefaultConfig returns the calibrated strategy constants.
func DefaultConfig() Config {
	return Config{
		SafeAsset:         "BIL",
		DefensiveAsset:    "UUP",
		Leveraged:         []string{"SOXL", "TECL", "TQQQ", "FAS", "ERX", "LABU"},
		MaxPositions:      3,
		FastWeight:        0.40,
		MedWeight:         0.35,
		SlowWeight:        0.25,
		AboveSMAFactor:    1.0,
		BelowSMAFactor:    0.6,
		TargetVolatility:  0.60,
		LeveragedCap:      0.50,
		ResidualThreshold: 0.90,
		Deadband:          0.10,
	}
}

func (c Config) isLeveraged(symbol string) bool {
	for _, s := range c.Leveraged {
		if s == symbol {
			return true
		}
	}
	return false
}

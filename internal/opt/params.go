package opt

import "fmt"

// Params are the annealing run parameters. They are fixed for the duration of a run.
type Params struct {
	MaxIterations      int     `json:"maxIterations" yaml:"maxIterations"`
	InitialTemperature float64 `json:"initialTemperature" yaml:"initialTemperature"`
	CoolingRate        float64 `json:"coolingRate" yaml:"coolingRate"`
}

// DefaultParams returns the stock schedule: 10000 iterations starting at
// temperature 1000 and cooling by 1% per iteration.
func DefaultParams() Params {
	return Params{
		MaxIterations:      10000,
		InitialTemperature: 1000.0,
		CoolingRate:        0.99,
	}
}

// Validate reports parameters the annealer cannot run with. The annealer itself
// trusts its inputs; callers at the boundary check them here.
func (p Params) Validate() error {
	if p.MaxIterations <= 0 {
		return fmt.Errorf("maxIterations must be positive, got %d", p.MaxIterations)
	}
	if !(p.InitialTemperature > 0) {
		return fmt.Errorf("initialTemperature must be positive, got %g", p.InitialTemperature)
	}
	if !(p.CoolingRate > 0 && p.CoolingRate < 1) {
		return fmt.Errorf("coolingRate must be in (0,1), got %g", p.CoolingRate)
	}
	return nil
}

package solver

import "context"

// Solver is the narrow contract to the external power-flow engine. One
// Solve call is issued per tick against the already-loaded network model.
// A failed solve is never retried within the same tick; the caller holds
// its previous state for that tick instead.
type Solver interface {
	Solve(ctx context.Context) (Result, error)
}

// Result is the normalized output of one power-flow solve.
//
// Converged=false is a valid result, not an error: the engine continues
// with the reported values and the caller degrades grid-connection status.
type Result struct {
	Converged      bool               `json:"converged"`
	Iterations     int                `json:"iterations"`
	TotalPowerKW   float64            `json:"total_power_kw"`
	TotalPowerKVAR float64            `json:"total_power_kvar"`
	TotalLossesMW  float64            `json:"total_losses_mw"`
	MinVoltagePU   float64            `json:"min_voltage_pu"`
	MaxVoltagePU   float64            `json:"max_voltage_pu"`
	BusVoltages    map[string]float64 `json:"bus_voltages"`   // bus name -> kV line-to-line
	BranchPowers   map[string]float64 `json:"branch_powers"`  // element id -> kW
}

// BusVoltage returns the solved line-to-line kV for a bus, or fallback
// when the bus is absent from the solution.
func (r Result) BusVoltage(bus string, fallback float64) float64 {
	if v, ok := r.BusVoltages[bus]; ok {
		return v
	}
	return fallback
}

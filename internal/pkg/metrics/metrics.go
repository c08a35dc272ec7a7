// Package metrics derives plant-wide quantities from the latest solve
// result and the asset registry. The aggregate is recomputed wholesale
// every tick; operator commands never edit it directly.
package metrics

import (
	"encoding/json"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/velridge/substation-twin/internal/pkg/asset"
	"github.com/velridge/substation-twin/internal/pkg/solver"
)

// SubstationMetrics is the plant-wide aggregate. TotalPower and
// TotalLoad are MW, Efficiency and VoltageStability percentages,
// Frequency Hz.
type SubstationMetrics struct {
	TotalPower       float64   `json:"total_power"`
	TotalLoad        float64   `json:"total_load"`
	Efficiency       float64   `json:"efficiency"`
	VoltageStability float64   `json:"voltage_stability"`
	Frequency        float64   `json:"frequency"`
	GridConnected    bool      `json:"grid_connection"`
	FaultCount       int       `json:"fault_count"`
	Timestamp        time.Time `json:"timestamp"`
}

// Config sets the nominal grid frequency and the sigma of its simulated
// perturbation.
type Config struct {
	NominalHz float64 `json:"NominalHz"`
	FreqSigma float64 `json:"FreqSigma"`
}

// Aggregator recomputes and serves SubstationMetrics.
type Aggregator struct {
	mux    *sync.Mutex
	rng    *rand.Rand
	config Config
	status SubstationMetrics
}

// NewAggregator returns a configured Aggregator
func NewAggregator(jsonConfig []byte, seed int64) (*Aggregator, error) {
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	status := SubstationMetrics{Frequency: cfg.NominalHz, GridConnected: true}
	return &Aggregator{&sync.Mutex{}, rng, cfg, status}, nil
}

// Recompute rebuilds every metric from one solve result and a registry
// snapshot. There is no incremental path.
func (a *Aggregator) Recompute(res solver.Result, assets map[string]asset.Asset, faultCount int, now time.Time) SubstationMetrics {
	a.mux.Lock()
	defer a.mux.Unlock()

	totalMW := math.Abs(res.TotalPowerKW) / 1000.0
	inputMW := totalMW + res.TotalLossesMW

	efficiency := 0.0
	if inputMW > 0 {
		efficiency = totalMW / inputMW * 100.0
	}

	deviation := (res.MaxVoltagePU - res.MinVoltagePU) * 100.0
	stability := math.Max(0, 100.0-deviation)

	gridConnected := res.Converged
	for _, as := range assets {
		if as.Class == asset.GridConnection && as.Status == asset.Fault {
			gridConnected = false
		}
	}

	a.status = SubstationMetrics{
		TotalPower:       totalMW,
		TotalLoad:        totalMW,
		Efficiency:       efficiency,
		VoltageStability: stability,
		Frequency:        a.config.NominalHz + a.perturbation(),
		GridConnected:    gridConnected,
		FaultCount:       faultCount,
		Timestamp:        now,
	}
	return a.status
}

// SetFaultCount updates the fault counter outside the tick, mirroring a
// ledger append between recomputes.
func (a *Aggregator) SetFaultCount(n int) {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.status.FaultCount = n
}

// Snapshot returns an immutable copy of the current metrics.
func (a *Aggregator) Snapshot() SubstationMetrics {
	a.mux.Lock()
	defer a.mux.Unlock()
	return a.status
}

// perturbation draws the bounded frequency wobble, clamped to three sigma.
func (a *Aggregator) perturbation() float64 {
	if a.config.FreqSigma == 0 {
		return 0
	}
	n := a.rng.NormFloat64() * a.config.FreqSigma
	return math.Max(-3*a.config.FreqSigma, math.Min(3*a.config.FreqSigma, n))
}

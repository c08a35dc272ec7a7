// Package virtualsolver is an in-process stand-in for the external
// power-flow engine. It produces plausible network quantities around a
// configured operating point: a diurnal-shaped load cycle advanced one
// step per solve, bounded noise on bus voltages, and fixed losses. The
// whole output sequence is reproducible for a given seed. Convergence
// failures and solve errors can be scripted for exercising degraded
// operation.
package virtualsolver

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sync"

	"github.com/velridge/substation-twin/internal/pkg/solver"
)

// demandCycleTicks is the length of one full load cycle in solves.
const demandCycleTicks = 1440

// VirtualSolver target
type VirtualSolver struct {
	mux     *sync.Mutex
	cfg     MachineConfig
	rng     *rand.Rand
	tick    int
	pending []error
	diverge bool
}

// MachineConfig is the operating point the virtual engine solves around.
type MachineConfig struct {
	Name       string             `json:"Name"`
	Buses      map[string]float64 `json:"Buses"`    // bus name -> nominal kV
	Loads      map[string]float64 `json:"Loads"`    // load id -> base kW
	Branches   map[string]float64 `json:"Branches"` // element id -> share of total
	LossesMW   float64            `json:"LossesMW"`
	MinPU      float64            `json:"MinPU"`
	MaxPU      float64            `json:"MaxPU"`
	NoiseSigma float64            `json:"NoiseSigma"`
}

// New returns a configured VirtualSolver
func New(jsonConfig []byte, seed int64) (*VirtualSolver, error) {
	cfg := MachineConfig{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	return &VirtualSolver{&sync.Mutex{}, cfg, rng, 0, nil, false}, nil
}

// FailNext scripts an error for the next Solve call. Errors are consumed
// in the order queued.
func (s *VirtualSolver) FailNext(err error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.pending = append(s.pending, err)
}

// SetConverged forces the convergence flag on subsequent solves.
func (s *VirtualSolver) SetConverged(converged bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.diverge = !converged
}

// Solve runs one virtual load flow.
func (s *VirtualSolver) Solve(ctx context.Context) (solver.Result, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if err := ctx.Err(); err != nil {
		return solver.Result{}, err
	}
	if len(s.pending) > 0 {
		err := s.pending[0]
		s.pending = s.pending[1:]
		return solver.Result{}, err
	}

	demand := s.demandFactor()

	branchPowers := make(map[string]float64)
	totalKW := 0.0
	for id, baseKW := range s.cfg.Loads {
		kw := baseKW * demand * (1 + s.noise())
		branchPowers[id] = kw
		totalKW += kw
	}
	for id, share := range s.cfg.Branches {
		branchPowers[id] = share * totalKW
	}

	minPU, maxPU := 1.0, 1.0
	busVoltages := make(map[string]float64)
	for bus, nominalKV := range s.cfg.Buses {
		pu := s.boundedPU()
		busVoltages[bus] = nominalKV * pu
		minPU = math.Min(minPU, pu)
		maxPU = math.Max(maxPU, pu)
	}

	return solver.Result{
		Converged:      !s.diverge,
		Iterations:     2 + s.rng.Intn(6),
		TotalPowerKW:   totalKW,
		TotalPowerKVAR: totalKW * 0.33,
		TotalLossesMW:  s.cfg.LossesMW,
		MinVoltagePU:   minPU,
		MaxVoltagePU:   maxPU,
		BusVoltages:    busVoltages,
		BranchPowers:   branchPowers,
	}, nil
}

// demandFactor advances the load cycle one step. A slow sinusoid makes
// consecutive solves drift like a daily demand curve while keeping the
// sequence a pure function of the solve count.
func (s *VirtualSolver) demandFactor() float64 {
	f := 0.85 + 0.15*math.Sin(2*math.Pi*float64(s.tick)/demandCycleTicks)
	s.tick++
	return f
}

func (s *VirtualSolver) noise() float64 {
	if s.cfg.NoiseSigma == 0 {
		return 0
	}
	n := s.rng.NormFloat64() * s.cfg.NoiseSigma
	bound := 3 * s.cfg.NoiseSigma
	return math.Max(-bound, math.Min(bound, n))
}

// boundedPU samples a per-unit voltage inside the configured band.
func (s *VirtualSolver) boundedPU() float64 {
	if s.cfg.MaxPU <= s.cfg.MinPU {
		return 1.0
	}
	return s.cfg.MinPU + s.rng.Float64()*(s.cfg.MaxPU-s.cfg.MinPU)
}

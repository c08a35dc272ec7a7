package virtualsolver

import (
	"context"
	"errors"
	"io/ioutil"
	"testing"

	"gotest.tools/v3/assert"
)

func newTestSolver(t *testing.T) *VirtualSolver {
	jsonConfig, err := ioutil.ReadFile("virtualsolver_test_config.json")
	assert.NilError(t, err)
	s, err := New(jsonConfig, 1)
	assert.NilError(t, err)
	return s
}

func TestReadConfig(t *testing.T) {
	s := newTestSolver(t)
	assert.Equal(t, s.cfg.Name, "TEST_Virtual LoadFlow")
	assert.Equal(t, s.cfg.LossesMW, 3.2)
	assert.Equal(t, len(s.cfg.Buses), 3)
	assert.Equal(t, len(s.cfg.Loads), 2)
	assert.Equal(t, len(s.cfg.Branches), 5)
}

func TestSolve(t *testing.T) {
	s := newTestSolver(t)
	res, err := s.Solve(context.Background())
	assert.NilError(t, err)

	assert.Assert(t, res.Converged)
	assert.Assert(t, res.TotalPowerKW > 0, "expected positive demand, got %v", res.TotalPowerKW)

	// demand stays inside the diurnal band with zero noise
	assert.Assert(t, res.TotalPowerKW >= 27000*0.70)
	assert.Assert(t, res.TotalPowerKW <= 27000*1.0)

	// branch powers apportioned by configured share
	assert.Equal(t, res.BranchPowers["TX1_400_220"], 0.5*res.TotalPowerKW)
	assert.Equal(t, res.BranchPowers["Grid400kV"], res.TotalPowerKW)

	// bus voltages inside the per-unit band
	for bus, kv := range res.BusVoltages {
		nominal := s.cfg.Buses[bus]
		assert.Assert(t, kv >= nominal*s.cfg.MinPU, "bus %v under band: %v", bus, kv)
		assert.Assert(t, kv <= nominal*s.cfg.MaxPU, "bus %v over band: %v", bus, kv)
	}
	assert.Assert(t, res.MinVoltagePU >= s.cfg.MinPU)
	assert.Assert(t, res.MaxVoltagePU <= s.cfg.MaxPU)
}

func TestSolveDeterministicForSeed(t *testing.T) {
	jsonConfig, err := ioutil.ReadFile("virtualsolver_test_config.json")
	assert.NilError(t, err)
	s1, err := New(jsonConfig, 42)
	assert.NilError(t, err)
	s2, err := New(jsonConfig, 42)
	assert.NilError(t, err)

	for i := 0; i < 5; i++ {
		r1, err := s1.Solve(context.Background())
		assert.NilError(t, err)
		r2, err := s2.Solve(context.Background())
		assert.NilError(t, err)
		assert.DeepEqual(t, r1, r2)
	}
}

func TestDemandFactorAdvancesPerSolve(t *testing.T) {
	s := newTestSolver(t)

	first, err := s.Solve(context.Background())
	assert.NilError(t, err)
	second, err := s.Solve(context.Background())
	assert.NilError(t, err)

	// the load cycle moves between consecutive solves
	assert.Assert(t, first.TotalPowerKW != second.TotalPowerKW)
}

func TestScriptedFailure(t *testing.T) {
	s := newTestSolver(t)
	scripted := errors.New("engine unavailable")
	s.FailNext(scripted)

	_, err := s.Solve(context.Background())
	assert.Assert(t, errors.Is(err, scripted))

	// failures are one-shot
	_, err = s.Solve(context.Background())
	assert.NilError(t, err)
}

func TestScriptedDivergence(t *testing.T) {
	s := newTestSolver(t)
	s.SetConverged(false)

	res, err := s.Solve(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, !res.Converged, "expected diverged solve")

	s.SetConverged(true)
	res, err = s.Solve(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, res.Converged)
}

func TestSolveHonorsContext(t *testing.T) {
	s := newTestSolver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Solve(ctx)
	assert.Assert(t, errors.Is(err, context.Canceled))
}

package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/velridge/substation-twin/internal/pkg/solver"
)

// Registry errors returned synchronously to command callers. Neither
// affects other assets or the tick loop.
var (
	ErrNotFound          = errors.New("asset not found")
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Control actions accepted by ApplyControl.
const (
	ActionOpen  = "open"
	ActionClose = "close"
	ActionTrip  = "trip"
	ActionReset = "reset"
)

// Health drift and control constants. Per-class thermal thresholds live
// in the manifest; these govern how fast the score moves between them.
const (
	healthRecover     = 0.05
	warningDecay      = 0.1
	faultDecay        = 0.5
	breakerFaultDecay = 1.0
	transformerFloor  = 60.0
	loadFloor         = 70.0
	tripPenalty       = 10.0
	resetBonus        = 20.0
)

const sqrt3 = 1.732

// Registry owns the canonical per-asset state. It is the single writer
// during a solver tick and during a control command: both paths take the
// same mutex, so partial updates never interleave and every reader sees
// a fully updated snapshot.
type Registry struct {
	mux    *sync.Mutex
	rng    *rand.Rand
	assets map[string]*Asset
	config map[string]MachineConfig
}

type manifest struct {
	Assets []MachineConfig `json:"Assets"`
}

// NewRegistry builds the registry from a JSON manifest. Assets are
// created once here and never removed.
func NewRegistry(jsonConfig []byte, seed int64) (*Registry, error) {
	m := manifest{}
	if err := json.Unmarshal(jsonConfig, &m); err != nil {
		return nil, err
	}
	if len(m.Assets) == 0 {
		return nil, errors.New("manifest holds no assets")
	}

	assets := make(map[string]*Asset)
	config := make(map[string]MachineConfig)
	for _, cfg := range m.Assets {
		if _, ok := assets[cfg.ID]; ok {
			return nil, fmt.Errorf("duplicate asset id %q in manifest", cfg.ID)
		}
		assets[cfg.ID] = &Asset{
			ID:          cfg.ID,
			Class:       cfg.Class,
			Status:      Healthy,
			Voltage:     cfg.NominalKV,
			Current:     phaseCurrent(cfg.BaseKW, cfg.NominalKV),
			Power:       cfg.BaseKW,
			Temperature: cfg.BaseTemp,
			HealthScore: clampHealth(cfg.InitialHealth),
		}
		config[cfg.ID] = cfg
	}

	rng := rand.New(rand.NewSource(seed))
	return &Registry{&sync.Mutex{}, rng, assets, config}, nil
}

// Get returns a copy of one asset.
func (r *Registry) Get(id string) (Asset, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return *a, nil
}

// Snapshot returns an immutable copy of every asset, safe to read
// without synchronization.
func (r *Registry) Snapshot() map[string]Asset {
	r.mux.Lock()
	defer r.mux.Unlock()
	snap := make(map[string]Asset, len(r.assets))
	for id, a := range r.assets {
		snap[id] = *a
	}
	return snap
}

// ApplySolverUpdate rewrites solver-derived fields from one load-flow
// result and re-derives status and health for every asset in a single
// pass under the registry mutex.
func (r *Registry) ApplySolverUpdate(res solver.Result, now time.Time) {
	r.mux.Lock()
	defer r.mux.Unlock()
	for id, a := range r.assets {
		cfg := r.config[id]
		switch a.Class {
		case GridConnection:
			r.updateGrid(a, cfg, res)
		case PowerTransformer, DistributionTransformer:
			r.updateTransformer(a, cfg, res)
		case Breaker:
			r.updateBreaker(a, cfg)
		case IndustrialLoad:
			r.updateLoad(a, cfg, res)
		}
		a.LastUpdated = now
	}
}

func (r *Registry) updateGrid(a *Asset, cfg MachineConfig, res solver.Result) {
	a.Voltage = res.BusVoltage(cfg.Bus, a.Voltage)
	a.Power = branchPower(res, cfg)
	a.Current = phaseCurrent(a.Power, a.Voltage)
	a.Temperature = cfg.BaseTemp + r.jitter(cfg.JitterSigma)
	if a.Status == Maintenance {
		return
	}
	if a.Status == Fault {
		a.HealthScore = clampHealth(a.HealthScore - faultDecay)
		return
	}
	if res.Converged {
		a.Status = Healthy
		a.HealthScore = clampHealth(a.HealthScore + healthRecover)
	} else {
		a.Status = Warning
	}
}

func (r *Registry) updateTransformer(a *Asset, cfg MachineConfig, res solver.Result) {
	a.Voltage = res.BusVoltage(cfg.Bus, a.Voltage)
	a.Power = branchPower(res, cfg)
	a.Current = phaseCurrent(a.Power, a.Voltage)
	a.Temperature = cfg.BaseTemp + loadFactor(a.Power, cfg.RatedKW)*cfg.TempRange + r.jitter(cfg.JitterSigma)
	if a.Status == Maintenance {
		return
	}
	// the thermal derivation supersedes any operator trip/reset from the
	// previous interval; Fault > Warning > Healthy
	switch {
	case a.Temperature > cfg.FaultTemp:
		a.Status = Fault
		a.HealthScore = clampHealth(a.HealthScore - faultDecay)
	case a.Temperature > cfg.WarnTemp:
		a.Status = Warning
		a.HealthScore = math.Max(transformerFloor, a.HealthScore-warningDecay)
	default:
		a.Status = Healthy
		a.HealthScore = clampHealth(a.HealthScore + healthRecover)
	}
}

// updateBreaker never derives status: breakers hold their explicit
// operator state (open/closed/fault/maintenance) between control actions.
func (r *Registry) updateBreaker(a *Asset, cfg MachineConfig) {
	a.Temperature = cfg.BaseTemp + r.jitter(cfg.JitterSigma)
	if a.Status == Open {
		a.Current = 0
		a.Power = 0
	}
	if a.Status == Fault {
		a.HealthScore = clampHealth(a.HealthScore - breakerFaultDecay)
	} else if a.Status != Maintenance {
		a.HealthScore = clampHealth(a.HealthScore + healthRecover)
	}
}

func (r *Registry) updateLoad(a *Asset, cfg MachineConfig, res solver.Result) {
	a.Voltage = res.BusVoltage(cfg.Bus, a.Voltage)
	a.Power = branchPower(res, cfg)
	a.Current = phaseCurrent(a.Power, a.Voltage)
	a.Temperature = cfg.BaseTemp + loadFactor(a.Power, cfg.RatedKW)*cfg.TempRange + r.jitter(cfg.JitterSigma)
	if a.Status == Maintenance {
		return
	}
	if cfg.WarnKW > 0 && a.Power > cfg.WarnKW {
		a.Status = Warning
		a.HealthScore = math.Max(loadFloor, a.HealthScore-warningDecay)
	} else {
		a.Status = Healthy
		a.HealthScore = clampHealth(a.HealthScore + healthRecover)
	}
}

// ApplyControl applies one operator command against the per-class action
// table. It shares the registry mutex with ApplySolverUpdate, so no
// command interleaves with a tick's write to the same asset. Commands
// apply exactly once; there is no retry.
func (r *Registry) ApplyControl(id, action string, now time.Time) (Asset, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	switch action {
	case ActionOpen:
		if a.Class != Breaker {
			return Asset{}, fmt.Errorf("%w: %q on class %q", ErrUnsupportedAction, action, a.Class)
		}
		a.Status = Open
		a.Current = 0
		a.Power = 0
	case ActionClose:
		if a.Class != Breaker {
			return Asset{}, fmt.Errorf("%w: %q on class %q", ErrUnsupportedAction, action, a.Class)
		}
		a.Status = Closed
	case ActionTrip:
		a.Status = Fault
		a.HealthScore = clampHealth(a.HealthScore - tripPenalty)
	case ActionReset:
		a.Status = Healthy
		a.HealthScore = clampHealth(a.HealthScore + resetBonus)
	default:
		return Asset{}, fmt.Errorf("%w: %q on class %q", ErrUnsupportedAction, action, a.Class)
	}

	a.LastUpdated = now
	return *a, nil
}

// OverlayTelemetry writes externally measured values (e.g. a SCADA read)
// onto one asset through the same exclusion domain as the tick.
// Recognized keys: voltage, current, power, temperature.
func (r *Registry) OverlayTelemetry(id string, values map[string]float64, now time.Time) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	for key, v := range values {
		switch key {
		case "voltage":
			a.Voltage = v
		case "current":
			a.Current = v
		case "power":
			a.Power = v
		case "temperature":
			a.Temperature = v
		}
	}
	a.LastUpdated = now
	return nil
}

func branchPower(res solver.Result, cfg MachineConfig) float64 {
	if kw, ok := res.BranchPowers[cfg.ID]; ok {
		return math.Abs(kw)
	}
	if cfg.Share > 0 {
		return cfg.Share * math.Abs(res.TotalPowerKW)
	}
	return cfg.BaseKW
}

func loadFactor(powerKW, ratedKW float64) float64 {
	if ratedKW <= 0 {
		return 0
	}
	return math.Min(powerKW/ratedKW, 1.0)
}

func phaseCurrent(powerKW, kv float64) float64 {
	if kv <= 0 {
		return 0
	}
	return powerKW / (kv * sqrt3)
}

func clampHealth(h float64) float64 {
	return math.Max(0, math.Min(100, h))
}

// jitter draws bounded measurement noise, clamped to three sigma.
func (r *Registry) jitter(sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	n := r.rng.NormFloat64() * sigma
	return math.Max(-3*sigma, math.Min(3*sigma, n))
}

package asset

import "time"

// Class is the archetype of a substation asset.
type Class string

// Asset classes in the substation manifest.
const (
	GridConnection          Class = "GridConnection"
	PowerTransformer        Class = "PowerTransformer"
	DistributionTransformer Class = "DistributionTransformer"
	Breaker                 Class = "CircuitBreaker"
	IndustrialLoad          Class = "IndustrialLoad"
)

// Status is the operating state of an asset. Thermally modeled classes
// derive Healthy/Warning/Fault from temperature with precedence
// Fault > Warning > Healthy. Breakers are driven by explicit operator
// state instead and hold it until the next control action.
type Status string

// Asset statuses.
const (
	Healthy     Status = "healthy"
	Warning     Status = "warning"
	Fault       Status = "fault"
	Maintenance Status = "maintenance"
	Open        Status = "open"
	Closed      Status = "closed"
)

// Asset is the live state of one simulated substation component. Voltage
// is kV line-to-line, current amps, power kW, temperature degrees C.
// HealthScore is clamped to [0, 100]. LastUpdated never decreases.
type Asset struct {
	ID          string    `json:"asset_id"`
	Class       Class     `json:"asset_type"`
	Status      Status    `json:"status"`
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	Power       float64   `json:"power"`
	Temperature float64   `json:"temperature"`
	HealthScore float64   `json:"health_score"`
	LastUpdated time.Time `json:"timestamp"`
}

// MachineConfig is the per-asset entry in the substation manifest.
// Thermal constants are configuration, not hard-coded physics: the
// steady-state temperature is BaseTemp + loadFactor*TempRange plus
// bounded jitter, with loadFactor = power/RatedKW capped at 1.
type MachineConfig struct {
	ID            string  `json:"ID"`
	Class         Class   `json:"Class"`
	Bus           string  `json:"Bus"`
	NominalKV     float64 `json:"NominalKV"`
	RatedKW       float64 `json:"RatedKW"`
	BaseKW        float64 `json:"BaseKW"`
	Share         float64 `json:"Share"`
	WarnKW        float64 `json:"WarnKW"`
	BaseTemp      float64 `json:"BaseTemp"`
	TempRange     float64 `json:"TempRange"`
	WarnTemp      float64 `json:"WarnTemp"`
	FaultTemp     float64 `json:"FaultTemp"`
	JitterSigma   float64 `json:"JitterSigma"`
	InitialHealth float64 `json:"InitialHealth"`
}

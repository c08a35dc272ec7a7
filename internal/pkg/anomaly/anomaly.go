package anomaly

import (
	"context"

	"github.com/velridge/substation-twin/internal/pkg/asset"
	"github.com/velridge/substation-twin/internal/pkg/metrics"
)

// Severity grades an alert.
type Severity string

// Alert severities. High is reserved for assets whose health has fallen
// below the critical line.
const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert flags one statistically anomalous asset. Alerts are attached to
// the broadcast snapshot for one tick and not persisted.
type Alert struct {
	AssetID  string   `json:"asset_id"`
	Score    float64  `json:"score"`
	Severity Severity `json:"severity"`
}

// Snapshot is the full post-tick state document handed to the analyzer.
type Snapshot struct {
	Assets  map[string]asset.Asset    `json:"assets"`
	Metrics metrics.SubstationMetrics `json:"metrics"`
}

// Analyzer is the narrow contract to the external anomaly model. A
// failed or timed-out analysis degrades to an empty alert list for the
// tick; it is never retried and never escalates.
type Analyzer interface {
	Analyze(ctx context.Context, snap Snapshot) ([]Alert, error)
}

// Package zscore is an in-process anomaly analyzer. It keeps a running
// mean and variance of each asset's temperature (Welford's method) and
// flags readings whose z-score clears a configured gate. It stands in
// for the external learned model behind the same Analyzer contract.
package zscore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/velridge/substation-twin/internal/pkg/anomaly"
)

// An asset needs this many observations before it can be scored.
const minSamples = 10

// criticalHealth is the line below which an anomalous asset is graded
// high severity.
const criticalHealth = 50.0

// Analyzer scores per-asset temperature deviations.
type Analyzer struct {
	mux   *sync.Mutex
	gate  float64
	stats map[string]*welford
}

type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) observe(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

func (w *welford) stddev() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n-1))
}

// New returns an Analyzer alerting above the given z-score gate.
func New(gate float64) *Analyzer {
	return &Analyzer{&sync.Mutex{}, gate, make(map[string]*welford)}
}

// Analyze folds the snapshot into the running statistics and returns
// alerts for assets whose temperature deviates past the gate. The alert
// list is ordered by asset id for stable output.
func (a *Analyzer) Analyze(ctx context.Context, snap anomaly.Snapshot) ([]anomaly.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mux.Lock()
	defer a.mux.Unlock()

	var alerts []anomaly.Alert
	for id, as := range snap.Assets {
		w, ok := a.stats[id]
		if !ok {
			w = &welford{}
			a.stats[id] = w
		}

		var z float64
		if w.n >= minSamples {
			if sd := w.stddev(); sd > 0 {
				z = (as.Temperature - w.mean) / sd
			}
		}
		w.observe(as.Temperature)

		if math.Abs(z) > a.gate {
			severity := anomaly.SeverityMedium
			if as.HealthScore < criticalHealth {
				severity = anomaly.SeverityHigh
			}
			alerts = append(alerts, anomaly.Alert{AssetID: id, Score: z, Severity: severity})
		}
	}

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].AssetID < alerts[j].AssetID })
	return alerts, nil
}

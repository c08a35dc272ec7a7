// Package twin assembles one substation digital twin instance: the
// asset registry, metrics aggregator, fault ledger, solver and analyzer
// gateways, and the broadcast publisher, driven by a fixed-period tick.
// The twin is an explicit context object; nothing here is a package
// singleton, so independent instances coexist in tests.
package twin

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velridge/substation-twin/internal/pkg/anomaly"
	"github.com/velridge/substation-twin/internal/pkg/asset"
	"github.com/velridge/substation-twin/internal/pkg/faults"
	"github.com/velridge/substation-twin/internal/pkg/metrics"
	"github.com/velridge/substation-twin/internal/pkg/msg"
	"github.com/velridge/substation-twin/internal/pkg/solver"
)

// Update is the full-state document broadcast once per successful tick.
// It is deliberately the complete current state, not a diff: bandwidth
// is traded for client-side simplicity.
type Update struct {
	Type      string                    `json:"type"`
	Assets    map[string]asset.Asset    `json:"assets"`
	Metrics   metrics.SubstationMetrics `json:"metrics"`
	Alerts    []anomaly.Alert           `json:"alerts,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
}

// Config tunes the tick loop.
type Config struct {
	TickPeriodMs  int `json:"TickPeriodMs"`
	CallTimeoutMs int `json:"CallTimeoutMs"`
}

// Twin is one substation digital twin instance.
type Twin struct {
	mux        *sync.Mutex
	pid        uuid.UUID
	config     Config
	registry   *asset.Registry
	aggregator *metrics.Aggregator
	ledger     *faults.Ledger
	solver     solver.Solver
	analyzer   anomaly.Analyzer
	pubsub     *msg.PubSub
	running    bool
	stop       chan chan struct{}
}

// New assembles a Twin from its collaborators.
func New(jsonConfig []byte, registry *asset.Registry, aggregator *metrics.Aggregator,
	ledger *faults.Ledger, slv solver.Solver, analyzer anomaly.Analyzer) (*Twin, error) {
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}
	if cfg.TickPeriodMs <= 0 {
		cfg.TickPeriodMs = 1000
	}
	if cfg.CallTimeoutMs <= 0 {
		cfg.CallTimeoutMs = cfg.TickPeriodMs
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	return &Twin{
		mux:        &sync.Mutex{},
		pid:        pid,
		config:     cfg,
		registry:   registry,
		aggregator: aggregator,
		ledger:     ledger,
		solver:     slv,
		analyzer:   analyzer,
		pubsub:     msg.NewPublisher(pid),
		stop:       make(chan chan struct{}),
	}, nil
}

// PID is a getter for the twin PID
func (t *Twin) PID() uuid.UUID {
	return t.pid
}

// Registry exposes the asset registry read path.
func (t *Twin) Registry() *asset.Registry {
	return t.registry
}

// Metrics exposes the metrics read path.
func (t *Twin) Metrics() *metrics.Aggregator {
	return t.aggregator
}

// Faults exposes the fault ledger read path.
func (t *Twin) Faults() *faults.Ledger {
	return t.ledger
}

// Subscribe attaches a broadcast subscriber. A subscriber registered
// after tick K receives snapshots from tick K+1 onward; nothing is
// replayed.
func (t *Twin) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return t.pubsub.Subscribe(pid, topic)
}

// Unsubscribe detaches a broadcast subscriber.
func (t *Twin) Unsubscribe(pid uuid.UUID) {
	t.pubsub.Unsubscribe(pid)
}

// Subscribers returns the current subscriber count for topic.
func (t *Twin) Subscribers(topic msg.Topic) int {
	return t.pubsub.Subscribers(topic)
}

// Start launches the tick loop. Calling Start on a running twin is a
// no-op.
func (t *Twin) Start() {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.running {
		return
	}
	t.running = true
	go t.run()
	log.Println("[Twin] simulation started")
}

// Stop halts scheduling and waits for the in-flight tick to complete,
// so no partial state is broadcast on shutdown. Calling Stop on a
// stopped twin is a no-op.
func (t *Twin) Stop() {
	t.mux.Lock()
	defer t.mux.Unlock()
	if !t.running {
		return
	}
	ack := make(chan struct{})
	t.stop <- ack
	<-ack
	t.running = false
	log.Println("[Twin] simulation stopped")
}

// run drives ticks from a single goroutine: ticks can never overlap,
// and a tick that overruns its period simply delays the next one.
func (t *Twin) run() {
	ticker := time.NewTicker(time.Duration(t.config.TickPeriodMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ack := <-t.stop:
			close(ack)
			return
		case now := <-ticker.C:
			t.RunTick(now)
		}
	}
}

// RunTick executes one full tick: solve, registry update, metrics
// recompute, anomaly analysis, broadcast. Any failure inside the tick
// is absorbed: the twin holds its previous state for that tick and the
// loop proceeds on schedule.
func (t *Twin) RunTick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Twin] tick recovered: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), t.callTimeout())
	res, err := t.solver.Solve(ctx)
	cancel()
	if err != nil {
		log.Printf("[Twin] solve failed, holding previous state: %v", err)
		return
	}

	t.registry.ApplySolverUpdate(res, now)
	assets := t.registry.Snapshot()
	m := t.aggregator.Recompute(res, assets, t.ledger.Count(), now)

	actx, acancel := context.WithTimeout(context.Background(), t.callTimeout())
	alerts, err := t.analyzer.Analyze(actx, anomaly.Snapshot{Assets: assets, Metrics: m})
	acancel()
	if err != nil {
		log.Printf("[Twin] analyze failed, degrading to empty alert list: %v", err)
		alerts = nil
	}

	t.pubsub.Publish(msg.Update, Update{
		Type:      "update",
		Assets:    assets,
		Metrics:   m,
		Alerts:    alerts,
		Timestamp: now,
	})
}

// AnalyzeFault records one synthetic fault analysis, bumps the metric
// counter and publishes the record on the fault topic.
func (t *Twin) AnalyzeFault(faultType, location string, now time.Time) faults.Record {
	rec := t.ledger.Record(faultType, location, now)
	t.aggregator.SetFaultCount(t.ledger.Count())
	t.pubsub.Publish(msg.Fault, rec)
	log.Printf("[Twin] fault analysis: %v at %v", faultType, location)
	return rec
}

func (t *Twin) callTimeout() time.Duration {
	return time.Duration(t.config.CallTimeoutMs) * time.Millisecond
}

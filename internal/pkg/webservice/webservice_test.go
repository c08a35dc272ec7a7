package webservice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gotest.tools/v3/assert"

	"github.com/velridge/substation-twin/internal/pkg/anomaly"
	"github.com/velridge/substation-twin/internal/pkg/asset"
	"github.com/velridge/substation-twin/internal/pkg/control"
	"github.com/velridge/substation-twin/internal/pkg/faults"
	"github.com/velridge/substation-twin/internal/pkg/metrics"
	"github.com/velridge/substation-twin/internal/pkg/msg"
	"github.com/velridge/substation-twin/internal/pkg/solver"
	"github.com/velridge/substation-twin/internal/pkg/twin"
)

var testManifest = []byte(`{
    "Assets": [
        {"ID": "Grid400kV", "Class": "GridConnection", "Bus": "400kv", "NominalKV": 400.0,
         "Share": 1.0, "BaseTemp": 25.0, "InitialHealth": 100.0},
        {"ID": "CB_1", "Class": "CircuitBreaker", "BaseTemp": 30.0, "InitialHealth": 98.0}
    ]
}`)

type staticSolver struct{ res solver.Result }

func (s staticSolver) Solve(ctx context.Context) (solver.Result, error) { return s.res, nil }

type quietAnalyzer struct{}

func (quietAnalyzer) Analyze(ctx context.Context, snap anomaly.Snapshot) ([]anomaly.Alert, error) {
	return nil, nil
}

func newTestService(t *testing.T) (Service, *twin.Twin) {
	registry, err := asset.NewRegistry(testManifest, 1)
	assert.NilError(t, err)
	aggregator, err := metrics.NewAggregator([]byte(`{"NominalHz": 50.0}`), 1)
	assert.NilError(t, err)
	tw, err := twin.New([]byte(`{"TickPeriodMs": 10}`), registry, aggregator,
		faults.NewLedger(1), staticSolver{solver.Result{Converged: true, TotalPowerKW: 18000.0}},
		quietAnalyzer{})
	assert.NilError(t, err)
	return New(tw), tw
}

func get(t *testing.T, s Service, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://example.com"+path, nil)
	makeRouter(s).ServeHTTP(w, r)
	return w
}

func post(t *testing.T, s Service, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://example.com"+path, bytes.NewBufferString(body))
	makeRouter(s).ServeHTTP(w, r)
	return w
}

func TestGetAssets(t *testing.T) {
	s, _ := newTestService(t)
	w := get(t, s, "/api/assets")
	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Header().Get("Content-Type"), "application/json; charset=UTF-8")

	assets := map[string]asset.Asset{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &assets))
	assert.Equal(t, len(assets), 2)
	assert.Equal(t, assets["Grid400kV"].Class, asset.GridConnection)
}

func TestGetOneAsset(t *testing.T) {
	s, _ := newTestService(t)
	w := get(t, s, "/api/assets/CB_1")
	assert.Equal(t, w.Code, http.StatusOK)

	a := asset.Asset{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, a.ID, "CB_1")

	w = get(t, s, "/api/assets/CB_9")
	assert.Equal(t, w.Code, http.StatusNotFound)
}

func TestGetMetrics(t *testing.T) {
	s, tw := newTestService(t)
	tw.RunTick(time.Now())

	w := get(t, s, "/api/metrics")
	assert.Equal(t, w.Code, http.StatusOK)

	m := metrics.SubstationMetrics{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, m.TotalPower, 18.0)
}

func TestControlEndpoint(t *testing.T) {
	s, tw := newTestService(t)

	w := post(t, s, "/api/control", `{"asset_id": "CB_1", "action": "open"}`)
	assert.Equal(t, w.Code, http.StatusOK)

	result := control.Result{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, result.Status, "success")

	a, err := tw.Registry().Get("CB_1")
	assert.NilError(t, err)
	assert.Equal(t, a.Status, asset.Open)
}

func TestControlEndpointErrors(t *testing.T) {
	s, _ := newTestService(t)

	w := post(t, s, "/api/control", `{"asset_id": "CB_9", "action": "open"}`)
	assert.Equal(t, w.Code, http.StatusNotFound)

	w = post(t, s, "/api/control", `{"asset_id": "Grid400kV", "action": "open"}`)
	assert.Equal(t, w.Code, http.StatusBadRequest)

	w = post(t, s, "/api/control", `{not json`)
	assert.Equal(t, w.Code, http.StatusBadRequest)
}

func TestFaultAnalysisEndpoints(t *testing.T) {
	s, _ := newTestService(t)

	w := post(t, s, "/api/faults/analyze", `{"fault_type": "three_phase", "fault_location": "Bus220kV"}`)
	assert.Equal(t, w.Code, http.StatusOK)

	rec := faults.Record{}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, rec.Type, "three_phase")

	w = get(t, s, "/api/faults")
	assert.Equal(t, w.Code, http.StatusOK)
	var records []faults.Record
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Equal(t, len(records), 1)

	w = post(t, s, "/api/faults/analyze", `{"fault_type": ""}`)
	assert.Equal(t, w.Code, http.StatusBadRequest)
}

func TestSimulationLifecycleEndpoints(t *testing.T) {
	s, tw := newTestService(t)
	defer tw.Stop()

	w := post(t, s, "/api/simulation/start", "")
	assert.Equal(t, w.Code, http.StatusOK)

	w = post(t, s, "/api/simulation/stop", "")
	assert.Equal(t, w.Code, http.StatusOK)
}

func TestWebsocketReceivesUpdates(t *testing.T) {
	s, tw := newTestService(t)
	srv := httptest.NewServer(makeRouter(s))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.NilError(t, err)
	defer conn.Close()

	// the handler registers its subscription after the handshake
	// returns; wait for it before publishing the tick
	for i := 0; tw.Subscribers(msg.Update) == 0; i++ {
		if i > 200 {
			t.Fatal("websocket handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	tw.RunTick(time.Now())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	update := twin.Update{}
	assert.NilError(t, conn.ReadJSON(&update))
	assert.Equal(t, update.Type, "update")
	assert.Equal(t, len(update.Assets), 2)
}

// Package websolver drives a remote power-flow engine over HTTP. One
// POST per tick; the response is the normalized solve result. Transport
// and decode failures surface as errors and are absorbed by the tick
// loop as transient compute failures.
package websolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/velridge/substation-twin/internal/pkg/solver"
)

type handler struct {
	client *http.Client
	config config
}

type config struct {
	URL string `json:"URL"`
}

// New returns a solver posting to the engine at the configured URL.
func New(jsonConfig []byte) (solver.Solver, error) {
	cfg := config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}
	return handler{&http.Client{}, cfg}, nil
}

// Solve requests one solve of the engine's currently loaded network.
func (h handler) Solve(ctx context.Context) (solver.Result, error) {
	req, err := http.NewRequest("POST", h.config.URL+"/solve", bytes.NewBufferString("{}"))
	if err != nil {
		return solver.Result{}, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return solver.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return solver.Result{}, fmt.Errorf("solve returned status %v", resp.StatusCode)
	}

	result := solver.Result{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return solver.Result{}, err
	}
	return result, nil
}

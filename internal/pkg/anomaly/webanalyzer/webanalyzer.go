// Package webanalyzer sends the post-tick snapshot to a remote anomaly
// model over HTTP and normalizes its alert list. Errors and timeouts
// are surfaced to the caller, which degrades to an empty alert list.
package webanalyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/velridge/substation-twin/internal/pkg/anomaly"
)

type handler struct {
	client *http.Client
	config config
}

type config struct {
	URL string `json:"URL"`
}

// New returns an analyzer posting to the model at the configured URL.
func New(jsonConfig []byte) (anomaly.Analyzer, error) {
	cfg := config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}
	return handler{&http.Client{}, cfg}, nil
}

// Analyze posts the snapshot and decodes the ordered alert list.
func (h handler) Analyze(ctx context.Context, snap anomaly.Snapshot) ([]anomaly.Alert, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", h.config.URL+"/analyze", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analyze returned status %v", resp.StatusCode)
	}

	var alerts []anomaly.Alert
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

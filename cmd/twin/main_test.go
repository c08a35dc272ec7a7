package main

import (
	"encoding/json"
	"os"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/velridge/substation-twin/internal/pkg/anomaly/zscore"
)

func TestServicesConfigFlags(t *testing.T) {
	cfg := servicesConfig{}
	err := json.Unmarshal([]byte(`{
        "HTTPAddr": ":9000", "Seed": 7, "AnalyzerGate": 2.5,
        "UseWebSolver": true, "UseWebAnalyzer": true,
        "EnableNATS": true, "EnableMongo": true, "EnableSCADA": true
    }`), &cfg)
	assert.NilError(t, err)
	assert.Equal(t, cfg.HTTPAddr, ":9000")
	assert.Assert(t, cfg.UseWebSolver)
	assert.Assert(t, cfg.UseWebAnalyzer)
}

func TestBuildAnalyzerSelection(t *testing.T) {
	def := buildAnalyzer(servicesConfig{AnalyzerGate: 3.0})
	_, ok := def.(*zscore.Analyzer)
	assert.Assert(t, ok, "expected the in-process analyzer by default")

	// the web adapter reads its config relative to the repo root
	wd, err := os.Getwd()
	assert.NilError(t, err)
	assert.NilError(t, os.Chdir("../.."))
	defer os.Chdir(wd)

	web := buildAnalyzer(servicesConfig{UseWebAnalyzer: true})
	_, ok = web.(*zscore.Analyzer)
	assert.Assert(t, !ok, "expected the web adapter when UseWebAnalyzer is set")
}

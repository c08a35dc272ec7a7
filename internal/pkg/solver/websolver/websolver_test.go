package websolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/velridge/substation-twin/internal/pkg/solver"
)

func TestSolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Method, "POST")
		assert.Equal(t, r.URL.Path, "/solve")
		json.NewEncoder(w).Encode(solver.Result{
			Converged:    true,
			TotalPowerKW: 27000.0,
			MinVoltagePU: 0.98,
			MaxVoltagePU: 1.02,
		})
	}))
	defer srv.Close()

	s, err := New([]byte(`{"URL": "` + srv.URL + `"}`))
	assert.NilError(t, err)

	res, err := s.Solve(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, res.Converged)
	assert.Equal(t, res.TotalPowerKW, 27000.0)
}

func TestSolveErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := New([]byte(`{"URL": "` + srv.URL + `"}`))
	assert.NilError(t, err)

	_, err = s.Solve(context.Background())
	assert.Assert(t, err != nil, "expected error on 500 response")
}

func TestSolveTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	s, err := New([]byte(`{"URL": "` + srv.URL + `"}`))
	assert.NilError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = s.Solve(ctx)
	assert.Assert(t, err != nil, "expected deadline error")
}

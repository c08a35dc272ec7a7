// Package control validates and applies operator commands against the
// registry's per-asset action table. Commands apply exactly once,
// synchronously; resubmission on failure is the caller's concern.
package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/velridge/substation-twin/internal/pkg/asset"
)

// Command is one operator request on the wire.
type Command struct {
	AssetID    string                 `json:"asset_id"`
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Result mirrors the command response wire shape.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Gateway applies commands through the registry's exclusion domain.
type Gateway struct {
	registry *asset.Registry
}

// NewGateway returns a Gateway bound to the registry.
func NewGateway(registry *asset.Registry) Gateway {
	return Gateway{registry}
}

// Apply validates and executes one command. Validation failures come
// back as asset.ErrUnsupportedAction or asset.ErrNotFound; they never
// affect other assets or the tick loop.
func (g Gateway) Apply(cmd Command, now time.Time) (Result, error) {
	if cmd.AssetID == "" || cmd.Action == "" {
		return errResult(cmd), fmt.Errorf("%w: empty asset id or action", asset.ErrUnsupportedAction)
	}

	a, err := g.registry.ApplyControl(cmd.AssetID, cmd.Action, now)
	if err != nil {
		return errResult(cmd), err
	}

	return Result{
		Status:  "success",
		Message: fmt.Sprintf("Asset %v %v completed, status %v", a.ID, cmd.Action, a.Status),
	}, nil
}

// IsNotFound reports whether err names an unknown asset.
func IsNotFound(err error) bool {
	return errors.Is(err, asset.ErrNotFound)
}

func errResult(cmd Command) Result {
	return Result{
		Status:  "error",
		Message: fmt.Sprintf("Asset %v %v rejected", cmd.AssetID, cmd.Action),
	}
}

// Package reports persists optimization runs and exports them for
// offline analysis.
package reports

import (
	"time"

	"github.com/aristath/folio/internal/modules/optimization"
)

// RunKind distinguishes single solves from parameter sweeps.
type RunKind string

const (
	RunOptimize RunKind = "optimize"
	RunSweep    RunKind = "sweep"
)

// Run is one recorded optimization outcome.
type Run struct {
	ID        string    `json:"id" msgpack:"id"`
	Kind      RunKind   `json:"kind" msgpack:"kind"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`

	Tickers []string                `json:"tickers" msgpack:"tickers"`
	Params  optimization.Parameters `json:"params" msgpack:"params"`

	// Solution is set for optimize runs, Points for sweep runs.
	Solution *optimization.Solution    `json:"solution,omitempty" msgpack:"solution"`
	Points   []optimization.SweepPoint `json:"points,omitempty" msgpack:"points"`
}

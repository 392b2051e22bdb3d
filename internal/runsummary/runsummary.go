// Package runsummary persists a single row describing a completed dedup
// run — a pure side-effect sink invoked once, after the output file has
// already been written successfully. A failure here is logged but never
// changes the process exit code: the documented contract is the output
// file, not this record of having produced it.
package runsummary

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Summary describes one dedup invocation.
type Summary struct {
	RunID      string
	Inputs     []string
	OutputPath string
	SlabBytes  int64
	SizeHint   int64
	Workers    int
	Distinct   int64
	Duplicates int64
	ElapsedSec float64
	FinishedAt time.Time
}

// NewSummary fills in a fresh RunID and FinishedAt for a completed run.
func NewSummary() Summary {
	return Summary{RunID: uuid.NewString(), FinishedAt: time.Now()}
}

// Repository is the minimal persistence contract a summary backend must
// satisfy. Implementations live in subpackages so the engine never imports
// a concrete SQL driver directly.
type Repository interface {
	Save(ctx context.Context, s Summary) error
}

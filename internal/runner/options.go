package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/surge/internal/metrics"
)

// IterationFunc is the per-iteration script. A returned error (or a panic) is
// recorded as an IterationError and the VU moves on to its next iteration.
type IterationFunc func(vu *VUContext) error

// SetupFunc runs once before any VU starts. Its result is shared read-only by
// every iteration.
type SetupFunc func(ctx context.Context) (any, error)

// TeardownFunc runs once after every VU has stopped.
type TeardownFunc func(ctx context.Context, shared any) error

// Options configure the Runner.
type Options struct {
	VUs       int           // number of virtual users (required, > 0)
	Duration  time.Duration // run length; a soft deadline for starting iterations (required, > 0)
	Pause     time.Duration // optional pause between iterations of a VU
	Iteration IterationFunc // required
	Setup     SetupFunc     // optional
	Teardown  TeardownFunc  // optional

	Clock    Clock             // defaults to RealClock
	Logger   *zap.Logger       // defaults to a no-op logger
	Registry *metrics.Registry // defaults to a fresh registry per run
	RunID    string            // defaults to a new ULID

	// HTTPStats is consulted once when the summary is built.
	HTTPStats func(elapsed time.Duration) *metrics.HTTPStats
}

// Validate reports every problem with the options as a single ConfigError.
func (o Options) Validate() error {
	var issues []string
	if o.VUs <= 0 {
		issues = append(issues, "vus must be greater than zero")
	}
	if o.Duration <= 0 {
		issues = append(issues, "duration must be greater than zero")
	}
	if o.Pause < 0 {
		issues = append(issues, "pause must not be negative")
	}
	if o.Iteration == nil {
		issues = append(issues, "iteration function is required")
	}
	if len(issues) > 0 {
		return &ConfigError{Issues: issues}
	}
	return nil
}

func (o *Options) normalize() {
	if o.Clock == nil {
		o.Clock = RealClock{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

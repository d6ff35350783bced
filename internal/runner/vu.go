package runner

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/surge/internal/metrics"
)

// VUState is the lifecycle state of a virtual user.
type VUState int32

const (
	VUStateIdle VUState = iota
	VUStateRunning
	VUStateStopping
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VUContext is handed to every iteration. A fresh value is built for each
// pass and must not be retained after the iteration returns.
type VUContext struct {
	VU        int
	Iteration int64
	Shared    any

	ctx      context.Context
	clock    Clock
	registry *metrics.Registry
}

// NewVUContext builds a context for invoking an iteration function outside a
// run, such as in its unit tests. Checks are recorded into registry.
func NewVUContext(ctx context.Context, vu int, iteration int64, shared any, registry *metrics.Registry) *VUContext {
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &VUContext{
		VU:        vu,
		Iteration: iteration,
		Shared:    shared,
		ctx:       ctx,
		clock:     RealClock{},
		registry:  registry,
	}
}

// Context returns the run context. It is only cancelled when the run is
// interrupted, never by the normal end of the run duration.
func (v *VUContext) Context() context.Context {
	return v.ctx
}

// Check records a named assertion for this iteration and returns passed.
// A failed check does not stop the iteration.
func (v *VUContext) Check(name string, passed bool) bool {
	v.registry.Record(v.VU, v.Iteration, name, passed)
	return passed
}

// Sleep pauses the iteration. It returns early only if the run is interrupted.
func (v *VUContext) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-v.clock.After(d):
	case <-v.ctx.Done():
	}
}

// vuExecutor runs the iteration loop of one virtual user.
type vuExecutor struct {
	id       int
	state    atomic.Int32
	opt      *Options
	registry *metrics.Registry
	duration *DurationController
	shared   any
	stop     <-chan struct{}
	started  *atomic.Int64
}

func (e *vuExecutor) State() VUState {
	return VUState(e.state.Load())
}

func (e *vuExecutor) stopRequested(ctx context.Context) bool {
	select {
	case <-e.stop:
		return true
	default:
		return ctx.Err() != nil || e.duration.ShouldStop()
	}
}

func (e *vuExecutor) run(ctx context.Context) {
	if !e.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return
	}
	if e.started != nil {
		e.started.Add(1)
	}
	defer e.state.Store(int32(VUStateStopped))

	logger := e.opt.Logger.With(zap.Int("vu", e.id))
	logger.Debug("vu started")

	var iteration int64
	for {
		if e.stopRequested(ctx) {
			break
		}
		e.runIteration(ctx, logger, iteration)
		iteration++

		if e.opt.Pause > 0 && !e.pause(ctx) {
			break
		}
	}
	e.state.Store(int32(VUStateStopping))
	logger.Debug("vu stopped", zap.Int64("iterations", iteration))
}

// pause waits between iterations and reports false if stop arrived first.
func (e *vuExecutor) pause(ctx context.Context) bool {
	select {
	case <-e.opt.Clock.After(e.opt.Pause):
		return true
	case <-e.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (e *vuExecutor) runIteration(ctx context.Context, logger *zap.Logger, iteration int64) {
	vu := &VUContext{
		VU:        e.id,
		Iteration: iteration,
		Shared:    e.shared,
		ctx:       ctx,
		clock:     e.opt.Clock,
		registry:  e.registry,
	}

	start := e.opt.Clock.Now()
	err := e.invoke(vu)
	e.registry.RecordIteration(e.opt.Clock.Since(start))

	if err != nil {
		iterErr := &IterationError{VU: e.id, Iteration: iteration, Err: err}
		e.registry.RecordError(e.id, iteration, iterErr)
		logger.Debug("iteration failed", zap.Int64("iteration", iteration), zap.Error(err))
	}
}

func (e *vuExecutor) invoke(vu *VUContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return e.opt.Iteration(vu)
}

package runner

import (
	"context"
	"crypto/rand"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/torosent/surge/internal/metrics"
)

// Runner schedules a fixed pool of virtual users over a duration.
type Runner struct {
	opt Options

	mu  sync.Mutex
	vus []*vuExecutor
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// NewRunID returns a sortable unique identifier for a run.
func NewRunID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Run validates the options, runs setup, drives every VU until the duration
// elapses or ctx is cancelled, runs teardown and returns the summary. Only a
// ConfigError or SetupError prevents a summary from being produced.
func (r *Runner) Run(ctx context.Context) (metrics.Summary, error) {
	opt := r.opt
	if err := opt.Validate(); err != nil {
		return metrics.Summary{}, err
	}
	if opt.RunID == "" {
		opt.RunID = NewRunID()
	}
	registry := opt.Registry
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	logger := opt.Logger.With(zap.String("run_id", opt.RunID))

	r.mu.Lock()
	r.vus = nil
	r.mu.Unlock()

	life := lifecycle{setup: opt.Setup, teardown: opt.Teardown, logger: logger}
	shared, err := life.runSetup(ctx)
	if err != nil {
		return metrics.Summary{}, err
	}

	duration := NewDurationController(opt.Clock, opt.Duration)
	duration.Start()
	logger.Info("run started",
		zap.Int("vus", opt.VUs),
		zap.Duration("duration", opt.Duration),
		zap.Duration("pause", opt.Pause))

	stop := make(chan struct{})
	var started atomic.Int64
	executors := make([]*vuExecutor, opt.VUs)
	for i := range executors {
		executors[i] = &vuExecutor{
			id:       i,
			opt:      &opt,
			registry: registry,
			duration: duration,
			shared:   shared,
			stop:     stop,
			started:  &started,
		}
	}
	r.mu.Lock()
	r.vus = executors
	r.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(executors))
	for _, e := range executors {
		go func(e *vuExecutor) {
			defer wg.Done()
			e.run(ctx)
		}(e)
	}

	select {
	case <-opt.Clock.After(duration.Remaining()):
	case <-ctx.Done():
		logger.Info("run interrupted", zap.Error(ctx.Err()))
	}
	close(stop)
	wg.Wait()

	elapsed := duration.Elapsed()
	logger.Info("run finished", zap.Duration("elapsed", elapsed))

	_ = life.runTeardown(context.WithoutCancel(ctx), shared)

	counters := metrics.Counters{
		RunID:      opt.RunID,
		VUs:        opt.VUs,
		VUsStarted: int(started.Load()),
	}
	if opt.HTTPStats != nil {
		counters.HTTP = opt.HTTPStats(elapsed)
	}
	return metrics.BuildSummary(registry.Snapshot(), counters, elapsed), nil
}

// States returns the current state of every VU of the latest run. It is empty
// before VUs are launched.
func (r *Runner) States() []VUState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]VUState, len(r.vus))
	for i, e := range r.vus {
		states[i] = e.State()
	}
	return states
}

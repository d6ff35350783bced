package runner

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
)

// lifecycle runs the one-time setup and teardown callables around a run.
type lifecycle struct {
	setup    SetupFunc
	teardown TeardownFunc
	logger   *zap.Logger
}

// runSetup invokes setup exactly once. A nil setup yields nil shared state.
func (l lifecycle) runSetup(ctx context.Context) (shared any, err error) {
	if l.setup == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			shared = nil
			err = &SetupError{Err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
		if err != nil {
			l.logger.Error("setup failed", zap.Error(err))
		}
	}()
	shared, err = l.setup(ctx)
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	return shared, nil
}

// runTeardown invokes teardown exactly once. Failures are logged and returned
// for inspection but never fail the run.
func (l lifecycle) runTeardown(ctx context.Context, shared any) (err error) {
	if l.teardown == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &TeardownError{Err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
		if err != nil {
			l.logger.Warn("teardown failed", zap.Error(err))
		}
	}()
	if terr := l.teardown(ctx, shared); terr != nil {
		return &TeardownError{Err: terr}
	}
	return nil
}

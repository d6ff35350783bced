// Package scenario turns the declarative steps of a config file into the
// setup, iteration and teardown callables a runner executes.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/surge/internal/config"
	"github.com/torosent/surge/internal/extractor"
	"github.com/torosent/surge/internal/feeder"
	"github.com/torosent/surge/internal/httpclient"
	"github.com/torosent/surge/internal/placeholders"
	"github.com/torosent/surge/internal/runner"
	"github.com/torosent/surge/internal/tracing"
	"github.com/torosent/surge/internal/variables"
)

// Doer sends one request.
type Doer interface {
	Do(ctx context.Context, req httpclient.Request) (httpclient.Response, error)
}

// Options configures a Scenario.
type Options struct {
	Client  Doer
	Tracer  trace.Tracer // nil disables iteration spans
	Logger  *zap.Logger
	RunID   string
	BaseDir string // resolves relative fixture paths
}

// Shared is the read-only state produced by setup and handed to every
// iteration and to teardown.
type Shared struct {
	Values   map[string]string
	Fixtures *feeder.Fixtures
}

// CheckFailedError reports setup or teardown checks that did not hold.
type CheckFailedError struct {
	Step   string
	Checks []string
}

func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("step %q: checks failed: %s", e.Step, strings.Join(e.Checks, ", "))
}

// Scenario holds compiled steps. It is safe for concurrent use by many VUs.
type Scenario struct {
	cfg       *config.Config
	opts      Options
	logger    *zap.Logger
	setup     []step
	iteration []step
	teardown  []step
}

type step struct {
	config.Step
	extractors []extractor.Extractor
}

// New compiles the steps of cfg.
func New(cfg *config.Config, opts Options) (*Scenario, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if opts.Client == nil {
		return nil, errors.New("client cannot be nil")
	}
	s := &Scenario{cfg: cfg, opts: opts, logger: opts.Logger}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	var err error
	if s.setup, err = compile(cfg.Setup); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	if s.iteration, err = compile(cfg.Iteration); err != nil {
		return nil, fmt.Errorf("iteration: %w", err)
	}
	if s.teardown, err = compile(cfg.Teardown); err != nil {
		return nil, fmt.Errorf("teardown: %w", err)
	}
	return s, nil
}

func compile(steps []config.Step) ([]step, error) {
	out := make([]step, 0, len(steps))
	for _, st := range steps {
		exts, err := extractor.Compile(st.Extract)
		if err != nil {
			return nil, err
		}
		out = append(out, step{Step: st, extractors: exts})
	}
	return out, nil
}

// Options returns runner options wired to this scenario's callables. The
// caller still sets clock, logger and registry.
func (s *Scenario) Options() runner.Options {
	return runner.Options{
		VUs:       s.cfg.VUs,
		Duration:  s.cfg.Duration,
		Pause:     s.cfg.Pause,
		Setup:     s.Setup,
		Iteration: s.Iteration,
		Teardown:  s.Teardown,
		RunID:     s.opts.RunID,
	}
}

// Setup loads fixtures and runs the setup steps once. Any transport error,
// unresolved placeholder or failed check fails setup.
func (s *Scenario) Setup(ctx context.Context) (any, error) {
	fixtures, err := feeder.Load(s.cfg.Fixtures, s.opts.BaseDir)
	if err != nil {
		return nil, err
	}
	shared := &Shared{Values: map[string]string{}, Fixtures: fixtures}

	scope := placeholders.Scope{
		Vars:     variables.NewLayered(s.cfg.Vars),
		Setup:    shared.Values,
		Fixtures: fixtures,
	}
	for _, st := range s.setup {
		res, err := s.runStep(ctx, st, scope)
		if err != nil {
			return nil, err
		}
		if len(res.failed) > 0 {
			return nil, &CheckFailedError{Step: st.label(), Checks: res.failed}
		}
		for k, v := range res.extracted {
			shared.Values[k] = v
		}
		if err := sleepContext(ctx, st.Sleep); err != nil {
			return nil, err
		}
	}
	s.logger.Info("setup complete",
		zap.Int("steps", len(s.setup)),
		zap.Strings("fixtures", fixtures.Names()),
		zap.Int("values", len(shared.Values)))
	return shared, nil
}

// Iteration runs the iteration steps for one VU pass. Checks are recorded on
// the VU context. A transport error or unresolved placeholder ends the pass
// with an error; failed checks do not.
func (s *Scenario) Iteration(vu *runner.VUContext) error {
	shared, _ := vu.Shared.(*Shared)
	if shared == nil {
		shared = &Shared{}
	}

	ctx := vu.Context()
	if s.opts.Tracer != nil {
		var span trace.Span
		ctx, span = tracing.StartIterationSpan(ctx, s.opts.Tracer, s.opts.RunID, vu.VU, vu.Iteration)
		err := s.iterate(ctx, vu, shared)
		tracing.EndSpan(span, err)
		return err
	}
	return s.iterate(ctx, vu, shared)
}

func (s *Scenario) iterate(ctx context.Context, vu *runner.VUContext, shared *Shared) error {
	scope := placeholders.Scope{
		VU:        vu.VU,
		Iteration: vu.Iteration,
		Vars:      variables.NewLayered(s.cfg.Vars),
		Setup:     shared.Values,
		Fixtures:  shared.Fixtures,
	}
	for _, st := range s.iteration {
		res, err := s.runStep(ctx, st, scope)
		if err != nil {
			return err
		}
		for _, c := range res.checks {
			vu.Check(c.name, c.passed)
		}
		vu.Sleep(st.Sleep)
	}
	return nil
}

// Teardown runs the teardown steps once. The first failure ends teardown.
func (s *Scenario) Teardown(ctx context.Context, sharedState any) error {
	shared, _ := sharedState.(*Shared)
	if shared == nil {
		shared = &Shared{}
	}
	scope := placeholders.Scope{
		Vars:     variables.NewLayered(s.cfg.Vars),
		Setup:    shared.Values,
		Fixtures: shared.Fixtures,
	}
	for _, st := range s.teardown {
		res, err := s.runStep(ctx, st, scope)
		if err != nil {
			return err
		}
		if len(res.failed) > 0 {
			return &CheckFailedError{Step: st.label(), Checks: res.failed}
		}
		if err := sleepContext(ctx, st.Sleep); err != nil {
			return err
		}
	}
	return nil
}

type checkOutcome struct {
	name   string
	passed bool
}

type stepResult struct {
	checks    []checkOutcome
	failed    []string
	extracted map[string]string
}

func (s *Scenario) runStep(ctx context.Context, st step, scope placeholders.Scope) (stepResult, error) {
	req, err := s.buildRequest(st, scope)
	if err != nil {
		return stepResult{}, fmt.Errorf("step %q: %w", st.label(), err)
	}

	resp, err := s.opts.Client.Do(ctx, req)
	if err != nil {
		return stepResult{}, fmt.Errorf("step %q: %w", st.label(), err)
	}

	var res stepResult
	for _, c := range st.Checks {
		passed, err := evaluateCheck(c, resp, scope)
		if err != nil {
			return stepResult{}, fmt.Errorf("step %q: check %q: %w", st.label(), c.Name, err)
		}
		res.checks = append(res.checks, checkOutcome{name: c.Name, passed: passed})
		if !passed {
			res.failed = append(res.failed, c.Name)
			s.logger.Debug("check failed",
				zap.String("step", st.label()),
				zap.String("check", c.Name),
				zap.Int("status", resp.StatusCode))
		}
	}

	res.extracted = extractor.ExtractAll(resp.Body, resp.StatusCode, st.extractors, s.logger)
	for k, v := range res.extracted {
		scope.Vars.Set(k, v)
	}
	return res, nil
}

func (s *Scenario) buildRequest(st step, scope placeholders.Scope) (httpclient.Request, error) {
	target, err := placeholders.Apply(strings.TrimSpace(st.URL), scope)
	if err != nil {
		return httpclient.Request{}, fmt.Errorf("url: %w", err)
	}
	target = resolveURL(s.cfg.BaseURL, target)

	headers, err := placeholders.ApplyMap(st.Headers, scope)
	if err != nil {
		return httpclient.Request{}, fmt.Errorf("headers: %w", err)
	}
	header := make(http.Header, len(headers))
	for k, v := range headers {
		header.Set(k, v)
	}

	var body []byte
	if st.Body != "" {
		expanded, err := placeholders.Apply(st.Body, scope)
		if err != nil {
			return httpclient.Request{}, fmt.Errorf("body: %w", err)
		}
		body = []byte(expanded)
		if header.Get("Content-Type") == "" && looksLikeJSON(body) {
			header.Set("Content-Type", "application/json")
		}
	}

	return httpclient.Request{
		Name:   st.label(),
		Method: st.StepMethod(),
		URL:    target,
		Header: header,
		Body:   body,
	}, nil
}

func evaluateCheck(c config.Check, resp httpclient.Response, scope placeholders.Scope) (bool, error) {
	if len(c.Status) > 0 && !slices.Contains(c.Status, resp.StatusCode) {
		return false, nil
	}
	if c.BodyContains != "" {
		needle, err := placeholders.Apply(c.BodyContains, scope)
		if err != nil {
			return false, err
		}
		if !bytes.Contains(resp.Body, []byte(needle)) {
			return false, nil
		}
	}
	if c.JSONPath != "" {
		value, ok := extractor.JSONPath(resp.Body, c.JSONPath)
		if !ok {
			return false, nil
		}
		if c.HasEquals {
			want, err := placeholders.Apply(c.Equals, scope)
			if err != nil {
				return false, err
			}
			if value != want {
				return false, nil
			}
		}
	}
	return true, nil
}

func resolveURL(base, target string) string {
	if base == "" || strings.Contains(target, "://") {
		return target
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return base + target
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func (st step) label() string {
	if st.Name != "" {
		return st.Name
	}
	return st.StepMethod() + " " + st.URL
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

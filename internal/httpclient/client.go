package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/surge/internal/metrics"
	"github.com/torosent/surge/internal/tracing"
)

// Request is a fully expanded HTTP request.
type Request struct {
	Name   string
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the explicit result of a request. The body is always read in
// full so checks and extractors can inspect it.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	Duration   time.Duration
}

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	RPS       int // global requests per second across all callers, 0 means unlimited
	Retries   int // extra attempts on transport errors
	Collector *metrics.Collector
	Tracer    trace.Tracer // nil disables spans
	Propagate bool         // inject W3C trace headers
	Logger    *zap.Logger
	Transport http.RoundTripper
}

// Client issues requests on behalf of every virtual user. It is safe for
// concurrent use.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	retry     RetryPolicy
	collector *metrics.Collector
	tracer    trace.Tracer
	propagate bool
	logger    *zap.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	c := &Client{
		http:      NewHTTPClient(opts.Timeout),
		retry:     NewRetryPolicy(opts.Retries),
		collector: opts.Collector,
		tracer:    opts.Tracer,
		propagate: opts.Propagate,
		logger:    opts.Logger,
	}
	if opts.Transport != nil {
		c.http.Transport = opts.Transport
	}
	if opts.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), opts.RPS)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Do sends the request, retrying transport errors per the retry policy. Any
// status code is a successful exchange; only transport failures are errors.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var span trace.Span
	if c.tracer != nil {
		name := req.Name
		if name == "" {
			name = method
		}
		ctx, span = tracing.StartRequestSpan(ctx, c.tracer, "http", name)
		span.SetAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", req.URL),
		)
	}

	var resp Response
	err := c.retry.run(ctx, func() error {
		var attemptErr error
		resp, attemptErr = c.attempt(ctx, method, req)
		if attemptErr != nil {
			c.logger.Debug("request failed",
				zap.String("method", method),
				zap.String("url", req.URL),
				zap.Error(attemptErr))
		}
		return attemptErr
	})

	if span != nil {
		var attrs []attribute.KeyValue
		if err == nil {
			attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
		}
		tracing.EndSpan(span, err, attrs...)
	}
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, method string, req Request) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, err
	}
	if len(req.Body) == 0 {
		httpReq.Body = http.NoBody
	}
	for key, values := range req.Header {
		for _, val := range values {
			httpReq.Header.Add(key, val)
		}
	}
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, httpReq.Header)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.record(time.Since(start), 0, err)
		return Response{}, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	elapsed := time.Since(start)
	if err != nil {
		c.record(elapsed, 0, err)
		return Response{}, fmt.Errorf("%s %s: read body: %w", method, req.URL, err)
	}
	c.record(elapsed, httpResp.StatusCode, nil)

	return Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Header:     httpResp.Header,
		Duration:   elapsed,
	}, nil
}

func (c *Client) record(elapsed time.Duration, status int, err error) {
	if c.collector != nil {
		c.collector.RecordRequest(elapsed, status, err)
	}
}

// NewHTTPClient creates an http.Client tuned for many concurrent keep-alive
// connections.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

package httpclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/surge/internal/httpclient"
	"github.com/torosent/surge/internal/metrics"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestDoSendsRequestAndReadsResponse(t *testing.T) {
	var gotMethod, gotType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("X-Request-Id", "abc")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"pr":{"status":"OPEN"}}`))
	}))
	defer server.Close()

	collector := metrics.NewCollector()
	client := httpclient.New(httpclient.Options{Timeout: 5 * time.Second, Collector: collector})

	resp, err := client.Do(context.Background(), httpclient.Request{
		Method: "post",
		URL:    server.URL + "/pullRequest/create",
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"pull_request_id":"pr-1"}`),
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody != `{"pull_request_id":"pr-1"}` {
		t.Errorf("body = %q", gotBody)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != `{"pr":{"status":"OPEN"}}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Header.Get("X-Request-Id") != "abc" {
		t.Errorf("Header = %v", resp.Header)
	}
	if resp.Duration <= 0 {
		t.Errorf("Duration = %s, want > 0", resp.Duration)
	}

	stats := collector.Stats(time.Second)
	if stats.Requests != 1 || stats.Failures != 0 || stats.StatusCodes["201"] != 1 {
		t.Errorf("collector stats = %+v", stats)
	}
}

func TestDoReturnsErrorStatusesWithoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	collector := metrics.NewCollector()
	client := httpclient.New(httpclient.Options{Collector: collector, Retries: 3})

	resp, err := client.Do(context.Background(), httpclient.Request{URL: server.URL})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
	stats := collector.Stats(time.Second)
	if stats.Requests != 1 {
		t.Errorf("Requests = %d, want 1 (status codes are never retried)", stats.Requests)
	}
	if stats.Failures != 1 {
		t.Errorf("Failures = %d, want 1", stats.Failures)
	}
}

func TestDoRetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       http.NoBody,
			Header:     http.Header{},
			Request:    req,
		}, nil
	})

	collector := metrics.NewCollector()
	client := httpclient.New(httpclient.Options{Retries: 2, Transport: transport, Collector: collector})

	resp, err := client.Do(context.Background(), httpclient.Request{URL: "http://example.test/health"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}
	stats := collector.Stats(time.Second)
	if stats.Requests != 3 || stats.Failures != 2 {
		t.Errorf("collector stats = %+v, want 3 requests and 2 failures", stats)
	}
}

func TestDoGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripperFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	})

	client := httpclient.New(httpclient.Options{Retries: 1, Transport: transport})

	_, err := client.Do(context.Background(), httpclient.Request{URL: "http://example.test/"})
	if err == nil {
		t.Fatal("Do() error = nil, want transport error")
	}
	if calls.Load() != 2 {
		t.Errorf("attempts = %d, want 2", calls.Load())
	}
}

func TestDoDoesNotRetryCancellation(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripperFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, context.Canceled
	})

	client := httpclient.New(httpclient.Options{Retries: 3, Transport: transport})

	_, err := client.Do(context.Background(), httpclient.Request{URL: "http://example.test/"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
}

func TestDoRetriesClientTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := httpclient.New(httpclient.Options{Timeout: 100 * time.Millisecond, Retries: 2})

	resp, err := client.Do(context.Background(), httpclient.Request{URL: server.URL})
	if err != nil {
		t.Fatalf("Do() error = %v, want success after a timed out attempt", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if calls.Load() != 2 {
		t.Errorf("attempts = %d, want 2", calls.Load())
	}
}

func TestDoDoesNotRetryCallerDeadline(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	client := httpclient.New(httpclient.Options{Retries: 3, Transport: transport})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Do(ctx, httpclient.Request{URL: "http://example.test/"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Do() error = %v, want context.DeadlineExceeded", err)
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
}

func TestDoWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := httpclient.New(httpclient.Options{RPS: 10})
	if _, err := client.Do(ctx, httpclient.Request{URL: "http://example.test/"}); err == nil {
		t.Fatal("Do() error = nil, want context error")
	}
}

func TestDoRecordsSpanAndPropagatesContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var traceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := httpclient.New(httpclient.Options{Tracer: tp.Tracer("test"), Propagate: true})
	if _, err := client.Do(context.Background(), httpclient.Request{Name: "get review", URL: server.URL}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "http get review" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if traceparent == "" {
		t.Error("traceparent header was not injected")
	}
}

func TestNewHTTPClientClampsTimeout(t *testing.T) {
	if c := httpclient.NewHTTPClient(-time.Second); c.Timeout != 0 {
		t.Errorf("Timeout = %s, want 0", c.Timeout)
	}
	if c := httpclient.NewHTTPClient(2 * time.Second); c.Timeout != 2*time.Second {
		t.Errorf("Timeout = %s, want 2s", c.Timeout)
	}
}

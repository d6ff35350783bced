package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Collector records per-request HTTP metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	latency      *latencyRecorder
	requests     int64
	failures     int64
	statusCodes  map[int]int64
	errorsByKind map[string]int64
}

// HTTPStats represents aggregated request metrics.
type HTTPStats struct {
	Requests       int64          `json:"requests"`
	Failures       int64          `json:"failures"`
	RequestsPerSec float64        `json:"requests_per_sec"`
	Latency        LatencyStats   `json:"latency"`
	StatusCodes    map[string]int `json:"status_codes,omitempty"`
	Errors         map[string]int `json:"errors,omitempty"`
}

func NewCollector() *Collector {
	return &Collector{
		latency:      newLatencyRecorder(),
		statusCodes:  make(map[int]int64),
		errorsByKind: make(map[string]int64),
	}
}

// RecordRequest records a single request. A request counts as failed when it
// produced a transport error or a status code >= 400.
func (c *Collector) RecordRequest(latency time.Duration, statusCode int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	c.latency.record(latency)

	if err != nil {
		c.failures++
		c.errorsByKind[ClassifyError(err)]++
		return
	}
	c.statusCodes[statusCode]++
	if statusCode >= 400 {
		c.failures++
	}
}

// Stats computes the current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) HTTPStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := HTTPStats{
		Requests: c.requests,
		Failures: c.failures,
		Latency:  c.latency.stats(),
	}
	if elapsed > 0 && c.requests > 0 {
		stats.RequestsPerSec = float64(c.requests) / elapsed.Seconds()
	}
	if len(c.statusCodes) > 0 {
		stats.StatusCodes = make(map[string]int, len(c.statusCodes))
		for code, n := range c.statusCodes {
			stats.StatusCodes[strconv.Itoa(code)] = int(n)
		}
	}
	if len(c.errorsByKind) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByKind))
		for k, v := range c.errorsByKind {
			stats.Errors[k] = int(v)
		}
	}
	return stats
}

package output

import (
	"bytes"
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"github.com/torosent/surge/internal/metrics"
	"github.com/torosent/surge/internal/threshold"
)

// WriteSummaryFile writes the JSON report to path. Concurrent runs writing the
// same path are serialized through an advisory lock on path + ".lock".
func WriteSummaryFile(path string, sum metrics.Summary, results []threshold.Result) error {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sum, results); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock summary file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write summary file: %w", err)
	}
	return nil
}

package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/torosent/surge/internal/logging"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("run started")
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["message"] != "run started" || entry["level"] != "info" || entry["logger"] != "surge" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewConsoleLoggerDefaultsToWarn(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("quiet")
	logger.Warn("loud")
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info should be filtered at default level: %q", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "loud") {
		t.Errorf("expected warn line, got %q", out)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     logging.Config
		wantErr bool
	}{
		{name: "defaults", cfg: logging.DefaultConfig()},
		{name: "debug json", cfg: logging.Config{Level: "DEBUG", Format: "JSON"}},
		{name: "bad level", cfg: logging.Config{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: logging.Config{Format: "xml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

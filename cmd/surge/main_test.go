package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/torosent/surge/internal/output"
	"github.com/torosent/surge/internal/runner"
)

type reviewServer struct {
	mu        sync.Mutex
	created   map[string]bool
	authors   map[string]int
	reviewers map[string]int
	lookups   int
}

// newReviewServer answers /team/add with teamStatus so tests can cover both a
// fresh team and one that already exists.
func newReviewServer(t *testing.T, teamStatus int) (*reviewServer, *httptest.Server) {
	t.Helper()
	rs := &reviewServer{created: map[string]bool{}, authors: map[string]int{}, reviewers: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/team/add", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(teamStatus)
		if teamStatus == http.StatusBadRequest {
			_, _ = io.WriteString(w, `{"error":{"code":"TEAM_EXISTS","message":"team_name already exists"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"team":{"team_name":"backend"}}`)
	})
	mux.HandleFunc("/pullRequest/create", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ID     string `json:"pull_request_id"`
			Author string `json:"author_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rs.mu.Lock()
		defer rs.mu.Unlock()
		rs.authors[body.Author]++
		if rs.created[body.ID] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		rs.created[body.ID] = true
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"pr":{"pull_request_id":%q}}`, body.ID)
	})
	mux.HandleFunc("/users/getReview", func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.lookups++
		rs.reviewers[r.URL.Query().Get("user_id")]++
		rs.mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return rs, server
}

func writeScenario(t *testing.T, baseURL string, extra string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "users.csv"), []byte("id,username\nu-1,one\nu-2,two\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	content := `vus: 2
duration: 300ms
pause: 20ms
base_url: ` + baseURL + `
fixtures:
  - name: users
    path: users.csv
setup:
  - name: create team
    url: /team/add
    method: POST
    body: '{"team_name":"backend"}'
    checks:
      - name: team created
        status: [201]
iteration:
  - name: create pr
    url: /pullRequest/create
    body: '{"pull_request_id":"pr-{{vu|pad:6}}{{iter|pad:6}}","author_id":"{{row.users.id}}"}'
    checks:
      - name: PR created
        status: [201]
  - name: get review
    url: /users/getReview?user_id={{row.users.id}}
    checks:
      - name: getReview OK
        status: [200, 404]
` + extra
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("run(--help) error = %v", err)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeScenario(t, "http://localhost:1", "")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "--vus", "0"}, &stdout, &stderr)

	var cfgErr *runner.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("run() error = %v, want ConfigError", err)
	}
	if len(cfgErr.Issues) == 0 || !strings.Contains(cfgErr.Issues[0], "vus") {
		t.Errorf("issues = %v", cfgErr.Issues)
	}
}

func TestRunInvalidThreshold(t *testing.T) {
	path := writeScenario(t, "http://localhost:1", "")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "--threshold", "bogus"}, &stdout, &stderr)

	var cfgErr *runner.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("run() error = %v, want ConfigError", err)
	}
}

func TestRunSetupFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	path := writeScenario(t, server.URL, "")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "--quiet"}, &stdout, &stderr)

	var setupErr *runner.SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("run() error = %v, want SetupError", err)
	}
	if strings.Contains(stdout.String(), "Run Summary") {
		t.Error("no summary should be printed when setup fails")
	}
}

func TestRunReport(t *testing.T) {
	rs, server := newReviewServer(t, http.StatusCreated)
	path := writeScenario(t, server.URL, "")
	summaryPath := filepath.Join(t.TempDir(), "summary.json")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--config", path,
		"--quiet",
		"--summary-file", summaryPath,
		"--threshold", "checks:rate > 0.99",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"--- Run Summary ---", "✓ PR created", "✓ getReview OK", "HTTP Requests:", "404:", "Thresholds:"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("read summary file: %v", err)
	}
	var report output.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode summary file: %v", err)
	}
	if !report.Passed || report.Iterations == 0 || report.ChecksFailed != 0 {
		t.Errorf("summary file = %+v", report)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if int64(len(rs.created)) != report.Iterations || int64(rs.lookups) != report.Iterations {
		t.Errorf("server saw %d creates and %d lookups for %d iterations", len(rs.created), rs.lookups, report.Iterations)
	}
}

func TestRunJSONOutput(t *testing.T) {
	_, server := newReviewServer(t, http.StatusCreated)
	path := writeScenario(t, server.URL, "")

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"--config", path, "--json-output"}, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var report output.Report
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, stdout.String())
	}
	if report.VUs != 2 || report.VUsStarted != 2 {
		t.Errorf("vus = %d/%d, want 2/2", report.VUs, report.VUsStarted)
	}
	if report.HTTP == nil || report.HTTP.StatusCodes["404"] == 0 {
		t.Errorf("http stats = %+v", report.HTTP)
	}
}

func TestRunFailingThreshold(t *testing.T) {
	_, server := newReviewServer(t, http.StatusCreated)
	path := writeScenario(t, server.URL, `thresholds:
  - "iterations:count > 1000000"
`)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "--quiet"}, &stdout, &stderr)
	if !errors.Is(err, errThresholdsFailed) {
		t.Fatalf("run() error = %v, want errThresholdsFailed", err)
	}
	if !strings.Contains(stdout.String(), "Run Summary") {
		t.Error("summary should still be printed when a threshold fails")
	}
}

func TestRunSampleScenarioParses(t *testing.T) {
	var stdout, stderr bytes.Buffer
	// An unreachable base URL fails setup, which proves the file loaded and validated.
	err := run(context.Background(), []string{
		"--config", filepath.Join("testdata", "scenario.yaml"),
		"--base-url", "http://127.0.0.1:1",
		"--timeout", "200ms",
		"--quiet",
	}, &stdout, &stderr)

	var setupErr *runner.SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("run() error = %v, want SetupError", err)
	}
}

func TestRunSampleScenarioWithExistingTeam(t *testing.T) {
	rs, server := newReviewServer(t, http.StatusBadRequest)
	summaryPath := filepath.Join(t.TempDir(), "summary.json")

	// Each pass sleeps 1s after its requests, so within 1.5s every VU starts
	// exactly two passes.
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--config", filepath.Join("testdata", "scenario.yaml"),
		"--base-url", server.URL,
		"--vus", "2",
		"--duration", "1500ms",
		"--quiet",
		"--summary-file", summaryPath,
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v\nstderr: %s", err, stderr.String())
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("read summary file: %v", err)
	}
	var report output.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode summary file: %v", err)
	}
	if report.Iterations != 4 {
		t.Errorf("iterations = %d, want 4", report.Iterations)
	}
	if !report.Passed || report.ChecksFailed != 0 {
		t.Errorf("summary file = %+v", report)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.created) != 4 {
		t.Errorf("server created %d pull requests, want 4", len(rs.created))
	}
	const author, reviewer = "11111111-1111-1111-1111-111111111111", "21111111-1111-1111-1111-111111111111"
	if len(rs.authors) != 1 || rs.authors[author] != 4 {
		t.Errorf("authors = %v, want only %s", rs.authors, author)
	}
	if len(rs.reviewers) != 1 || rs.reviewers[reviewer] != 4 {
		t.Errorf("reviewers = %v, want only %s", rs.reviewers, reviewer)
	}
}

func TestRunLogsHighVUWarning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// Setup fails, so no VU is launched.
	path := writeScenario(t, server.URL, "")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "--vus", "1001", "--quiet"}, &stdout, &stderr)

	var setupErr *runner.SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("run() error = %v, want SetupError", err)
	}
	if !strings.Contains(stderr.String(), "High VU count") || !strings.Contains(stderr.String(), "WARN") {
		t.Errorf("stderr = %q, want a logged high VU warning", stderr.String())
	}
}

func TestConfigDir(t *testing.T) {
	if got := configDir(""); got != "" {
		t.Errorf("configDir(\"\") = %q", got)
	}
	if got := configDir(filepath.Join("a", "b", "scenario.yaml")); got != filepath.Join("a", "b") {
		t.Errorf("configDir() = %q", got)
	}
}

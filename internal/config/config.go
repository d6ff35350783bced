package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/torosent/surge/internal/logging"
)

// Config is a complete scenario: load shape, scripted steps and output options.
type Config struct {
	VUs         int               `mapstructure:"vus"`
	Duration    time.Duration     `mapstructure:"duration"`
	Pause       time.Duration     `mapstructure:"pause"`
	BaseURL     string            `mapstructure:"base_url"`
	Rate        int               `mapstructure:"rps"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Retries     int               `mapstructure:"retries"`
	Vars        map[string]string `mapstructure:"vars"`
	Fixtures    []Fixture         `mapstructure:"fixtures"`
	Setup       []Step            `mapstructure:"setup"`
	Iteration   []Step            `mapstructure:"iteration"`
	Teardown    []Step            `mapstructure:"teardown"`
	Thresholds  []string          `mapstructure:"thresholds"`
	JSONOutput  bool              `mapstructure:"json_output"`
	Quiet       bool              `mapstructure:"quiet"`
	SummaryFile string            `mapstructure:"summary_file"`
	MetricsAddr string            `mapstructure:"metrics_addr"`
	Log         logging.Config    `mapstructure:"log"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	ConfigFile  string            `mapstructure:"-"`
}

// Fixture is a named dataset loaded once before the run starts, either from
// inline records or from a file.
type Fixture struct {
	Name    string              `mapstructure:"name"`
	Path    string              `mapstructure:"path"`
	Type    string              `mapstructure:"type"` // "csv", "json" or "yaml"
	Records []map[string]string `mapstructure:"records"`
}

// Step is one scripted HTTP request.
type Step struct {
	Name    string            `mapstructure:"name"`
	Method  string            `mapstructure:"method"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Body    string            `mapstructure:"body"`
	Checks  []Check           `mapstructure:"checks"`
	Extract []Extractor       `mapstructure:"extract"`
	Sleep   time.Duration     `mapstructure:"sleep"`
}

// Check is a named assertion on a step's response. Every condition that is
// set must hold for the check to pass.
type Check struct {
	Name         string `mapstructure:"name"`
	Status       []int  `mapstructure:"status"`
	BodyContains string `mapstructure:"body_contains"`
	JSONPath     string `mapstructure:"jsonpath"`
	Equals       string `mapstructure:"equals"`
	HasEquals    bool   `mapstructure:"-"`
}

// Extractor stores part of a response body in a variable.
type Extractor struct {
	Variable string `mapstructure:"var"`
	JSONPath string `mapstructure:"jsonpath"`
	Regex    string `mapstructure:"regex"`
	OnError  bool   `mapstructure:"on_error"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured directly or through
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into requests.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// highVUCount is the VU count above which Warnings reminds the operator to
// confirm authorization against the target.
const highVUCount = 1000

// Warnings reports settings that are valid but worth surfacing before a run.
func (c Config) Warnings() []string {
	var warnings []string
	if c.VUs > highVUCount {
		warnings = append(warnings, fmt.Sprintf("High VU count configured (%d). Ensure you have authorization to test the target system.", c.VUs))
	}
	return warnings
}

func (c Config) Validate() error {
	var issues []string

	if c.VUs < 1 {
		issues = append(issues, "vus must be >= 1")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if c.Pause < 0 {
		issues = append(issues, "pause must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rps must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, fmt.Sprintf("base_url %q must be an absolute URL", base))
		}
	}
	if len(c.Iteration) == 0 {
		issues = append(issues, "iteration: at least one step is required (use --help for usage information)")
	}

	issues = append(issues, validateFixtures(c.Fixtures)...)
	issues = append(issues, validateSteps("setup", c.Setup, c.BaseURL)...)
	issues = append(issues, validateSteps("iteration", c.Iteration, c.BaseURL)...)
	issues = append(issues, validateSteps("teardown", c.Teardown, c.BaseURL)...)

	if err := c.Log.Validate(); err != nil {
		issues = append(issues, "log: "+err.Error())
	}
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

var methodPattern = regexp.MustCompile(`^[A-Z]+$`)

func validateSteps(section string, steps []Step, baseURL string) []string {
	var issues []string
	for idx, step := range steps {
		prefix := fmt.Sprintf("%s[%d]", section, idx)
		if step.Name != "" {
			prefix = fmt.Sprintf("%s[%d] (%s)", section, idx, step.Name)
		}
		if step.Method != "" && !methodPattern.MatchString(step.Method) {
			issues = append(issues, fmt.Sprintf("%s: invalid method %q", prefix, step.Method))
		}
		rawURL := strings.TrimSpace(step.URL)
		if rawURL == "" {
			issues = append(issues, fmt.Sprintf("%s: url is required", prefix))
		} else if !isAbsoluteURL(rawURL) && !strings.Contains(rawURL, "{{") && strings.TrimSpace(baseURL) == "" {
			issues = append(issues, fmt.Sprintf("%s: relative url %q requires base_url", prefix, rawURL))
		}
		if step.Sleep < 0 {
			issues = append(issues, fmt.Sprintf("%s: sleep must be >= 0", prefix))
		}
		for checkIdx, check := range step.Checks {
			issues = append(issues, validateCheck(fmt.Sprintf("%s.checks[%d]", prefix, checkIdx), check)...)
		}
		for extIdx, ext := range step.Extract {
			issues = append(issues, validateExtractor(fmt.Sprintf("%s.extract[%d]", prefix, extIdx), ext)...)
		}
	}
	return issues
}

func validateCheck(prefix string, check Check) []string {
	var issues []string
	if strings.TrimSpace(check.Name) == "" {
		issues = append(issues, prefix+": name is required")
	}
	if len(check.Status) == 0 && check.BodyContains == "" && check.JSONPath == "" {
		issues = append(issues, prefix+": at least one of status, body_contains or jsonpath is required")
	}
	for _, code := range check.Status {
		if code < 100 || code > 599 {
			issues = append(issues, fmt.Sprintf("%s: invalid status code %d", prefix, code))
		}
	}
	if check.HasEquals && check.JSONPath == "" {
		issues = append(issues, prefix+": equals requires jsonpath")
	}
	return issues
}

func validateExtractor(prefix string, ext Extractor) []string {
	var issues []string
	if strings.TrimSpace(ext.Variable) == "" {
		issues = append(issues, prefix+": var is required")
	}
	hasPath := ext.JSONPath != ""
	hasRegex := ext.Regex != ""
	switch {
	case hasPath && hasRegex:
		issues = append(issues, prefix+": jsonpath and regex are mutually exclusive")
	case !hasPath && !hasRegex:
		issues = append(issues, prefix+": one of jsonpath or regex is required")
	case hasRegex:
		if _, err := regexp.Compile(ext.Regex); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid regex: %v", prefix, err))
		}
	}
	return issues
}

func validateFixtures(fixtures []Fixture) []string {
	var issues []string
	seen := map[string]int{}
	for idx, fx := range fixtures {
		prefix := fmt.Sprintf("fixtures[%d]", idx)
		name := strings.TrimSpace(fx.Name)
		if name == "" {
			issues = append(issues, prefix+": name is required")
		} else if prev, ok := seen[strings.ToLower(name)]; ok {
			issues = append(issues, fmt.Sprintf("%s: duplicate name also defined at index %d", prefix, prev))
		} else {
			seen[strings.ToLower(name)] = idx
		}

		hasPath := strings.TrimSpace(fx.Path) != ""
		if hasPath == (fx.Records != nil) {
			issues = append(issues, prefix+": exactly one of path or records is required")
			continue
		}
		if hasPath {
			switch fx.FileType() {
			case "csv", "json", "yaml":
			default:
				issues = append(issues, fmt.Sprintf("%s: type must be 'csv', 'json' or 'yaml', got %q", prefix, fx.Type))
			}
		}
	}
	return issues
}

// FileType returns the explicit type, or one inferred from the file extension.
func (f Fixture) FileType() string {
	if t := strings.ToLower(strings.TrimSpace(f.Type)); t != "" {
		if t == "yml" {
			return "yaml"
		}
		return t
	}
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	return ""
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// StepMethod returns the request method, defaulting to GET, or POST when a
// body is present.
func (s Step) StepMethod() string {
	if s.Method != "" {
		return s.Method
	}
	if s.Body != "" {
		return http.MethodPost
	}
	return http.MethodGet
}

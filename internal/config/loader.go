package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/torosent/surge/internal/logging"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and the scenario file to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// A scenario needs steps, which only a config file can provide.
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := &Config{
		VUs:        1,
		Timeout:    30 * time.Second,
		Vars:       map[string]string{},
		ConfigFile: configPath,
		Log:        logging.DefaultConfig(),
		Tracing:    TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Vars == nil {
		cfg.Vars = map[string]string{}
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "vus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("vus: %w", err)
		}
		cfg.VUs = val
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "pause"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("pause: %w", err)
		}
		cfg.Pause = dur
	}

	if raw, ok := lookupSetting(settings, "baseurl", "base_url", "base-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("baseURL: %w", err)
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "rps", "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rps: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("retries: %w", err)
		}
		cfg.Retries = val
	}

	if raw, ok := lookupSetting(settings, "vars"); ok {
		vars, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("vars: %w", err)
		}
		if cfg.Vars == nil {
			cfg.Vars = map[string]string{}
		}
		for k, v := range vars {
			cfg.Vars[k] = v
		}
	}

	if raw, ok := lookupSetting(settings, "fixtures"); ok {
		fixtures, err := parseFixtures(raw)
		if err != nil {
			return fmt.Errorf("fixtures: %w", err)
		}
		cfg.Fixtures = fixtures
	}

	for _, section := range []struct {
		key  string
		dest *[]Step
	}{
		{"setup", &cfg.Setup},
		{"iteration", &cfg.Iteration},
		{"teardown", &cfg.Teardown},
	} {
		if raw, ok := lookupSetting(settings, section.key); ok {
			steps, err := parseSteps(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", section.key, err)
			}
			*section.dest = steps
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "quiet"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("quiet: %w", err)
		}
		cfg.Quiet = val
	}

	if raw, ok := lookupSetting(settings, "summaryfile", "summary_file", "summary-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("summaryFile: %w", err)
		}
		cfg.SummaryFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "metricsaddr", "metrics_addr", "metrics-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metricsAddr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "log"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		if v, ok := lookupSetting(entry, "level"); ok {
			level, err := asString(v)
			if err != nil {
				return fmt.Errorf("log.level: %w", err)
			}
			cfg.Log.Level = strings.TrimSpace(level)
		}
		if v, ok := lookupSetting(entry, "format"); ok {
			format, err := asString(v)
			if err != nil {
				return fmt.Errorf("log.format: %w", err)
			}
			cfg.Log.Format = strings.TrimSpace(format)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseFixtures(value interface{}) ([]Fixture, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	fixtures := make([]Fixture, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		fixture, err := buildFixture(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		fixtures = append(fixtures, fixture)
	}
	return fixtures, nil
}

func buildFixture(settings map[string]interface{}) (Fixture, error) {
	var fixture Fixture
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return Fixture{}, fmt.Errorf("name: %w", err)
		}
		fixture.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return Fixture{}, fmt.Errorf("path: %w", err)
		}
		fixture.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return Fixture{}, fmt.Errorf("type: %w", err)
		}
		fixture.Type = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "records"); ok {
		items, err := toInterfaceSlice(raw)
		if err != nil {
			return Fixture{}, fmt.Errorf("records: %w", err)
		}
		fixture.Records = make([]map[string]string, 0, len(items))
		for idx, item := range items {
			record, err := asStringMap(item)
			if err != nil {
				return Fixture{}, fmt.Errorf("records[%d]: %w", idx, err)
			}
			fixture.Records = append(fixture.Records, record)
		}
	}
	return fixture, nil
}

func parseSteps(value interface{}) ([]Step, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		step, err := buildStep(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildStep(settings map[string]interface{}) (Step, error) {
	var step Step
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return Step{}, fmt.Errorf("name: %w", err)
		}
		step.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return Step{}, fmt.Errorf("method: %w", err)
		}
		step.Method = strings.ToUpper(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "url", "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return Step{}, fmt.Errorf("url: %w", err)
		}
		step.URL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asBody(raw)
		if err != nil {
			return Step{}, fmt.Errorf("body: %w", err)
		}
		step.Body = val
	}
	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return Step{}, fmt.Errorf("headers: %w", err)
		}
		if len(hdrs) > 0 {
			step.Headers = map[string]string{}
			for key, value := range hdrs {
				trimmedKey := strings.TrimSpace(key)
				if trimmedKey == "" {
					return Step{}, fmt.Errorf("headers: key cannot be empty")
				}
				step.Headers[http.CanonicalHeaderKey(trimmedKey)] = value
			}
		}
	}
	if raw, ok := lookupSetting(settings, "sleep"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return Step{}, fmt.Errorf("sleep: %w", err)
		}
		step.Sleep = dur
	}
	if raw, ok := lookupSetting(settings, "checks"); ok {
		checks, err := parseChecks(raw)
		if err != nil {
			return Step{}, fmt.Errorf("checks: %w", err)
		}
		step.Checks = checks
	}
	if raw, ok := lookupSetting(settings, "extract", "extractors"); ok {
		extractors, err := parseExtractors(raw)
		if err != nil {
			return Step{}, fmt.Errorf("extract: %w", err)
		}
		step.Extract = extractors
	}
	return step, nil
}

func parseChecks(value interface{}) ([]Check, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	checks := make([]Check, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		check, err := buildCheck(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		checks = append(checks, check)
	}
	return checks, nil
}

func buildCheck(settings map[string]interface{}) (Check, error) {
	var check Check
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return Check{}, fmt.Errorf("name: %w", err)
		}
		check.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "status"); ok {
		codes, err := asIntSlice(raw)
		if err != nil {
			return Check{}, fmt.Errorf("status: %w", err)
		}
		check.Status = codes
	}
	if raw, ok := lookupSetting(settings, "bodycontains", "body_contains", "body-contains"); ok {
		val, err := asString(raw)
		if err != nil {
			return Check{}, fmt.Errorf("body_contains: %w", err)
		}
		check.BodyContains = val
	}
	if raw, ok := lookupSetting(settings, "jsonpath"); ok {
		val, err := asString(raw)
		if err != nil {
			return Check{}, fmt.Errorf("jsonpath: %w", err)
		}
		check.JSONPath = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "equals"); ok {
		val, err := asString(raw)
		if err != nil {
			return Check{}, fmt.Errorf("equals: %w", err)
		}
		check.Equals = val
		check.HasEquals = true
	}
	return check, nil
}

func parseExtractors(value interface{}) ([]Extractor, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	extractors := make([]Extractor, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		extractor, err := buildExtractor(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		extractors = append(extractors, extractor)
	}
	return extractors, nil
}

func buildExtractor(settings map[string]interface{}) (Extractor, error) {
	var extractor Extractor
	if raw, ok := lookupSetting(settings, "jsonpath"); ok {
		val, err := asString(raw)
		if err != nil {
			return Extractor{}, fmt.Errorf("jsonpath: %w", err)
		}
		extractor.JSONPath = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "regex"); ok {
		val, err := asString(raw)
		if err != nil {
			return Extractor{}, fmt.Errorf("regex: %w", err)
		}
		extractor.Regex = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "var"); ok {
		val, err := asString(raw)
		if err != nil {
			return Extractor{}, fmt.Errorf("var: %w", err)
		}
		extractor.Variable = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "onerror", "on_error", "on-error"); ok {
		val, err := asBool(raw)
		if err != nil {
			return Extractor{}, fmt.Errorf("on_error: %w", err)
		}
		extractor.OnError = val
	}
	return extractor, nil
}

func parseTracing(value interface{}, tracing TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tracing.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tracing.Propagate = &val
	}
	return tracing, nil
}

// Package extractor pulls values out of response bodies with JSON paths or
// regular expressions.
package extractor

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/torosent/surge/internal/config"
)

// Extractor defines one extraction rule for a response body.
type Extractor struct {
	// JSONPath is a gjson path, optionally prefixed with "$." (e.g. "$.user.id").
	JSONPath string

	// Regex is a pattern with an optional capture group.
	Regex string

	// Variable is the variable name to store the extracted value.
	Variable string

	// OnError, if true, extracts even from error responses (4xx/5xx).
	OnError bool

	re *regexp.Regexp
}

// Compile builds extractors from their configuration, compiling regular
// expressions once up front.
func Compile(cfgs []config.Extractor) ([]Extractor, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}
	out := make([]Extractor, 0, len(cfgs))
	for _, c := range cfgs {
		ext := Extractor{
			JSONPath: c.JSONPath,
			Regex:    c.Regex,
			Variable: c.Variable,
			OnError:  c.OnError,
		}
		if c.Regex != "" {
			re, err := regexp.Compile(c.Regex)
			if err != nil {
				return nil, fmt.Errorf("extract %s: %w", c.Variable, err)
			}
			ext.re = re
		}
		out = append(out, ext)
	}
	return out, nil
}

// ExtractAll applies every extractor to the body and returns the extracted
// key-value pairs. A rule that finds nothing yields an empty value and a
// debug log line. Rules without OnError are skipped for status codes >= 400.
// The logger may be nil.
func ExtractAll(body []byte, statusCode int, extractors []Extractor, logger *zap.Logger) map[string]string {
	result := make(map[string]string, len(extractors))
	if len(extractors) == 0 {
		return result
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, ext := range extractors {
		if statusCode >= 400 && !ext.OnError {
			continue
		}

		var (
			value string
			found bool
		)
		switch {
		case ext.JSONPath != "":
			value, found = JSONPath(body, ext.JSONPath)
		case ext.re != nil:
			value, found = findRegex(body, ext.re)
		case ext.Regex != "":
			re, err := regexp.Compile(ext.Regex)
			if err != nil {
				logger.Warn("invalid extract regex", zap.String("var", ext.Variable), zap.Error(err))
				break
			}
			value, found = findRegex(body, re)
		}
		if !found {
			logger.Debug("extraction found no value",
				zap.String("var", ext.Variable),
				zap.String("jsonpath", ext.JSONPath),
				zap.String("regex", ext.Regex))
		}
		result[ext.Variable] = value
	}
	return result
}

// Package placeholders expands {{name}} references in step URLs, headers and
// bodies.
//
// Supported names:
//
//	vu, iter                 virtual user id and iteration index
//	uuid, ulid               a fresh random identifier per reference
//	setup.<name>             values captured by setup steps
//	data.<gjson path>        a lookup in the fixtures document
//	row.<fixture>.<field>    a field of the fixture row for this VU/iteration
//	<name>                   a scenario variable
//
// A reference may carry one filter after a pipe. "pad:N" left-pads the value
// with zeros to N characters; any other text is a default used when the name
// does not resolve.
package placeholders

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"github.com/torosent/surge/internal/feeder"
	"github.com/torosent/surge/internal/variables"
)

var pattern = regexp.MustCompile(`\{\{\s*([^{}|]+?)\s*(?:\|([^{}]*))?\}\}`)

// Scope is everything a reference can resolve against.
type Scope struct {
	VU        int
	Iteration int64
	Vars      variables.Store
	Setup     map[string]string
	Fixtures  *feeder.Fixtures
}

// UnresolvedError lists references that matched no value and had no default.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved placeholders: %s", strings.Join(e.Names, ", "))
}

// Apply expands every reference in template.
func Apply(template string, scope Scope) (string, error) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}

	var missing []string
	out := pattern.ReplaceAllStringFunc(template, func(match string) string {
		parts := pattern.FindStringSubmatch(match)
		name := parts[1]
		filter := parts[2]
		hasFilter := strings.Contains(match, "|")

		value, ok := scope.resolve(name)
		if strings.HasPrefix(filter, "pad:") {
			if !ok {
				missing = append(missing, name)
				return match
			}
			width, err := strconv.Atoi(strings.TrimPrefix(filter, "pad:"))
			if err != nil || width <= len(value) {
				return value
			}
			return strings.Repeat("0", width-len(value)) + value
		}
		if ok {
			return value
		}
		if hasFilter {
			return filter
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return out, &UnresolvedError{Names: missing}
	}
	return out, nil
}

// ApplyMap expands every value of a map into a new map.
func ApplyMap(values map[string]string, scope Scope) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		expanded, err := Apply(value, scope)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = expanded
	}
	return out, nil
}

func (s Scope) resolve(name string) (string, bool) {
	switch name {
	case "vu":
		return strconv.Itoa(s.VU), true
	case "iter":
		return strconv.FormatInt(s.Iteration, 10), true
	case "uuid":
		return uuid.NewString(), true
	case "ulid":
		return ulid.MustNew(ulid.Now(), rand.Reader).String(), true
	}

	if key, ok := strings.CutPrefix(name, "setup."); ok {
		return lookupFold(s.Setup, key)
	}
	if path, ok := strings.CutPrefix(name, "data."); ok {
		if s.Fixtures == nil {
			return "", false
		}
		result := gjson.Get(s.Fixtures.JSON(), path)
		if !result.Exists() {
			return "", false
		}
		return result.String(), true
	}
	if rest, ok := strings.CutPrefix(name, "row."); ok {
		return s.row(rest)
	}
	if s.Vars != nil {
		return s.Vars.Get(name)
	}
	return "", false
}

func (s Scope) row(ref string) (string, bool) {
	dataset, field, ok := strings.Cut(ref, ".")
	if !ok || s.Fixtures == nil {
		return "", false
	}
	ds, ok := s.Fixtures.Dataset(dataset)
	if !ok {
		return "", false
	}
	rec, ok := ds.Row(s.VU, s.Iteration)
	if !ok {
		return "", false
	}
	return lookupFold(rec, field)
}

func lookupFold[M ~map[string]string](values M, key string) (string, bool) {
	if v, ok := values[key]; ok {
		return v, true
	}
	if lower := strings.ToLower(key); lower != key {
		v, ok := values[lower]
		return v, ok
	}
	return "", false
}

// Package feeder loads named fixture datasets once before a run starts.
//
// Unlike a request feeder that hands out records in turn, a loaded
// [Fixtures] value is immutable and may be read by every virtual user
// without locking. Row selection is a pure function of the VU id and the
// iteration index so runs stay reproducible.
package feeder

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/torosent/surge/internal/config"
)

// Record represents a single row of data with named fields.
type Record map[string]string

// ErrEmpty is returned when a dataset source yields no records.
var ErrEmpty = errors.New("dataset contains no records")

// Dataset is an immutable, ordered list of records.
type Dataset struct {
	name    string
	records []Record
}

// NewDataset copies records into a new Dataset.
func NewDataset(name string, records []Record) *Dataset {
	copied := make([]Record, len(records))
	for i, rec := range records {
		clone := make(Record, len(rec))
		for k, v := range rec {
			clone[k] = v
		}
		copied[i] = clone
	}
	return &Dataset{name: name, records: copied}
}

// Len returns the total number of records in the dataset.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Row picks the record for a given VU and iteration, cycling through the
// dataset as (vu + iteration) mod len.
func (d *Dataset) Row(vu int, iteration int64) (Record, bool) {
	n := d.Len()
	if n == 0 {
		return nil, false
	}
	idx := (int64(vu) + iteration) % int64(n)
	if idx < 0 {
		idx += int64(n)
	}
	return d.records[idx], true
}

// Fixtures is the set of datasets available to a scenario.
type Fixtures struct {
	sets map[string]*Dataset
	doc  string
}

// Dataset returns the named dataset. Names match case-insensitively.
func (f *Fixtures) Dataset(name string) (*Dataset, bool) {
	if f == nil {
		return nil, false
	}
	ds, ok := f.sets[strings.ToLower(name)]
	return ds, ok
}

// Names returns the dataset names in sorted order.
func (f *Fixtures) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.sets))
	for _, ds := range f.sets {
		names = append(names, ds.name)
	}
	sort.Strings(names)
	return names
}

// JSON returns all datasets as a single JSON document keyed by dataset name,
// suitable for gjson path queries such as "users.0.id".
func (f *Fixtures) JSON() string {
	if f == nil || f.doc == "" {
		return "{}"
	}
	return f.doc
}

// New builds Fixtures from already loaded datasets.
func New(sets ...*Dataset) (*Fixtures, error) {
	fx := &Fixtures{sets: make(map[string]*Dataset, len(sets))}
	doc := make(map[string][]Record, len(sets))
	for _, ds := range sets {
		key := strings.ToLower(ds.name)
		if _, dup := fx.sets[key]; dup {
			return nil, fmt.Errorf("duplicate dataset %q", ds.name)
		}
		fx.sets[key] = ds
		doc[ds.name] = ds.records
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode fixtures: %w", err)
	}
	fx.doc = string(raw)
	return fx, nil
}

// Load reads every configured fixture. Relative paths resolve against baseDir.
func Load(defs []config.Fixture, baseDir string) (*Fixtures, error) {
	sets := make([]*Dataset, 0, len(defs))
	for _, fx := range defs {
		ds, err := loadOne(fx, baseDir)
		if err != nil {
			return nil, fmt.Errorf("fixture %q: %w", fx.Name, err)
		}
		sets = append(sets, ds)
	}
	return New(sets...)
}

func loadOne(fx config.Fixture, baseDir string) (*Dataset, error) {
	if fx.Records != nil {
		records := make([]Record, len(fx.Records))
		for i, rec := range fx.Records {
			records[i] = Record(rec)
		}
		if len(records) == 0 {
			return nil, ErrEmpty
		}
		return NewDataset(fx.Name, records), nil
	}

	path := strings.TrimSpace(fx.Path)
	if path == "" {
		return nil, errors.New("path or records is required")
	}
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	var (
		records []Record
		err     error
	)
	switch fx.FileType() {
	case "csv":
		records, err = readCSV(path)
	case "json":
		records, err = readJSON(path)
	case "yaml":
		records, err = readYAML(path)
	default:
		return nil, fmt.Errorf("unsupported fixture type %q", fx.Type)
	}
	if err != nil {
		return nil, err
	}
	return &Dataset{name: fx.Name, records: records}, nil
}

// stringify flattens a decoded scalar to its text form. Nested values are
// kept as compact JSON.
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool, int, int64, float64:
		return fmt.Sprint(v)
	default:
		raw, err := json.Marshal(normalize(v))
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

// normalize converts yaml's map[interface{}]interface{} trees into values
// encoding/json accepts.
func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}

func toRecords(raw []map[string]interface{}) ([]Record, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		if len(item) == 0 {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		record := make(Record, len(item))
		for key, value := range item {
			record[key] = stringify(value)
		}
		records = append(records, record)
	}
	return records, nil
}

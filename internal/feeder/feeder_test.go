package feeder_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/torosent/surge/internal/config"
	"github.com/torosent/surge/internal/feeder"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "users.csv", `user_id,email,name
1,alice@example.com,Alice
2,bob@example.com,Bob
3,charlie@example.com,Charlie`)
	writeFixture(t, dir, "teams.json", `[{"team":"backend","size":4},{"team":"frontend","size":2.5}]`)
	writeFixture(t, dir, "regions.yml", "- code: eu\n  active: true\n- code: us\n  active: false\n")

	fx, err := feeder.Load([]config.Fixture{
		{Name: "users", Path: "users.csv"},
		{Name: "teams", Path: "teams.json"},
		{Name: "regions", Path: "regions.yml"},
	}, dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		dataset string
		index   int
		field   string
		want    string
	}{
		{"users", 0, "email", "alice@example.com"},
		{"users", 2, "name", "Charlie"},
		{"teams", 0, "size", "4"},
		{"teams", 1, "size", "2.5"},
		{"regions", 1, "code", "us"},
		{"regions", 0, "active", "true"},
	}
	for _, tt := range tests {
		ds, ok := fx.Dataset(tt.dataset)
		if !ok {
			t.Fatalf("Dataset(%q) not found", tt.dataset)
		}
		rec, ok := ds.Row(tt.index, 0)
		if !ok {
			t.Fatalf("%s.Row(%d, 0) not found", tt.dataset, tt.index)
		}
		if got := rec[tt.field]; got != tt.want {
			t.Errorf("%s[%d].%s = %q, want %q", tt.dataset, tt.index, tt.field, got, tt.want)
		}
	}

	want := []string{"regions", "teams", "users"}
	names := fx.Names()
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestInlineRecordsAreCopied(t *testing.T) {
	records := []map[string]string{{"id": "u1"}, {"id": "u2"}}
	fx, err := feeder.Load([]config.Fixture{{Name: "Users", Records: records}}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	records[0]["id"] = "mutated"

	ds, ok := fx.Dataset("users")
	if !ok {
		t.Fatal("Dataset lookup should be case-insensitive")
	}
	rec, _ := ds.Row(0, 0)
	if rec["id"] != "u1" {
		t.Errorf("Row(0, 0).id = %q, want u1 (dataset must not alias config records)", rec["id"])
	}
}

func TestRowCyclesByVUAndIteration(t *testing.T) {
	ds := feeder.NewDataset("users", []feeder.Record{{"id": "a"}, {"id": "b"}, {"id": "c"}})

	tests := []struct {
		vu        int
		iteration int64
		want      string
	}{
		{0, 0, "a"},
		{0, 1, "b"},
		{1, 0, "b"},
		{2, 1, "a"},
		{4, 7, "c"},
	}
	for _, tt := range tests {
		rec, ok := ds.Row(tt.vu, tt.iteration)
		if !ok {
			t.Fatalf("Row(%d, %d) returned no record", tt.vu, tt.iteration)
		}
		if rec["id"] != tt.want {
			t.Errorf("Row(%d, %d) = %q, want %q", tt.vu, tt.iteration, rec["id"], tt.want)
		}
	}

	var empty *feeder.Dataset
	if _, ok := empty.Row(0, 0); ok {
		t.Error("Row on nil dataset should report false")
	}
}

func TestJSONDocumentSupportsPathQueries(t *testing.T) {
	fx, err := feeder.New(
		feeder.NewDataset("users", []feeder.Record{{"id": "u1"}, {"id": "u2"}}),
		feeder.NewDataset("teams", []feeder.Record{{"name": "backend"}}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := gjson.Get(fx.JSON(), "users.1.id").String(); got != "u2" {
		t.Errorf("users.1.id = %q, want u2", got)
	}
	if got := gjson.Get(fx.JSON(), "teams.#").Int(); got != 1 {
		t.Errorf("teams.# = %d, want 1", got)
	}

	var nilFixtures *feeder.Fixtures
	if nilFixtures.JSON() != "{}" {
		t.Errorf("nil Fixtures JSON() = %q, want {}", nilFixtures.JSON())
	}
}

func TestConcurrentReads(t *testing.T) {
	ds := feeder.NewDataset("users", []feeder.Record{{"id": "a"}, {"id": "b"}})

	var wg sync.WaitGroup
	for vu := 0; vu < 8; vu++ {
		wg.Add(1)
		go func(vu int) {
			defer wg.Done()
			for iter := int64(0); iter < 100; iter++ {
				rec, ok := ds.Row(vu, iter)
				if !ok || rec["id"] == "" {
					t.Errorf("Row(%d, %d) = %v, %v", vu, iter, rec, ok)
					return
				}
			}
		}(vu)
	}
	wg.Wait()
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "header_only.csv", "id,name\n")
	writeFixture(t, dir, "ragged.csv", "id,name\n1\n")
	writeFixture(t, dir, "invalid.json", `{not json`)
	writeFixture(t, dir, "empty.json", `[]`)

	tests := []struct {
		name      string
		fixture   config.Fixture
		wantEmpty bool
	}{
		{"missing file", config.Fixture{Name: "x", Path: "missing.csv"}, false},
		{"header only csv", config.Fixture{Name: "x", Path: "header_only.csv"}, true},
		{"ragged csv", config.Fixture{Name: "x", Path: "ragged.csv"}, false},
		{"invalid json", config.Fixture{Name: "x", Path: "invalid.json"}, false},
		{"empty json", config.Fixture{Name: "x", Path: "empty.json"}, true},
		{"empty inline", config.Fixture{Name: "x", Records: []map[string]string{}}, true},
		{"unknown type", config.Fixture{Name: "x", Path: "users.txt"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := feeder.Load([]config.Fixture{tt.fixture}, dir)
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if tt.wantEmpty && !errors.Is(err, feeder.ErrEmpty) {
				t.Errorf("Load() error = %v, want ErrEmpty", err)
			}
		})
	}
}

func TestDuplicateDatasetNames(t *testing.T) {
	_, err := feeder.New(
		feeder.NewDataset("users", []feeder.Record{{"id": "a"}}),
		feeder.NewDataset("USERS", []feeder.Record{{"id": "b"}}),
	)
	if err == nil {
		t.Fatal("New() error = nil, want duplicate error")
	}
}

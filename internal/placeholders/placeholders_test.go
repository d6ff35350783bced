package placeholders_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/torosent/surge/internal/feeder"
	"github.com/torosent/surge/internal/placeholders"
	"github.com/torosent/surge/internal/variables"
)

func testScope(t *testing.T) placeholders.Scope {
	t.Helper()
	fx, err := feeder.New(feeder.NewDataset("users", []feeder.Record{
		{"id": "11111111-1111-1111-1111-111111111111", "username": "u1"},
		{"id": "21111111-1111-1111-1111-111111111111", "username": "u2"},
	}))
	if err != nil {
		t.Fatalf("feeder.New() error = %v", err)
	}
	vars := variables.NewLayered(map[string]string{"team": "backend", "teamname": "folded"})
	vars.Set("pr_id", "pr-42")
	return placeholders.Scope{
		VU:        3,
		Iteration: 7,
		Vars:      vars,
		Setup:     map[string]string{"teamName": "backend"},
		Fixtures:  fx,
	}
}

func TestApply(t *testing.T) {
	scope := testScope(t)

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"no placeholders", "/health", "/health"},
		{"vu and iter", "vu={{vu}} iter={{iter}}", "vu=3 iter=7"},
		{"pad filter", "11111111-1111-1111-1111-{{vu|pad:6}}{{iter|pad:6}}", "11111111-1111-1111-1111-000003000007"},
		{"pad narrower than value", "{{iter|pad:1}}", "7"},
		{"whitespace", "{{ vu }}", "3"},
		{"extracted variable", `{"id":"{{pr_id}}"}`, `{"id":"pr-42"}`},
		{"config variable", "team={{team}}", "team=backend"},
		{"folded config variable", "{{teamName}}", "folded"},
		{"setup value", "{{setup.teamName}}", "backend"},
		{"fixture data path", "/users/getReview?user_id={{data.users.1.id}}", "/users/getReview?user_id=21111111-1111-1111-1111-111111111111"},
		{"fixture row", "{{row.users.username}}", "u1"},
		{"default used", "{{missing|fallback}}", "fallback"},
		{"empty default", "[{{missing|}}]", "[]"},
		{"default ignored", "{{team|other}}", "backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := placeholders.Apply(tt.template, scope)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestApplyRowFollowsVUAndIteration(t *testing.T) {
	scope := testScope(t)
	scope.VU = 0

	for iter, want := range []string{"u1", "u2", "u1"} {
		scope.Iteration = int64(iter)
		got, err := placeholders.Apply("{{row.users.username}}", scope)
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if got != want {
			t.Errorf("iteration %d: got %q, want %q", iter, got, want)
		}
	}
}

func TestApplyIdentifiers(t *testing.T) {
	scope := testScope(t)

	got, err := placeholders.Apply("{{uuid}}/{{ulid}}", scope)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	re := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}/[0-9A-HJKMNP-TV-Z]{26}$`)
	if !re.MatchString(got) {
		t.Errorf("Apply() = %q, want uuid/ulid", got)
	}

	again, _ := placeholders.Apply("{{uuid}}", scope)
	if again == got[:36] {
		t.Errorf("uuid should differ between references")
	}
}

func TestApplyUnresolved(t *testing.T) {
	scope := testScope(t)

	tests := []string{
		"{{nope}}",
		"{{setup.missing}}",
		"{{data.teams.0}}",
		"{{row.users.email}}",
		"{{row.unknown.id}}",
		"{{missing|pad:4}}",
	}
	for _, template := range tests {
		got, err := placeholders.Apply(template, scope)
		var unresolved *placeholders.UnresolvedError
		if !errors.As(err, &unresolved) {
			t.Errorf("Apply(%q) error = %v, want UnresolvedError", template, err)
			continue
		}
		if got != template {
			t.Errorf("Apply(%q) = %q, want the reference left in place", template, got)
		}
	}
}

func TestApplyWithEmptyScope(t *testing.T) {
	got, err := placeholders.Apply("{{vu}}-{{iter}}", placeholders.Scope{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "0-0" {
		t.Errorf("Apply() = %q, want 0-0", got)
	}
	if _, err := placeholders.Apply("{{team}}", placeholders.Scope{}); err == nil {
		t.Error("variables should not resolve without a store")
	}
}

func TestApplyMap(t *testing.T) {
	scope := testScope(t)

	got, err := placeholders.ApplyMap(map[string]string{
		"X-Team": "{{team}}",
		"X-VU":   "{{vu}}",
	}, scope)
	if err != nil {
		t.Fatalf("ApplyMap() error = %v", err)
	}
	if got["X-Team"] != "backend" || got["X-VU"] != "3" {
		t.Errorf("ApplyMap() = %v", got)
	}

	if _, err := placeholders.ApplyMap(map[string]string{"X": "{{nope}}"}, scope); err == nil {
		t.Error("ApplyMap() error = nil, want unresolved error")
	}
	if out, err := placeholders.ApplyMap(nil, scope); out != nil || err != nil {
		t.Errorf("ApplyMap(nil) = %v, %v", out, err)
	}
}

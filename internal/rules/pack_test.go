package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/audiopcb/veritas/internal/models"
)

const testPack = `
rules:
  - id: min-trace-clearance
    name: Minimum Trace Clearance
    description: Traces must keep the configured clearance in mils.
    category: design
    severity: error
    enabled: true
    parameters:
      min_clearance_mil: 6
    conditions:
      - field: clearance_mil
        operator: gte
        value: "$param:min_clearance_mil"
  - id: ground-pour-present
    name: Ground Pour Present
    description: Audio boards need a ground pour on at least one layer.
    category: audio
    severity: warning
    enabled: true
    conditions:
      - field: ground_pour
        operator: exists
`

func writePack(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pack.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	return path
}

func TestLoadPack(t *testing.T) {
	reg := NewRegistry()
	loaded, err := LoadPack(writePack(t, testPack), reg, nil)
	if err != nil {
		t.Fatalf("LoadPack() error: %v", err)
	}
	if loaded != 2 || reg.Len() != 2 {
		t.Fatalf("loaded %d rules, registry has %d, want 2/2", loaded, reg.Len())
	}

	rule, err := reg.Get("min-trace-clearance")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if rule.Category != models.CategoryDesign || rule.Severity != models.SeverityError {
		t.Fatalf("rule metadata = %s/%s", rule.Category, rule.Severity)
	}
	if rule.Parameters["min_clearance_mil"] != 6 {
		t.Fatalf("parameter = %v, want 6", rule.Parameters["min_clearance_mil"])
	}

	// Conditions loaded from YAML evaluate against the live parameters.
	if pass, _ := Evaluate(rule, map[string]any{"clearance_mil": 8.0}); !pass {
		t.Fatal("clearance above the parameter should pass")
	}
	if pass, _ := Evaluate(rule, map[string]any{"clearance_mil": 4.0}); pass {
		t.Fatal("clearance below the parameter should fail")
	}
}

func TestLoadPackMissingFile(t *testing.T) {
	reg := NewRegistry()
	loaded, err := LoadPack(filepath.Join(t.TempDir(), "absent.yaml"), reg, nil)
	if err != nil || loaded != 0 {
		t.Fatalf("LoadPack(absent) = %d, %v; want 0, nil", loaded, err)
	}

	loaded, err = LoadPack("", reg, nil)
	if err != nil || loaded != 0 {
		t.Fatalf("LoadPack(empty path) = %d, %v; want 0, nil", loaded, err)
	}
}

func TestLoadPackRejectsMalformedYAML(t *testing.T) {
	reg := NewRegistry()
	if _, err := LoadPack(writePack(t, "rules: [!!"), reg, nil); err == nil {
		t.Fatal("malformed pack accepted")
	}
}

func TestLoadPackRejectsInvalidRule(t *testing.T) {
	reg := NewRegistry()
	bad := `
rules:
  - id: nameless
    category: design
    severity: error
`
	if _, err := LoadPack(writePack(t, bad), reg, nil); err == nil {
		t.Fatal("invalid rule accepted")
	}
}

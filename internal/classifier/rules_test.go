package classifier

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRules_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{
		"version": 7,
		"allow": ["my-cdn-host"],
		"deny": ["/sprites/"]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if rules.Version != 7 {
		t.Errorf("Expected version 7, got %d", rules.Version)
	}
	if len(rules.Allow) != 1 || rules.Allow[0] != "my-cdn-host" {
		t.Errorf("Expected allow list override, got %v", rules.Allow)
	}

	// Lists absent from the file keep the built-in defaults.
	if len(rules.Extensions) == 0 {
		t.Error("Expected default extensions to survive a partial rules file")
	}
	if len(rules.Indicators) == 0 {
		t.Error("Expected default indicators to survive a partial rules file")
	}
}

func TestLoadRules_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadRules(path); err == nil {
		t.Error("Expected error for malformed rules file")
	}
}

func TestLoadRules_MissingFile(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Expected error for missing rules file")
	}
}

func TestValidate_RejectsInertRules(t *testing.T) {
	rules := DefaultRules()
	rules.Extensions = nil
	if err := Validate(rules); err == nil {
		t.Error("Expected error for empty extensions")
	}

	rules = DefaultRules()
	rules.Extensions = []string{"mp4"}
	if err := Validate(rules); err == nil {
		t.Error("Expected error for extension without a leading dot")
	}
}

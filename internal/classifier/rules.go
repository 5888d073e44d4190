package classifier

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRules reads an externally supplied rule set from a JSON file.
// Fields left empty in the file fall back to the built-in defaults, so a
// rules file only has to carry the lists it wants to override.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to read rules file: %w", err)
	}

	rules := DefaultRules()
	if err := json.Unmarshal(data, &rules); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if err := Validate(rules); err != nil {
		return RuleSet{}, err
	}
	return rules, nil
}

// Validate rejects rule sets that would make the classifier inert.
func Validate(rules RuleSet) error {
	if len(rules.MediaTypes) == 0 {
		return fmt.Errorf("rules: mediaTypes must not be empty")
	}
	if len(rules.Extensions) == 0 {
		return fmt.Errorf("rules: extensions must not be empty")
	}
	if len(rules.Indicators) == 0 {
		return fmt.Errorf("rules: indicators must not be empty")
	}
	for _, ext := range rules.Extensions {
		if ext == "" || ext[0] != '.' {
			return fmt.Errorf("rules: extension %q must start with a dot", ext)
		}
	}
	return nil
}

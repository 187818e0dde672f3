package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/core/matching"
)

//go:embed field_rules.yaml
var defaultFieldRules []byte

type fieldRulesFile struct {
	Fields []struct {
		Name    string `yaml:"name"`
		Label   string `yaml:"label"`
		Pattern string `yaml:"pattern"`
	} `yaml:"fields"`
	Rules []struct {
		Field  string `yaml:"field"`
		Source string `yaml:"source"`
		Target string `yaml:"target"`
	} `yaml:"rules"`
}

// LoadFieldRules reads consistency rules from path, or the built-in set when path is empty.
func LoadFieldRules(path string) ([]matching.ConsistencyRule, error) {
	data := defaultFieldRules
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read field rules %s: %w", path, err)
		}
		data = raw
	}
	return ParseFieldRules(data)
}

func ParseFieldRules(data []byte) ([]matching.ConsistencyRule, error) {
	const op = "parse field rules"
	var file fieldRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, err)
	}

	patterns := make(map[string]matching.FieldPattern, len(file.Fields))
	for _, f := range file.Fields {
		pattern, err := matching.NewFieldPattern(f.Name, f.Label, f.Pattern)
		if err != nil {
			return nil, err
		}
		if _, exists := patterns[pattern.Name]; exists {
			return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("duplicate field %q", pattern.Name))
		}
		patterns[pattern.Name] = pattern
	}

	rules := make([]matching.ConsistencyRule, 0, len(file.Rules))
	for i, r := range file.Rules {
		pattern, ok := patterns[r.Field]
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("rule %d: unknown field %q", i, r.Field))
		}
		source, err := domain.ParseDocumentType(r.Source)
		if err != nil {
			return nil, fmt.Errorf("rule %d source: %w", i, err)
		}
		target, err := domain.ParseDocumentType(r.Target)
		if err != nil {
			return nil, fmt.Errorf("rule %d target: %w", i, err)
		}
		if source == target {
			return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("rule %d compares %s with itself", i, source))
		}
		rules = append(rules, matching.ConsistencyRule{Field: pattern, Source: source, Target: target})
	}
	if len(rules) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("no rules defined"))
	}
	return rules, nil
}

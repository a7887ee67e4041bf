package leakscan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk format for extra leak rules.
type RuleFile struct {
	Version  string   `yaml:"version"`
	Rules    []Rule   `yaml:"rules"`
	DenyList []string `yaml:"deny_list,omitempty"`
	// Replace drops the built-in rules instead of appending to them.
	Replace bool `yaml:"replace,omitempty"`
}

// LoadRuleFile reads a YAML rule file. A missing file returns nil, nil.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for i, r := range rf.Rules {
		if r.Name == "" || r.Pattern == "" {
			return nil, fmt.Errorf("rule %d: name and pattern are required", i)
		}
	}
	return &rf, nil
}

// Apply merges the rule file into opts.
func (rf *RuleFile) Apply(opts Options) Options {
	if rf == nil {
		return opts
	}
	if rf.Replace {
		opts.Rules = nil
	}
	opts.Rules = append(append([]Rule(nil), opts.Rules...), rf.Rules...)
	opts.DenyList = append(append([]string(nil), opts.DenyList...), rf.DenyList...)
	return opts
}

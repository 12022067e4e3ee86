package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawFile is the on-disk YAML shape. One file may carry any mix of redactions
// and topic rules.
type rawFile struct {
	Redactions []rawRedaction `yaml:"redactions"`
	Topics     []rawTopic     `yaml:"topics"`
}

type rawRedaction struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

type rawTopic struct {
	Topic       string   `yaml:"topic"`
	SourceTypes []string `yaml:"source_types"`
	Keywords    []string `yaml:"keywords"`
}

// LoadDir returns the built-in rule set extended with every *.yaml file in
// dir. A missing or empty dir yields the built-ins alone. Returns an error if
// any file is malformed or a pattern does not compile.
func LoadDir(dir string) (Set, error) {
	set := Default()
	if dir == "" {
		return set, nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return set, nil // no rules directory — valid (built-ins only)
	}
	if err != nil {
		return Set{}, fmt.Errorf("pipeline rules dir: %w", err)
	}
	if !info.IsDir() {
		return Set{}, fmt.Errorf("pipeline rules path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Set{}, fmt.Errorf("reading pipeline rules dir: %w", err)
	}

	seen := make(map[string]bool, len(set.Redactions))
	for _, r := range set.Redactions {
		seen[r.Name] = true
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return Set{}, fmt.Errorf("reading rules file %s: %w", path, err)
		}

		var raw rawFile
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Set{}, fmt.Errorf("parsing rules file %s: %w", path, err)
		}

		for _, r := range raw.Redactions {
			if r.Name == "" {
				return Set{}, fmt.Errorf("rules file %s: redaction name must not be empty", path)
			}
			if seen[r.Name] {
				return Set{}, fmt.Errorf("redaction %q: duplicate name (check multiple YAML files)", r.Name)
			}
			pattern, err := regexp.Compile(r.Pattern)
			if err != nil {
				return Set{}, fmt.Errorf("redaction %q: invalid pattern: %w", r.Name, err)
			}
			seen[r.Name] = true
			set.Redactions = append(set.Redactions, Redaction{
				Name:    r.Name,
				Pattern: pattern,
				Replace: r.Replace,
			})
		}

		for _, t := range raw.Topics {
			if t.Topic == "" {
				return Set{}, fmt.Errorf("rules file %s: topic must not be empty", path)
			}
			if len(t.SourceTypes) == 0 && len(t.Keywords) == 0 {
				return Set{}, fmt.Errorf("topic %q: needs at least one source_type or keyword", t.Topic)
			}
			set.Topics = append(set.Topics, TopicRule{
				Topic:       t.Topic,
				SourceTypes: t.SourceTypes,
				Keywords:    t.Keywords,
			})
		}
	}
	return set, nil
}

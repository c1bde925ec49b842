package screen

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// JobStateRule maps screen keywords to one job queue state. Earlier entries
// take precedence when a screen matches several.
type JobStateRule struct {
	State string   `yaml:"state"`
	Terms []string `yaml:"terms"`
}

// Rules bundles every workflow's keyword tables.
type Rules struct {
	Login       RuleSet        `yaml:"login"`
	JobSubmit   RuleSet        `yaml:"job_submit"`
	JobStates   []JobStateRule `yaml:"job_states"`
	JobNotFound []string       `yaml:"job_not_found"`
	Transfer    RuleSet        `yaml:"transfer"`
	ReadyPrompt string         `yaml:"ready_prompt"`
}

// DefaultRules parses the embedded rule tables.
func DefaultRules() (*Rules, error) {
	return parseRules(defaultRulesYAML)
}

// LoadRules reads rule tables from a file, falling back to the embedded
// defaults when path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if r.ReadyPrompt == "" {
		r.ReadyPrompt = "READY"
	}
	return &r, nil
}

// MatchJobState returns the first job state whose terms appear in the screen
// text, or "" when none match.
func (r *Rules) MatchJobState(text string) string {
	upper := strings.ToUpper(text)
	for _, rule := range r.JobStates {
		if ContainsAny(upper, rule.Terms) {
			return rule.State
		}
	}
	return ""
}

// MatchesNotFound reports whether the screen names an unknown job.
func (r *Rules) MatchesNotFound(text string) bool {
	return ContainsAny(strings.ToUpper(text), r.JobNotFound)
}

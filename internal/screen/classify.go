package screen

import "strings"

// Outcome is the three-valued result of keyword classification.
type Outcome int

const (
	OutcomeAmbiguous Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "ambiguous"
	}
}

// RuleSet is one workflow's keyword table. Term lists are data, not code, so
// they can be tested and overridden without touching the matching engine.
type RuleSet struct {
	Success []string `yaml:"success"`
	Error   []string `yaml:"error"`
}

// Classify applies a rule set over the uppercased text. Success terms win
// over error terms; neither matching is ambiguous, and each workflow applies
// its own policy default to that.
func Classify(text string, rules RuleSet) Outcome {
	upper := strings.ToUpper(text)

	if ContainsAny(upper, rules.Success) {
		return OutcomeSuccess
	}
	if ContainsAny(upper, rules.Error) {
		return OutcomeFailure
	}
	return OutcomeAmbiguous
}

// ContainsAny reports whether any term appears in the text. Terms are matched
// verbatim against the uppercased screen, so rule tables list them uppercase.
func ContainsAny(upperText string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(upperText, term) {
			return true
		}
	}
	return false
}

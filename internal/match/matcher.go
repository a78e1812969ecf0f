// File: internal/match/matcher.go
package match

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/uveworks/vigil/api/schemas"
)

// Rule maps a description pattern within a category to triage metadata: the
// final severity, whether the issue is mechanically fixable, the confidence
// that the fix is safe, and the fix template itself.
type Rule struct {
	Category schemas.IssueCategory `yaml:"category"`
	Pattern  string                `yaml:"pattern"`
	Severity schemas.Severity      `yaml:"severity"`
	Fixable  bool                  `yaml:"fixable"`

	// Confidence is how safe the rule's fix is to auto-apply.
	Confidence float64 `yaml:"confidence"`

	// Fix parameterizes the patch for fixable rules. The {{selector}}
	// placeholder in Verify is replaced with the issue's element reference.
	Fix *schemas.FixDescriptor `yaml:"fix,omitempty"`

	// Suggestion is advisory text for issues that cannot be auto-fixed.
	Suggestion string `yaml:"suggestion,omitempty"`
}

// ruleFile is the on-disk shape of a rule table.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Matcher enriches detected issues against an ordered rule table. Rule order
// is significant: among equally specific matches, the first-declared rule
// wins.
type Matcher struct {
	rules []Rule
}

// NewMatcher creates a matcher over the given rule table.
func NewMatcher(rules []Rule) (*Matcher, error) {
	for i, r := range rules {
		if r.Category == "" {
			return nil, fmt.Errorf("rule %d has no category", i)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return nil, fmt.Errorf("rule %d: confidence %g out of range", i, r.Confidence)
		}
		if r.Fixable && r.Fix == nil {
			return nil, fmt.Errorf("rule %d: fixable rule has no fix descriptor", i)
		}
	}
	return &Matcher{rules: rules}, nil
}

// LoadRules reads a rule table from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file contains no rules")
	}
	return file.Rules, nil
}

// DefaultRules is the built-in rule table used when no rules file is
// configured.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category:   schemas.CategoryMissingAltText,
			Pattern:    "no alt text",
			Severity:   schemas.SeverityLow,
			Fixable:    true,
			Confidence: 0.97,
			Fix: &schemas.FixDescriptor{
				Op:        schemas.PatchSetAttribute,
				Attribute: "alt",
				Value:     "Image",
				Verify:    `document.querySelector({{selector}}).getAttribute("alt") !== null && document.querySelector({{selector}}).getAttribute("alt") !== ""`,
			},
		},
		{
			Category:   schemas.CategoryAccessibility,
			Pattern:    "no accessible name",
			Severity:   schemas.SeverityLow,
			Fixable:    true,
			Confidence: 0.96,
			Fix: &schemas.FixDescriptor{
				Op:        schemas.PatchSetAttribute,
				Attribute: "aria-label",
				Value:     "Control",
				Verify:    `document.querySelector({{selector}}).getAttribute("aria-label") !== null`,
			},
		},
		{
			Category:   schemas.CategoryAccessibility,
			Pattern:    "contrast ratio",
			Severity:   schemas.SeverityLow,
			Suggestion: "Text is hard to read against its background; darken the text or lighten the background.",
		},
		{
			Category:   schemas.CategoryConsoleError,
			Pattern:    "is not a function",
			Severity:   schemas.SeverityCritical,
			Suggestion: "A script references a missing function; check bundle versions and load order.",
		},
		{
			Category:   schemas.CategoryConsoleError,
			Pattern:    "is not defined",
			Severity:   schemas.SeverityCritical,
			Suggestion: "A script references an undeclared identifier; a dependency likely failed to load.",
		},
		{
			Category:   schemas.CategoryNetworkFailure,
			Pattern:    "HTTP 5",
			Severity:   schemas.SeverityCritical,
			Suggestion: "The backend returned a server error; check application logs for the failing endpoint.",
		},
		{
			Category:   schemas.CategoryNetworkFailure,
			Pattern:    "HTTP 404",
			Severity:   schemas.SeverityHigh,
			Suggestion: "A referenced resource is missing; fix the URL or restore the asset.",
		},
		{
			Category:   schemas.CategoryBrokenImage,
			Pattern:    "failed to load",
			Severity:   schemas.SeverityMedium,
			Suggestion: "The image source is unreachable; verify the asset exists and the URL is correct.",
		},
		{
			Category:   schemas.CategoryPerformance,
			Pattern:    "transferred",
			Severity:   schemas.SeverityHigh,
			Suggestion: "Page weight is over budget; compress images and split bundles.",
		},
		{
			Category:   schemas.CategoryLayoutProblem,
			Pattern:    "overflows the viewport",
			Severity:   schemas.SeverityMedium,
			Suggestion: "An element is wider than the viewport; check fixed widths and unwrapped content.",
		},
	}
}

// Enrich applies the rule table to each issue. The most specific (longest)
// matching pattern within the issue's category wins; ties go to the earlier
// declared rule. Unmatched issues keep the detector severity and are never
// fixable. Confidence is set exactly once here.
func (m *Matcher) Enrich(issues []schemas.Issue) []schemas.Issue {
	out := make([]schemas.Issue, len(issues))
	for i, issue := range issues {
		out[i] = m.enrichOne(issue)
	}
	return out
}

func (m *Matcher) enrichOne(issue schemas.Issue) schemas.Issue {
	best := -1
	bestLen := -1
	for i, r := range m.rules {
		if r.Category != issue.Category {
			continue
		}
		if r.Pattern != "" && !strings.Contains(issue.Description, r.Pattern) {
			continue
		}
		// Longest pattern is most specific; strict > keeps the first
		// declared rule on ties.
		if len(r.Pattern) > bestLen {
			best = i
			bestLen = len(r.Pattern)
		}
	}

	if best < 0 {
		issue.Fixable = false
		issue.Confidence = 0
		return issue
	}

	rule := m.rules[best]
	issue.Severity = rule.Severity
	issue.Fixable = rule.Fixable
	issue.Confidence = rule.Confidence
	issue.Suggestion = rule.Suggestion

	if rule.Fixable && rule.Fix != nil {
		fix := *rule.Fix
		if fix.Selector == "" {
			fix.Selector = issue.ElementRef
		}
		fix.Verify = strings.ReplaceAll(fix.Verify, "{{selector}}", jsQuote(fix.Selector))
		issue.Fix = &fix
	}
	return issue
}

// jsQuote renders a selector as a JavaScript string literal.
func jsQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

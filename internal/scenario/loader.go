// File: internal/scenario/loader.go
package scenario

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/uveworks/vigil/api/schemas"
)

// scenarioFile is the on-disk shape of a scenario set.
type scenarioFile struct {
	Scenarios []schemas.ScenarioDefinition `yaml:"scenarios"`
}

// LoadScenarios reads and validates a declarative scenario file.
func LoadScenarios(path string) ([]schemas.ScenarioDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes a YAML scenario set and validates every step.
func ParseScenarios(data []byte) ([]schemas.ScenarioDefinition, error) {
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario file contains no scenarios")
	}

	seen := make(map[string]bool, len(file.Scenarios))
	for i := range file.Scenarios {
		sc := &file.Scenarios[i]
		if sc.ID == "" {
			return nil, fmt.Errorf("scenario %d has no id", i)
		}
		if seen[sc.ID] {
			return nil, fmt.Errorf("duplicate scenario id %q", sc.ID)
		}
		seen[sc.ID] = true

		if sc.Priority == "" {
			sc.Priority = schemas.PriorityMedium
		}
		if err := validateSteps(sc); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.ID, err)
		}
	}
	return file.Scenarios, nil
}

func validateSteps(sc *schemas.ScenarioDefinition) error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("has no steps")
	}
	for i, step := range sc.Steps {
		if !schemas.KnownStepKinds[step.Kind] {
			return fmt.Errorf("step %d: unknown action %q", i, step.Kind)
		}
		switch step.Kind {
		case schemas.StepNavigate:
			if step.Target == "" {
				return fmt.Errorf("step %d: navigate requires a target", i)
			}
		case schemas.StepClick, schemas.StepWaitFor, schemas.StepScrollTo:
			if step.Target == "" {
				return fmt.Errorf("step %d: %s requires a target selector", i, step.Kind)
			}
		case schemas.StepTypeText:
			if step.Target == "" {
				return fmt.Errorf("step %d: type_text requires a target selector", i)
			}
		case schemas.StepEvaluate:
			if step.Script == "" {
				return fmt.Errorf("step %d: evaluate requires a script", i)
			}
		case schemas.StepAssert:
			if step.Assert == "" {
				return fmt.Errorf("step %d: assert requires an expression", i)
			}
		}
	}
	return nil
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Substitute replaces {{name}} placeholders with values from vars. Unknown
// placeholders are left intact so assertion failures point at the real gap.
func Substitute(s string, vars map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

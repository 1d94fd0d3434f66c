package formula

import (
	"fmt"
	"strings"

	"github.com/MJE43/idleforge/internal/bignum"
)

// Resolver answers whether referenced ids exist. A blueprint implements it.
type Resolver interface {
	HasGenerator(id string) bool
	HasResource(id string) bool
	HasUpgrade(id string) bool
}

// Issue is an authoring problem found in a formula. Issues never affect
// evaluation; they exist for the editor.
type Issue struct {
	Step    int    `json:"step"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("step %d: %s: %s", i.Step, i.Field, i.Message)
}

// Check reports steps that evaluate to a silent default. When r is non-nil,
// references to ids missing from r are reported too.
func Check(f Formula, r Resolver) []Issue {
	var issues []Issue
	add := func(i int, field, format string, args ...any) {
		issues = append(issues, Issue{Step: i, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for i, s := range f.Steps {
		if !IsOperation(s.Operation) {
			add(i, "operation", "unknown operation %q is skipped", s.Operation)
		}
		value := strings.TrimSpace(s.Value)

		switch s.Type {
		case Constant:
			if _, err := bignum.Parse(value); err != nil {
				add(i, "value", "constant %q is not a number and evaluates to 0", s.Value)
			}
		case ResourceAmount:
			if value == "" {
				add(i, "value", "resource_amount needs a resource id")
			} else if r != nil && !r.HasResource(value) {
				add(i, "value", "unknown resource %q", value)
			}
		case GeneratorLevel:
			if value != "" && r != nil && !r.HasGenerator(value) {
				add(i, "value", "unknown generator %q", value)
			}
		case UpgradeLevel:
			if value != "" && r != nil && !r.HasUpgrade(value) {
				add(i, "value", "unknown upgrade %q", value)
			}
		default:
			add(i, "type", "unknown type %q evaluates to 0", s.Type)
		}
	}

	if len(f.Steps) > 0 {
		switch f.Steps[0].Operation {
		case Multiply, Divide, Power:
			add(0, "operation", "%s on the initial 0 accumulator", f.Steps[0].Operation)
		}
	}
	return issues
}

// Package formula evaluates structured formulas: ordered lists of steps folded
// into a single number. Each step picks an operand (a constant or a live value
// read from a Context) and combines it with the running accumulator.
//
// Evaluation never fails. Unknown operand types contribute zero, unknown
// operations leave the accumulator untouched and unparsable constants are zero.
package formula

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MJE43/idleforge/internal/bignum"
)

// SourceType selects where a step's operand comes from.
type SourceType string

const (
	Constant       SourceType = "constant"
	GeneratorLevel SourceType = "generator_level"
	ResourceAmount SourceType = "resource_amount"
	UpgradeLevel   SourceType = "upgrade_level"
)

// Operation combines the accumulator with a step's operand.
type Operation string

const (
	Set      Operation = "set"
	Add      Operation = "add"
	Multiply Operation = "multiply"
	Power    Operation = "power"
	Sub      Operation = "sub"
	Divide   Operation = "divide"
)

// Step is one instruction of a formula. Value holds the literal for constants
// and the referenced id for every other source type.
type Step struct {
	Type      SourceType `json:"type"`
	Value     string     `json:"value"`
	Operation Operation  `json:"operation"`
}

// UnmarshalJSON accepts a plain JSON number in "value" for hand-written
// blueprints.
func (s *Step) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type      SourceType      `json:"type"`
		Value     json.RawMessage `json:"value"`
		Operation Operation       `json:"operation"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("formula: decode step: %w", err)
	}
	s.Type = raw.Type
	s.Operation = raw.Operation
	s.Value = ""

	v := bytes.TrimSpace(raw.Value)
	switch {
	case len(v) == 0 || bytes.Equal(v, []byte("null")):
	case v[0] == '"':
		if err := json.Unmarshal(v, &s.Value); err != nil {
			return fmt.Errorf("formula: decode step value: %w", err)
		}
	default:
		s.Value = string(v)
	}
	return nil
}

// Formula is an ordered list of steps evaluated left to right.
type Formula struct {
	Steps []Step `json:"steps"`
}

// MarshalJSON always writes a steps array, never null.
func (f Formula) MarshalJSON() ([]byte, error) {
	steps := f.Steps
	if steps == nil {
		steps = []Step{}
	}
	return json.Marshal(struct {
		Steps []Step `json:"steps"`
	}{steps})
}

// New builds a formula from steps.
func New(steps ...Step) Formula {
	return Formula{Steps: steps}
}

// Const is a constant step.
func Const(value string, op Operation) Step {
	return Step{Type: Constant, Value: value, Operation: op}
}

// Ref is a step reading a live value. An empty id refers to the component
// that owns the formula.
func Ref(t SourceType, id string, op Operation) Step {
	return Step{Type: t, Value: id, Operation: op}
}

// IsEmpty reports whether the formula has no steps.
func (f Formula) IsEmpty() bool { return len(f.Steps) == 0 }

// Reference is a live value a formula reads.
type Reference struct {
	Type SourceType
	ID   string
}

// References lists the ids the formula reads, in step order. Steps reading the
// owning component's level are omitted.
func (f Formula) References() []Reference {
	var refs []Reference
	for _, s := range f.Steps {
		if s.Type == Constant || strings.TrimSpace(s.Value) == "" {
			continue
		}
		if _, ok := sources[s.Type]; !ok {
			continue
		}
		refs = append(refs, Reference{Type: s.Type, ID: strings.TrimSpace(s.Value)})
	}
	return refs
}

// Evaluate folds f over ctx starting from zero. A nil ctx reads every live
// value as zero.
func Evaluate(f Formula, ctx Context) bignum.Number {
	if ctx == nil {
		ctx = Vars{}
	}
	acc := bignum.Zero
	for _, s := range f.Steps {
		combine, ok := operations[s.Operation]
		if !ok {
			continue
		}
		acc = combine(acc, operand(s, ctx))
	}
	return acc
}

// EvaluateOr evaluates f, returning fallback when f has no steps.
func EvaluateOr(f Formula, ctx Context, fallback bignum.Number) bignum.Number {
	if f.IsEmpty() {
		return fallback
	}
	return Evaluate(f, ctx)
}

func operand(s Step, ctx Context) bignum.Number {
	src, ok := sources[s.Type]
	if !ok {
		return bignum.Zero
	}
	return src(ctx, strings.TrimSpace(s.Value))
}

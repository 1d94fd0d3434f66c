package formula

import (
	"fmt"
	"strings"
)

var symbols = map[Operation]string{
	Add:      "+",
	Sub:      "-",
	Multiply: "*",
	Divide:   "/",
	Power:    "^",
}

// Describe renders f as an infix expression for previews, for example
// "(10 ^ level) * 1.15". It mirrors Evaluate: unknown operations are skipped
// and unknown operand types render as 0.
func Describe(f Formula) string {
	expr := "0"
	compound := false
	for _, s := range f.Steps {
		if !IsOperation(s.Operation) {
			continue
		}
		term := describeOperand(s)
		if s.Operation == Set {
			expr, compound = term, false
			continue
		}
		if compound {
			expr = "(" + expr + ")"
		}
		expr = fmt.Sprintf("%s %s %s", expr, symbols[s.Operation], term)
		compound = true
	}
	return expr
}

func describeOperand(s Step) string {
	value := strings.TrimSpace(s.Value)
	switch s.Type {
	case Constant:
		n := constant(nil, value)
		if n.Sign() < 0 {
			return "(" + n.String() + ")"
		}
		return n.String()
	case GeneratorLevel:
		if value == "" {
			return "level"
		}
		return "level(" + value + ")"
	case UpgradeLevel:
		if value == "" {
			return "level"
		}
		return "upgrade(" + value + ")"
	case ResourceAmount:
		return "amount(" + value + ")"
	}
	return "0"
}

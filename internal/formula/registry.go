package formula

import (
	"sort"

	"github.com/MJE43/idleforge/internal/bignum"
)

// sourceFunc computes a step operand from its value field.
type sourceFunc func(ctx Context, value string) bignum.Number

// combineFunc folds an operand into the accumulator.
type combineFunc func(acc, operand bignum.Number) bignum.Number

// sources maps every supported operand type to its handler
var sources = make(map[SourceType]sourceFunc)

// operations maps every supported operation to its handler
var operations = make(map[Operation]combineFunc)

func registerSource(t SourceType, fn sourceFunc) {
	sources[t] = fn
}

func registerOperation(op Operation, fn combineFunc) {
	operations[op] = fn
}

// Sources returns the supported operand types, sorted.
func Sources() []SourceType {
	out := make([]SourceType, 0, len(sources))
	for t := range sources {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Operations returns the supported operations, sorted.
func Operations() []Operation {
	out := make([]Operation, 0, len(operations))
	for op := range operations {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsSource reports whether t is a supported operand type.
func IsSource(t SourceType) bool {
	_, ok := sources[t]
	return ok
}

// IsOperation reports whether op is supported.
func IsOperation(op Operation) bool {
	_, ok := operations[op]
	return ok
}

func constant(_ Context, value string) bignum.Number {
	n, err := bignum.Parse(value)
	if err != nil {
		return bignum.Zero
	}
	return n
}

func generatorLevel(ctx Context, id string) bignum.Number {
	if id == "" {
		return ctx.Level()
	}
	return ctx.GeneratorLevel(id)
}

func resourceAmount(ctx Context, id string) bignum.Number {
	return ctx.ResourceAmount(id)
}

func upgradeLevel(ctx Context, id string) bignum.Number {
	if id == "" {
		return ctx.Level()
	}
	return ctx.UpgradeLevel(id)
}

// init registers the instruction set
func init() {
	registerSource(Constant, constant)
	registerSource(GeneratorLevel, generatorLevel)
	registerSource(ResourceAmount, resourceAmount)
	registerSource(UpgradeLevel, upgradeLevel)

	registerOperation(Set, func(_, x bignum.Number) bignum.Number { return x })
	registerOperation(Add, bignum.Number.Add)
	registerOperation(Sub, bignum.Number.Sub)
	registerOperation(Multiply, bignum.Number.Mul)
	registerOperation(Divide, bignum.Number.Div)
	registerOperation(Power, bignum.Number.Pow)
}

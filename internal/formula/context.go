package formula

import "github.com/MJE43/idleforge/internal/bignum"

// Context supplies the live values a formula may read. Implementations return
// zero for unknown ids.
type Context interface {
	// Level is the level of the component that owns the formula.
	Level() bignum.Number
	GeneratorLevel(id string) bignum.Number
	ResourceAmount(id string) bignum.Number
	UpgradeLevel(id string) bignum.Number
}

// Vars is a map-backed Context.
type Vars struct {
	Self       bignum.Number
	Generators map[string]bignum.Number
	Resources  map[string]bignum.Number
	Upgrades   map[string]bignum.Number
}

// AtLevel returns a Context where only the owner's level is set.
func AtLevel(level bignum.Number) Vars {
	return Vars{Self: level}
}

func (v Vars) Level() bignum.Number { return v.Self }

func (v Vars) GeneratorLevel(id string) bignum.Number { return lookup(v.Generators, id) }

func (v Vars) ResourceAmount(id string) bignum.Number { return lookup(v.Resources, id) }

func (v Vars) UpgradeLevel(id string) bignum.Number { return lookup(v.Upgrades, id) }

func lookup(m map[string]bignum.Number, id string) bignum.Number {
	if n, ok := m[id]; ok {
		return n
	}
	return bignum.Zero
}

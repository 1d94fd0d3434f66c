// Package runtime simulates a game hydrated from a blueprint: production ticks,
// purchases, gating, prestige, automations and offline catch-up. The functions
// in this package are pure transitions over an explicit State; Session wraps
// them in a ticker-driven lifecycle.
package runtime

import (
	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/formula"
)

// State is the live, mutable part of a game.
type State struct {
	Resources  map[string]bignum.Number `json:"resources"`
	Generators map[string]bignum.Number `json:"generators"`
	Upgrades   map[string]bignum.Number `json:"upgrades"`
	Ticks      int64                    `json:"ticks"`
	Prestiges  int                      `json:"prestiges"`
}

// NewState hydrates a fresh state: every resource at its initial amount and
// every generator and upgrade at level zero.
func NewState(bp *blueprint.GameBlueprint) *State {
	st := &State{
		Resources:  make(map[string]bignum.Number, len(bp.Resources)),
		Generators: make(map[string]bignum.Number, len(bp.Generators)),
		Upgrades:   make(map[string]bignum.Number, len(bp.Upgrades)),
	}
	for _, r := range bp.Resources {
		st.Resources[r.ID] = r.InitialAmount
	}
	for _, g := range bp.Generators {
		st.Generators[g.ID] = bignum.Zero
	}
	for _, u := range bp.Upgrades {
		st.Upgrades[u.ID] = bignum.Zero
	}
	return st
}

// Restore returns a copy of saved completed against bp: entries for
// components added since the save are hydrated, entries for removed
// components are dropped.
func Restore(bp *blueprint.GameBlueprint, saved *State) *State {
	st := NewState(bp)
	if saved == nil {
		return st
	}
	for id := range st.Resources {
		if n, ok := saved.Resources[id]; ok {
			st.Resources[id] = n
		}
	}
	for id := range st.Generators {
		if n, ok := saved.Generators[id]; ok {
			st.Generators[id] = n
		}
	}
	for id := range st.Upgrades {
		if n, ok := saved.Upgrades[id]; ok {
			st.Upgrades[id] = n
		}
	}
	st.Ticks = saved.Ticks
	st.Prestiges = saved.Prestiges
	return st
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	out := &State{
		Resources:  make(map[string]bignum.Number, len(s.Resources)),
		Generators: make(map[string]bignum.Number, len(s.Generators)),
		Upgrades:   make(map[string]bignum.Number, len(s.Upgrades)),
		Ticks:      s.Ticks,
		Prestiges:  s.Prestiges,
	}
	for k, v := range s.Resources {
		out.Resources[k] = v
	}
	for k, v := range s.Generators {
		out.Generators[k] = v
	}
	for k, v := range s.Upgrades {
		out.Upgrades[k] = v
	}
	return out
}

// Resource returns the balance of id; missing balances are zero.
func (s *State) Resource(id string) bignum.Number { return get(s.Resources, id) }

// GeneratorLevel returns the level of generator id.
func (s *State) GeneratorLevel(id string) bignum.Number { return get(s.Generators, id) }

// UpgradeLevel returns the level of upgrade id.
func (s *State) UpgradeLevel(id string) bignum.Number { return get(s.Upgrades, id) }

func get(m map[string]bignum.Number, id string) bignum.Number {
	if n, ok := m[id]; ok {
		return n
	}
	return bignum.Zero
}

func (s *State) ensure() {
	if s.Resources == nil {
		s.Resources = make(map[string]bignum.Number)
	}
	if s.Generators == nil {
		s.Generators = make(map[string]bignum.Number)
	}
	if s.Upgrades == nil {
		s.Upgrades = make(map[string]bignum.Number)
	}
}

// At returns a formula context reading this state, with level as the
// owning component's level.
func (s *State) At(level bignum.Number) formula.Context {
	return stateContext{st: s, level: level}
}

type stateContext struct {
	st    *State
	level bignum.Number
}

func (c stateContext) Level() bignum.Number                   { return c.level }
func (c stateContext) GeneratorLevel(id string) bignum.Number { return c.st.GeneratorLevel(id) }
func (c stateContext) ResourceAmount(id string) bignum.Number { return c.st.Resource(id) }
func (c stateContext) UpgradeLevel(id string) bignum.Number   { return c.st.UpgradeLevel(id) }

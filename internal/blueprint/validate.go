package blueprint

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidID reports an empty or malformed id.
	ErrInvalidID = errors.New("invalid id")
	// ErrDuplicateID reports an id already used in its collection.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrUnknownReference reports a reference to an id that does not exist.
	ErrUnknownReference = errors.New("unknown reference")
	// ErrInvalidValue reports an out-of-range enum or number.
	ErrInvalidValue = errors.New("invalid value")
)

// ValidationError collects every invariant violation found in a blueprint.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "blueprint: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual problems to errors.Is.
func (e *ValidationError) Unwrap() []error { return e.Problems }

type validator struct {
	problems []error
}

func (v *validator) addf(sentinel error, format string, args ...any) {
	v.problems = append(v.problems, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel))
}

func (v *validator) ids(collection string, ids []string) map[string]bool {
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			v.addf(ErrInvalidID, "%s[%d]: empty id", collection, i)
			continue
		}
		if seen[id] {
			v.addf(ErrDuplicateID, "%s: %q", collection, id)
		}
		seen[id] = true
	}
	return seen
}

// Validate checks id uniqueness and cross references. It returns a
// *ValidationError listing every problem, or nil.
func (bp *GameBlueprint) Validate() error {
	var v validator

	resources := v.ids("resources", collect(bp.Resources, func(r Resource) string { return r.ID }))
	generators := v.ids("generators", collect(bp.Generators, func(g Generator) string { return g.ID }))
	upgrades := v.ids("upgrades", collect(bp.Upgrades, func(u Upgrade) string { return u.ID }))
	v.ids("tiers", collect(bp.Tiers, func(t Tier) string { return t.ID }))
	v.ids("automations", collect(bp.Automations, func(a Automation) string { return a.ID }))

	costs := func(owner string, list []PurchaseCost) {
		for _, c := range list {
			if !resources[c.ResourceID] {
				v.addf(ErrUnknownReference, "%s cost resource %q", owner, c.ResourceID)
			}
			if c.Amount.Sign() < 0 || !c.Amount.IsFinite() {
				v.addf(ErrInvalidValue, "%s cost amount %s", owner, c.Amount)
			}
		}
	}
	conditions := func(owner string, list []UnlockCondition) {
		for _, c := range list {
			if !resources[c.ResourceID] {
				v.addf(ErrUnknownReference, "%s condition resource %q", owner, c.ResourceID)
			}
		}
	}

	for _, g := range bp.Generators {
		owner := "generator " + g.ID
		if !resources[g.OutputResource] {
			v.addf(ErrUnknownReference, "%s output resource %q", owner, g.OutputResource)
		}
		costs(owner, g.BaseCosts)
		for _, r := range g.RequiredResources {
			if !resources[r.ResourceID] && !generators[r.ResourceID] && !upgrades[r.ResourceID] {
				v.addf(ErrUnknownReference, "%s requirement %q", owner, r.ResourceID)
			}
		}
	}

	for _, u := range bp.Upgrades {
		owner := "upgrade " + u.ID
		if u.Type != Additive && u.Type != Multiplicative {
			v.addf(ErrInvalidValue, "%s type %q", owner, u.Type)
		}
		if u.Levels < 0 {
			v.addf(ErrInvalidValue, "%s levels %d", owner, u.Levels)
		}
		if u.EffectTargetID != "" && !generators[u.EffectTargetID] && !resources[u.EffectTargetID] {
			v.addf(ErrUnknownReference, "%s effect target %q", owner, u.EffectTargetID)
		}
		if u.CostResource != "" && !resources[u.CostResource] {
			v.addf(ErrUnknownReference, "%s cost resource %q", owner, u.CostResource)
		}
		costs(owner, u.BaseCosts)
		conditions(owner, u.UnlockConditions)
	}

	for _, t := range bp.Tiers {
		owner := "tier " + t.ID
		members := []struct {
			kind  ItemKind
			ids   []string
			known map[string]bool
		}{
			{KindResources, t.Resources, resources},
			{KindGenerators, t.Generators, generators},
			{KindUpgrades, t.Upgrades, upgrades},
		}
		for _, m := range members {
			for _, id := range m.ids {
				if !m.known[id] {
					v.addf(ErrUnknownReference, "%s %s member %q", owner, m.kind, id)
				}
			}
		}
		conditions(owner, t.UnlockConditions)
		if t.IsPrestigeTier && !resources[t.PrestigeCurrencyID] {
			v.addf(ErrUnknownReference, "%s prestige currency %q", owner, t.PrestigeCurrencyID)
		}
	}

	for _, a := range bp.Automations {
		owner := "automation " + a.ID
		switch a.Type {
		case AutoBuyGenerator:
			if !generators[a.TargetID] {
				v.addf(ErrUnknownReference, "%s target generator %q", owner, a.TargetID)
			}
		case AutoBuyUpgrade:
			if !upgrades[a.TargetID] {
				v.addf(ErrUnknownReference, "%s target upgrade %q", owner, a.TargetID)
			}
		case AutoSellResource:
			if !resources[a.TargetID] {
				v.addf(ErrUnknownReference, "%s target resource %q", owner, a.TargetID)
			}
		default:
			v.addf(ErrInvalidValue, "%s type %q", owner, a.Type)
		}
		conditions(owner, a.Condition)
	}

	switch bp.Settings.Model() {
	case ProductionLinear, ProductionFormula:
	default:
		v.addf(ErrInvalidValue, "settings production model %q", bp.Settings.ProductionModel)
	}

	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

func collect[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = id(item)
	}
	return out
}

package runtime

import (
	"time"

	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/formula"
)

// Production returns what generator g adds to its output resource in one
// tick. A generator at level zero produces nothing.
func Production(bp *blueprint.GameBlueprint, st *State, g *blueprint.Generator) bignum.Number {
	level := st.GeneratorLevel(g.ID)
	if level.Sign() <= 0 {
		return bignum.Zero
	}
	if bp.Settings.Model() != blueprint.ProductionFormula {
		return g.BaseProduction.Mul(level)
	}

	rate := g.BaseProduction.Mul(formula.EvaluateOr(g.ProductionFormula, st.At(level), level))

	// Additive effects apply before multiplicative ones regardless of
	// declaration order.
	var multipliers []bignum.Number
	for i := range bp.Upgrades {
		u := &bp.Upgrades[i]
		if u.EffectTargetID != g.ID && u.EffectTargetID != g.OutputResource {
			continue
		}
		ulevel := st.UpgradeLevel(u.ID)
		if ulevel.Sign() <= 0 {
			continue
		}
		effect := formula.Evaluate(u.EffectFormula, st.At(ulevel))
		if u.Type == blueprint.Multiplicative {
			multipliers = append(multipliers, effect)
			continue
		}
		rate = rate.Add(effect)
	}
	for _, m := range multipliers {
		rate = rate.Mul(m)
	}
	return rate
}

// Tick applies one production period. Every generator with a positive level
// adds its production to its output resource.
func Tick(bp *blueprint.GameBlueprint, st *State) {
	st.ensure()
	produced := make([]bignum.Number, len(bp.Generators))
	for i := range bp.Generators {
		produced[i] = Production(bp, st, &bp.Generators[i])
	}
	// Rates are computed from the pre-tick state so generator order does not
	// matter.
	for i, g := range bp.Generators {
		if produced[i].IsZero() {
			continue
		}
		st.Resources[g.OutputResource] = st.Resource(g.OutputResource).Add(produced[i])
	}
	st.Ticks++
}

// ApplyOffline credits the production of elapsed wall time in one step and
// returns the number of ticks credited. Elapsed time is capped at the
// blueprint's offline window; nothing happens when offline progress is
// disabled. Automations do not run offline.
func ApplyOffline(bp *blueprint.GameBlueprint, st *State, elapsed time.Duration) int64 {
	if !bp.Settings.OfflineProgressEnabled || elapsed <= 0 {
		return 0
	}
	if limit := bp.Settings.MaxOffline(); elapsed > limit {
		elapsed = limit
	}
	ticks := int64(elapsed / bp.Settings.TickInterval())
	if ticks <= 0 {
		return 0
	}

	st.ensure()
	n := bignum.FromInt(ticks)
	produced := make([]bignum.Number, len(bp.Generators))
	for i := range bp.Generators {
		produced[i] = Production(bp, st, &bp.Generators[i])
	}
	for i, g := range bp.Generators {
		if produced[i].IsZero() {
			continue
		}
		st.Resources[g.OutputResource] = st.Resource(g.OutputResource).Add(produced[i].Mul(n))
	}
	st.Ticks += ticks
	return ticks
}

// scale multiplies every base cost by scalar.
func scale(costs []blueprint.PurchaseCost, scalar bignum.Number) []blueprint.PurchaseCost {
	out := make([]blueprint.PurchaseCost, len(costs))
	for i, c := range costs {
		out[i] = blueprint.PurchaseCost{ResourceID: c.ResourceID, Amount: c.Amount.Mul(scalar)}
	}
	return out
}

// ActualCost returns the price of the next level of a generator: every base
// cost multiplied by the cost scaling formula evaluated at the current level.
// An empty scaling formula leaves the base costs unscaled. Unknown generators
// have no cost.
func ActualCost(bp *blueprint.GameBlueprint, st *State, generatorID string) []blueprint.PurchaseCost {
	g, ok := bp.Generator(generatorID)
	if !ok {
		return nil
	}
	level := st.GeneratorLevel(g.ID)
	return scale(g.BaseCosts, formula.EvaluateOr(g.CostScalingFormula, st.At(level), bignum.One))
}

// UpgradeCost returns the price of the next level of an upgrade. The cost
// formula scales the base costs when present, otherwise it is the amount of
// the cost resource.
func UpgradeCost(bp *blueprint.GameBlueprint, st *State, upgradeID string) []blueprint.PurchaseCost {
	u, ok := bp.Upgrade(upgradeID)
	if !ok {
		return nil
	}
	scalar := formula.EvaluateOr(u.CostFormula, st.At(st.UpgradeLevel(u.ID)), bignum.One)
	if len(u.BaseCosts) > 0 {
		return scale(u.BaseCosts, scalar)
	}
	if u.CostResource != "" {
		return []blueprint.PurchaseCost{{ResourceID: u.CostResource, Amount: scalar}}
	}
	return nil
}

// CanAfford reports whether every cost is covered. An empty cost list is
// never affordable.
func CanAfford(st *State, costs []blueprint.PurchaseCost) bool {
	if len(costs) == 0 {
		return false
	}
	// Duplicate resource entries must be covered together.
	need := make(map[string]bignum.Number, len(costs))
	for _, c := range costs {
		if !c.Amount.IsFinite() {
			return false
		}
		need[c.ResourceID] = get(need, c.ResourceID).Add(c.Amount)
	}
	for id, amount := range need {
		if !st.Resource(id).GreaterThanOrEqual(amount) {
			return false
		}
	}
	return true
}

// pay deducts costs and raises levels[id] by one. Callers check CanAfford
// first; both effects happen together.
func pay(st *State, costs []blueprint.PurchaseCost, levels map[string]bignum.Number, id string) {
	for _, c := range costs {
		st.Resources[c.ResourceID] = st.Resource(c.ResourceID).Sub(c.Amount)
	}
	levels[id] = get(levels, id).Add(bignum.One)
}

// PurchaseGenerator buys one level of a generator when it is unlocked and
// affordable. Otherwise the state is left untouched and false is returned.
func PurchaseGenerator(bp *blueprint.GameBlueprint, st *State, generatorID string) bool {
	g, ok := bp.Generator(generatorID)
	if !ok || !GeneratorUnlocked(bp, st, g) {
		return false
	}
	costs := ActualCost(bp, st, generatorID)
	if !CanAfford(st, costs) {
		return false
	}
	st.ensure()
	pay(st, costs, st.Generators, g.ID)
	return true
}

// PurchaseUpgrade buys one level of an upgrade when it is unlocked, below its
// level cap and affordable.
func PurchaseUpgrade(bp *blueprint.GameBlueprint, st *State, upgradeID string) bool {
	u, ok := bp.Upgrade(upgradeID)
	if !ok || !UpgradeUnlocked(bp, st, u) || UpgradeMaxed(st, u) {
		return false
	}
	costs := UpgradeCost(bp, st, upgradeID)
	if !CanAfford(st, costs) {
		return false
	}
	st.ensure()
	pay(st, costs, st.Upgrades, u.ID)
	return true
}

// UpgradeMaxed reports whether a capped upgrade reached its level limit.
func UpgradeMaxed(st *State, u *blueprint.Upgrade) bool {
	return u.Levels > 0 && st.UpgradeLevel(u.ID).GreaterThanOrEqual(bignum.FromInt(int64(u.Levels)))
}

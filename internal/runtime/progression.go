package runtime

import (
	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
	"github.com/MJE43/idleforge/internal/formula"
)

// conditionsMet reports whether every resource amount reaches its value.
func conditionsMet(st *State, conds []blueprint.UnlockCondition) bool {
	for _, c := range conds {
		if !st.Resource(c.ResourceID).GreaterThanOrEqual(c.Value) {
			return false
		}
	}
	return true
}

// requirementLevel resolves a requirement id as a generator level, then an
// upgrade level, then a resource amount.
func requirementLevel(bp *blueprint.GameBlueprint, st *State, id string) bignum.Number {
	switch {
	case bp.HasGenerator(id):
		return st.GeneratorLevel(id)
	case bp.HasUpgrade(id):
		return st.UpgradeLevel(id)
	}
	return st.Resource(id)
}

// TierUnlocked reports whether all unlock conditions of a tier hold. Tiers
// without conditions are unlocked; unknown tiers are locked.
func TierUnlocked(bp *blueprint.GameBlueprint, st *State, tierID string) bool {
	t, ok := bp.Tier(tierID)
	if !ok {
		return false
	}
	return conditionsMet(st, t.UnlockConditions)
}

func tiersUnlocked(bp *blueprint.GameBlueprint, st *State, kind blueprint.ItemKind, id string) bool {
	for _, t := range bp.TiersContaining(kind, id) {
		if !conditionsMet(st, t.UnlockConditions) {
			return false
		}
	}
	return true
}

// GeneratorUnlocked reports whether every requirement of g is met and every
// tier listing g is unlocked.
func GeneratorUnlocked(bp *blueprint.GameBlueprint, st *State, g *blueprint.Generator) bool {
	for _, r := range g.RequiredResources {
		if !requirementLevel(bp, st, r.ResourceID).GreaterThanOrEqual(r.MinLevel) {
			return false
		}
	}
	return tiersUnlocked(bp, st, blueprint.KindGenerators, g.ID)
}

// UpgradeUnlocked reports whether the unlock conditions of u hold and every
// tier listing u is unlocked.
func UpgradeUnlocked(bp *blueprint.GameBlueprint, st *State, u *blueprint.Upgrade) bool {
	if !conditionsMet(st, u.UnlockConditions) {
		return false
	}
	return tiersUnlocked(bp, st, blueprint.KindUpgrades, u.ID)
}

// PrestigePayout evaluates the prestige formula of a tier with the current
// prestige currency balance as the level.
func PrestigePayout(bp *blueprint.GameBlueprint, st *State, tierID string) bignum.Number {
	t, ok := bp.Tier(tierID)
	if !ok || !t.IsPrestigeTier {
		return bignum.Zero
	}
	return formula.Evaluate(t.PrestigeFormula, st.At(st.Resource(t.PrestigeCurrencyID)))
}

// Prestige resets progress in exchange for prestige currency. It requires an
// unlocked prestige tier and a positive finite payout. Non-permanent resources
// other than the prestige currency return to their initial amounts, all levels
// drop to zero, then the payout is added to the prestige currency. It returns the payout and whether the
// reset happened.
func Prestige(bp *blueprint.GameBlueprint, st *State, tierID string) (bignum.Number, bool) {
	t, ok := bp.Tier(tierID)
	if !ok || !t.IsPrestigeTier || !conditionsMet(st, t.UnlockConditions) {
		return bignum.Zero, false
	}
	payout := PrestigePayout(bp, st, tierID)
	if !payout.IsFinite() || payout.Sign() <= 0 {
		return bignum.Zero, false
	}

	st.ensure()
	for _, r := range bp.Resources {
		if !r.IsPermanent && r.ID != t.PrestigeCurrencyID {
			st.Resources[r.ID] = r.InitialAmount
		}
	}
	for id := range st.Generators {
		st.Generators[id] = bignum.Zero
	}
	for id := range st.Upgrades {
		st.Upgrades[id] = bignum.Zero
	}
	st.Resources[t.PrestigeCurrencyID] = st.Resource(t.PrestigeCurrencyID).Add(payout)
	st.Prestiges++
	return payout, true
}

// RunAutomations fires every automation whose condition holds, buying its
// target at most once, in declaration order. It returns the ids of the
// automations that made a purchase. Sell automations have no price model and
// never fire.
func RunAutomations(bp *blueprint.GameBlueprint, st *State) []string {
	var fired []string
	for _, a := range bp.Automations {
		if !conditionsMet(st, a.Condition) {
			continue
		}
		var bought bool
		switch a.Type {
		case blueprint.AutoBuyGenerator:
			bought = PurchaseGenerator(bp, st, a.TargetID)
		case blueprint.AutoBuyUpgrade:
			bought = PurchaseUpgrade(bp, st, a.TargetID)
		}
		if bought {
			fired = append(fired, a.ID)
		}
	}
	return fired
}

// Step runs one tick followed by the automations.
func Step(bp *blueprint.GameBlueprint, st *State) []string {
	Tick(bp, st)
	return RunAutomations(bp, st)
}

package runtime

import (
	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
)

// GeneratorView is the derived, display-ready status of a generator.
type GeneratorView struct {
	ID         string                   `json:"id"`
	Level      bignum.Number            `json:"level"`
	Production bignum.Number            `json:"production"`
	Cost       []blueprint.PurchaseCost `json:"cost"`
	Unlocked   bool                     `json:"unlocked"`
	Affordable bool                     `json:"affordable"`
}

// UpgradeView is the derived status of an upgrade.
type UpgradeView struct {
	ID         string                   `json:"id"`
	Level      bignum.Number            `json:"level"`
	Cost       []blueprint.PurchaseCost `json:"cost"`
	Unlocked   bool                     `json:"unlocked"`
	Maxed      bool                     `json:"maxed"`
	Affordable bool                     `json:"affordable"`
}

// TierView is the derived status of a tier.
type TierView struct {
	ID             string         `json:"id"`
	Unlocked       bool           `json:"unlocked"`
	IsPrestigeTier bool           `json:"isPrestigeTier"`
	PrestigePayout *bignum.Number `json:"prestigePayout,omitempty"`
}

// Overview is everything a player interface shows about a state. It is
// recomputed on each call.
type Overview struct {
	Resources  map[string]bignum.Number `json:"resources"`
	Generators []GeneratorView          `json:"generators"`
	Upgrades   []UpgradeView            `json:"upgrades"`
	Tiers      []TierView               `json:"tiers"`
	Ticks      int64                    `json:"ticks"`
	Prestiges  int                      `json:"prestiges"`
}

// Inspect derives an Overview from st without modifying it.
func Inspect(bp *blueprint.GameBlueprint, st *State) Overview {
	ov := Overview{
		Resources:  make(map[string]bignum.Number, len(st.Resources)),
		Generators: make([]GeneratorView, 0, len(bp.Generators)),
		Upgrades:   make([]UpgradeView, 0, len(bp.Upgrades)),
		Tiers:      make([]TierView, 0, len(bp.Tiers)),
		Ticks:      st.Ticks,
		Prestiges:  st.Prestiges,
	}
	for id, n := range st.Resources {
		ov.Resources[id] = n
	}

	for i := range bp.Generators {
		g := &bp.Generators[i]
		cost := ActualCost(bp, st, g.ID)
		unlocked := GeneratorUnlocked(bp, st, g)
		ov.Generators = append(ov.Generators, GeneratorView{
			ID:         g.ID,
			Level:      st.GeneratorLevel(g.ID),
			Production: Production(bp, st, g),
			Cost:       cost,
			Unlocked:   unlocked,
			Affordable: unlocked && CanAfford(st, cost),
		})
	}

	for i := range bp.Upgrades {
		u := &bp.Upgrades[i]
		cost := UpgradeCost(bp, st, u.ID)
		unlocked := UpgradeUnlocked(bp, st, u)
		maxed := UpgradeMaxed(st, u)
		ov.Upgrades = append(ov.Upgrades, UpgradeView{
			ID:         u.ID,
			Level:      st.UpgradeLevel(u.ID),
			Cost:       cost,
			Unlocked:   unlocked,
			Maxed:      maxed,
			Affordable: unlocked && !maxed && CanAfford(st, cost),
		})
	}

	for _, t := range bp.Tiers {
		tv := TierView{
			ID:             t.ID,
			Unlocked:       conditionsMet(st, t.UnlockConditions),
			IsPrestigeTier: t.IsPrestigeTier,
		}
		if t.IsPrestigeTier {
			payout := PrestigePayout(bp, st, t.ID)
			tv.PrestigePayout = &payout
		}
		ov.Tiers = append(ov.Tiers, tv)
	}
	return ov
}

// Package blueprint defines the declarative description of an incremental game:
// resources, generators, upgrades, tiers and automations, plus the settings the
// runtime honours. A GameBlueprint is plain data; the runtime hydrates a live
// state from a deep copy and never mutates it.
package blueprint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/formula"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 2

// DefaultTitle names a freshly created blueprint.
const DefaultTitle = "My New Incremental Game"

// ProductionModel selects how a tick computes generator output.
type ProductionModel string

const (
	// ProductionLinear adds baseProduction * level per tick.
	ProductionLinear ProductionModel = "linear"
	// ProductionFormula scales baseProduction by the production formula and
	// applies upgrade effects.
	ProductionFormula ProductionModel = "formula"
)

// UpgradeType says how an upgrade effect combines with production.
type UpgradeType string

const (
	Additive       UpgradeType = "additive"
	Multiplicative UpgradeType = "multiplicative"
)

// AutomationType selects what an automation does when its condition holds.
type AutomationType string

const (
	AutoBuyGenerator AutomationType = "auto_buy_generator"
	AutoBuyUpgrade   AutomationType = "auto_buy_upgrade"
	AutoSellResource AutomationType = "auto_sell_resource"
)

// ItemKind names a tier member list.
type ItemKind string

const (
	KindResources  ItemKind = "resources"
	KindGenerators ItemKind = "generators"
	KindUpgrades   ItemKind = "upgrades"
)

// Settings holds game-wide options.
type Settings struct {
	OfflineProgressEnabled bool            `json:"offlineProgressEnabled"`
	TickIntervalMs         int             `json:"tickIntervalMs,omitempty" jsonschema:"minimum=0"`
	ProductionModel        ProductionModel `json:"productionModel,omitempty" jsonschema:"enum=linear,enum=formula"`
	MaxOfflineSeconds      int             `json:"maxOfflineSeconds,omitempty" jsonschema:"minimum=0"`
}

// Defaults used when a setting is zero.
const (
	DefaultTickIntervalMs    = 1000
	DefaultMaxOfflineSeconds = 86400
)

// DefaultSettings returns the settings of a new blueprint.
func DefaultSettings() Settings {
	return Settings{
		OfflineProgressEnabled: true,
		TickIntervalMs:         DefaultTickIntervalMs,
		ProductionModel:        ProductionLinear,
		MaxOfflineSeconds:      DefaultMaxOfflineSeconds,
	}
}

// TickInterval returns the production period.
func (s Settings) TickInterval() time.Duration {
	ms := s.TickIntervalMs
	if ms <= 0 {
		ms = DefaultTickIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

// MaxOffline caps the offline catch-up window.
func (s Settings) MaxOffline() time.Duration {
	sec := s.MaxOfflineSeconds
	if sec <= 0 {
		sec = DefaultMaxOfflineSeconds
	}
	return time.Duration(sec) * time.Second
}

// Model returns the production model, defaulting to linear.
func (s Settings) Model() ProductionModel {
	if s.ProductionModel == "" {
		return ProductionLinear
	}
	return s.ProductionModel
}

// Resource is a currency or material.
type Resource struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	InitialAmount bignum.Number `json:"initialAmount"`
	// IsPermanent resources keep their balance through a prestige.
	IsPermanent bool `json:"isPermanent"`
}

// PurchaseCost is one resource amount paid for a purchase.
type PurchaseCost struct {
	ResourceID string        `json:"resourceId"`
	Amount     bignum.Number `json:"amount"`
}

// Requirement gates a generator on the current level (or amount) of another
// component reaching MinLevel.
type Requirement struct {
	ResourceID string        `json:"resourceId"`
	MinLevel   bignum.Number `json:"minLevel"`
}

// Generator produces a resource every tick in proportion to its level.
type Generator struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	OutputResource     string          `json:"outputResource"`
	BaseProduction     bignum.Number   `json:"baseProduction"`
	ProductionFormula  formula.Formula `json:"productionFormula"`
	BaseCosts          []PurchaseCost  `json:"baseCosts"`
	CostScalingFormula formula.Formula `json:"costScalingFormula"`
	RequiredResources  []Requirement   `json:"requiredResources"`
}

// UnlockCondition holds when the named resource amount is at least Value.
type UnlockCondition struct {
	ResourceID string        `json:"resourceId"`
	Value      bignum.Number `json:"value"`
}

// Upgrade modifies the production of a generator or of every generator
// producing a resource.
type Upgrade struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Type UpgradeType `json:"type" jsonschema:"enum=additive,enum=multiplicative"`
	// Levels caps purchases; zero means unlimited.
	Levels           int               `json:"levels" jsonschema:"minimum=0"`
	EffectFormula    formula.Formula   `json:"effectFormula"`
	EffectTargetID   string            `json:"effectTargetId"`
	CostFormula      formula.Formula   `json:"costFormula"`
	CostResource     string            `json:"costResource,omitempty"`
	BaseCosts        []PurchaseCost    `json:"baseCosts,omitempty"`
	UnlockConditions []UnlockCondition `json:"unlockConditions"`
}

// UnmarshalJSON also reads the legacy "targetId" key.
func (u *Upgrade) UnmarshalJSON(b []byte) error {
	type plain Upgrade
	var aux struct {
		plain
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return fmt.Errorf("blueprint: decode upgrade: %w", err)
	}
	*u = Upgrade(aux.plain)
	if u.EffectTargetID == "" {
		u.EffectTargetID = aux.TargetID
	}
	return nil
}

// Tier groups components for progression gating. A prestige tier also resets
// progress in exchange for its prestige currency.
type Tier struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Resources          []string          `json:"resources"`
	Generators         []string          `json:"generators"`
	Upgrades           []string          `json:"upgrades"`
	IsPrestigeTier     bool              `json:"isPrestigeTier"`
	UnlockConditions   []UnlockCondition `json:"unlockConditions"`
	PrestigeCurrencyID string            `json:"prestigeCurrencyId,omitempty"`
	PrestigeFormula    formula.Formula   `json:"prestigeFormula"`
}

// Items returns the member list for kind, or nil for an unknown kind.
func (t *Tier) Items(kind ItemKind) *[]string {
	switch kind {
	case KindResources:
		return &t.Resources
	case KindGenerators:
		return &t.Generators
	case KindUpgrades:
		return &t.Upgrades
	}
	return nil
}

// Contains reports whether id is a member of the kind list.
func (t Tier) Contains(kind ItemKind, id string) bool {
	list := t.Items(kind)
	if list == nil {
		return false
	}
	for _, item := range *list {
		if item == id {
			return true
		}
	}
	return false
}

// Automation buys or sells on the player's behalf.
type Automation struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	TargetID  string            `json:"targetId"`
	Type      AutomationType    `json:"type" jsonschema:"enum=auto_buy_generator,enum=auto_buy_upgrade,enum=auto_sell_resource"`
	Condition []UnlockCondition `json:"condition"`
}

// GameBlueprint is the aggregate root of a game design.
type GameBlueprint struct {
	GameTitle   string       `json:"gameTitle"`
	Version     int          `json:"version"`
	Settings    Settings     `json:"settings"`
	Tiers       []Tier       `json:"tiers"`
	Resources   []Resource   `json:"resources"`
	Generators  []Generator  `json:"generators"`
	Upgrades    []Upgrade    `json:"upgrades"`
	Automations []Automation `json:"automations"`
}

// Default returns the empty skeleton a new design starts from.
func Default() *GameBlueprint {
	bp := &GameBlueprint{
		GameTitle: DefaultTitle,
		Version:   CurrentVersion,
		Settings:  DefaultSettings(),
	}
	bp.normalize()
	return bp
}

// normalize replaces nil collections with empty ones and fills zero settings.
func (bp *GameBlueprint) normalize() {
	if bp.Tiers == nil {
		bp.Tiers = []Tier{}
	}
	if bp.Resources == nil {
		bp.Resources = []Resource{}
	}
	if bp.Generators == nil {
		bp.Generators = []Generator{}
	}
	if bp.Upgrades == nil {
		bp.Upgrades = []Upgrade{}
	}
	if bp.Automations == nil {
		bp.Automations = []Automation{}
	}
	for i := range bp.Generators {
		g := &bp.Generators[i]
		if g.BaseCosts == nil {
			g.BaseCosts = []PurchaseCost{}
		}
		if g.RequiredResources == nil {
			g.RequiredResources = []Requirement{}
		}
	}
	for i := range bp.Upgrades {
		if bp.Upgrades[i].UnlockConditions == nil {
			bp.Upgrades[i].UnlockConditions = []UnlockCondition{}
		}
	}
	for i := range bp.Tiers {
		t := &bp.Tiers[i]
		for _, list := range []*[]string{&t.Resources, &t.Generators, &t.Upgrades} {
			if *list == nil {
				*list = []string{}
			}
		}
		if t.UnlockConditions == nil {
			t.UnlockConditions = []UnlockCondition{}
		}
	}
	for i := range bp.Automations {
		if bp.Automations[i].Condition == nil {
			bp.Automations[i].Condition = []UnlockCondition{}
		}
	}

	s := &bp.Settings
	if s.TickIntervalMs <= 0 {
		s.TickIntervalMs = DefaultTickIntervalMs
	}
	if s.ProductionModel == "" {
		s.ProductionModel = ProductionLinear
	}
	if s.MaxOfflineSeconds <= 0 {
		s.MaxOfflineSeconds = DefaultMaxOfflineSeconds
	}
}

// ResourceName pairs a resource id with its display name.
type ResourceName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResourceNames lists resources in declaration order.
func (bp *GameBlueprint) ResourceNames() []ResourceName {
	out := make([]ResourceName, 0, len(bp.Resources))
	for _, r := range bp.Resources {
		out = append(out, ResourceName{ID: r.ID, Name: r.Name})
	}
	return out
}

// Resource returns the resource with id.
func (bp *GameBlueprint) Resource(id string) (*Resource, bool) {
	for i := range bp.Resources {
		if bp.Resources[i].ID == id {
			return &bp.Resources[i], true
		}
	}
	return nil, false
}

// Generator returns the generator with id.
func (bp *GameBlueprint) Generator(id string) (*Generator, bool) {
	for i := range bp.Generators {
		if bp.Generators[i].ID == id {
			return &bp.Generators[i], true
		}
	}
	return nil, false
}

// Upgrade returns the upgrade with id.
func (bp *GameBlueprint) Upgrade(id string) (*Upgrade, bool) {
	for i := range bp.Upgrades {
		if bp.Upgrades[i].ID == id {
			return &bp.Upgrades[i], true
		}
	}
	return nil, false
}

// Tier returns the tier with id.
func (bp *GameBlueprint) Tier(id string) (*Tier, bool) {
	for i := range bp.Tiers {
		if bp.Tiers[i].ID == id {
			return &bp.Tiers[i], true
		}
	}
	return nil, false
}

// Automation returns the automation with id.
func (bp *GameBlueprint) Automation(id string) (*Automation, bool) {
	for i := range bp.Automations {
		if bp.Automations[i].ID == id {
			return &bp.Automations[i], true
		}
	}
	return nil, false
}

func (bp *GameBlueprint) HasResource(id string) bool  { _, ok := bp.Resource(id); return ok }
func (bp *GameBlueprint) HasGenerator(id string) bool { _, ok := bp.Generator(id); return ok }
func (bp *GameBlueprint) HasUpgrade(id string) bool   { _, ok := bp.Upgrade(id); return ok }

// TiersContaining returns the tiers listing id under kind.
func (bp *GameBlueprint) TiersContaining(kind ItemKind, id string) []*Tier {
	var out []*Tier
	for i := range bp.Tiers {
		if bp.Tiers[i].Contains(kind, id) {
			out = append(out, &bp.Tiers[i])
		}
	}
	return out
}

// Clone returns a deep copy. Numbers are immutable and shared.
func (bp *GameBlueprint) Clone() *GameBlueprint {
	if bp == nil {
		return nil
	}
	out := *bp

	out.Resources = append([]Resource{}, bp.Resources...)

	out.Generators = make([]Generator, len(bp.Generators))
	for i, g := range bp.Generators {
		g.ProductionFormula = cloneFormula(g.ProductionFormula)
		g.CostScalingFormula = cloneFormula(g.CostScalingFormula)
		g.BaseCosts = append([]PurchaseCost{}, g.BaseCosts...)
		g.RequiredResources = append([]Requirement{}, g.RequiredResources...)
		out.Generators[i] = g
	}

	out.Upgrades = make([]Upgrade, len(bp.Upgrades))
	for i, u := range bp.Upgrades {
		u.EffectFormula = cloneFormula(u.EffectFormula)
		u.CostFormula = cloneFormula(u.CostFormula)
		if u.BaseCosts != nil {
			u.BaseCosts = append([]PurchaseCost{}, u.BaseCosts...)
		}
		u.UnlockConditions = append([]UnlockCondition{}, u.UnlockConditions...)
		out.Upgrades[i] = u
	}

	out.Tiers = make([]Tier, len(bp.Tiers))
	for i, t := range bp.Tiers {
		t.Resources = append([]string{}, t.Resources...)
		t.Generators = append([]string{}, t.Generators...)
		t.Upgrades = append([]string{}, t.Upgrades...)
		t.UnlockConditions = append([]UnlockCondition{}, t.UnlockConditions...)
		t.PrestigeFormula = cloneFormula(t.PrestigeFormula)
		out.Tiers[i] = t
	}

	out.Automations = make([]Automation, len(bp.Automations))
	for i, a := range bp.Automations {
		a.Condition = append([]UnlockCondition{}, a.Condition...)
		out.Automations[i] = a
	}
	return &out
}

func cloneFormula(f formula.Formula) formula.Formula {
	if f.Steps == nil {
		return f
	}
	return formula.Formula{Steps: append([]formula.Step{}, f.Steps...)}
}

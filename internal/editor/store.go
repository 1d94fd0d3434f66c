// Package editor owns the design-time blueprint and the mutation operations
// an authoring tool performs on it. Every mutation is applied to a copy,
// validated and only then committed, so the current blueprint always
// satisfies the blueprint invariants.
package editor

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
)

// Re-exported validation sentinels.
var (
	ErrInvalidID        = blueprint.ErrInvalidID
	ErrDuplicateID      = blueprint.ErrDuplicateID
	ErrUnknownReference = blueprint.ErrUnknownReference
	ErrInvalidValue     = blueprint.ErrInvalidValue
)

var (
	// ErrNotFound reports an update or removal of an id that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInUse reports a removal blocked by remaining references.
	ErrInUse = errors.New("still referenced")
)

// defaultGeneratorCost is charged in the first resource when a generator is
// added without costs.
var defaultGeneratorCost = bignum.FromInt(10)

// Store holds the blueprint being edited. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	bp     *blueprint.GameBlueprint
	logger *log.Logger
}

// NewStore creates a store holding the default blueprint. A nil logger
// discards log output.
func NewStore(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Store{bp: blueprint.Default(), logger: logger}
}

// Blueprint returns a deep copy of the current blueprint.
func (s *Store) Blueprint() *blueprint.GameBlueprint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bp.Clone()
}

// ResourceNames lists resource ids and names.
func (s *Store) ResourceNames() []blueprint.ResourceName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bp.ResourceNames()
}

// HasResources reports whether at least one resource exists.
func (s *Store) HasResources() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bp.Resources) > 0
}

// Load replaces the current blueprint with a validated copy of bp.
func (s *Store) Load(bp *blueprint.GameBlueprint) error {
	if bp == nil {
		return fmt.Errorf("editor: load: nil blueprint")
	}
	if err := bp.Validate(); err != nil {
		s.logger.Printf("load_rejected title=%q error=%v", bp.GameTitle, err)
		return fmt.Errorf("editor: load: %w", err)
	}
	next := bp.Clone()
	next.Version = blueprint.CurrentVersion

	s.mu.Lock()
	s.bp = next
	s.mu.Unlock()
	s.logger.Printf("blueprint_loaded title=%q resources=%d generators=%d upgrades=%d",
		next.GameTitle, len(next.Resources), len(next.Generators), len(next.Upgrades))
	return nil
}

// Reset restores the default skeleton.
func (s *Store) Reset() {
	s.mu.Lock()
	s.bp = blueprint.Default()
	s.mu.Unlock()
	s.logger.Printf("blueprint_reset")
}

// apply runs fn on a copy of the blueprint and commits the copy when fn
// succeeds and the result validates.
func (s *Store) apply(op string, fn func(bp *blueprint.GameBlueprint) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.bp.Clone()
	if err := fn(next); err != nil {
		s.logger.Printf("%s_rejected error=%v", op, err)
		return fmt.Errorf("editor: %s: %w", op, err)
	}
	if err := next.Validate(); err != nil {
		s.logger.Printf("%s_rejected error=%v", op, err)
		return fmt.Errorf("editor: %s: %w", op, err)
	}
	s.bp = next
	s.logger.Printf("%s_applied", op)
	return nil
}

func checkNewID(id string, exists bool) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("empty id: %w", ErrInvalidID)
	}
	if exists {
		return fmt.Errorf("%q: %w", id, ErrDuplicateID)
	}
	return nil
}

// SetGameTitle renames the game.
func (s *Store) SetGameTitle(title string) error {
	return s.apply("set_title", func(bp *blueprint.GameBlueprint) error {
		bp.GameTitle = title
		return nil
	})
}

// SetSettings replaces the game settings.
func (s *Store) SetSettings(settings blueprint.Settings) error {
	return s.apply("set_settings", func(bp *blueprint.GameBlueprint) error {
		bp.Settings = settings
		return nil
	})
}

// AddResource appends a resource.
func (s *Store) AddResource(r blueprint.Resource) error {
	return s.apply("add_resource", func(bp *blueprint.GameBlueprint) error {
		if err := checkNewID(r.ID, bp.HasResource(r.ID)); err != nil {
			return err
		}
		bp.Resources = append(bp.Resources, r)
		return nil
	})
}

// UpdateResource replaces the resource with the same id.
func (s *Store) UpdateResource(r blueprint.Resource) error {
	return s.apply("update_resource", func(bp *blueprint.GameBlueprint) error {
		cur, ok := bp.Resource(r.ID)
		if !ok {
			return fmt.Errorf("resource %q: %w", r.ID, ErrNotFound)
		}
		*cur = r
		return nil
	})
}

// RemoveResource deletes a resource that nothing references.
func (s *Store) RemoveResource(id string) error {
	return s.remove("remove_resource", "resource", id, func(bp *blueprint.GameBlueprint) bool {
		for i := range bp.Resources {
			if bp.Resources[i].ID == id {
				bp.Resources = append(bp.Resources[:i], bp.Resources[i+1:]...)
				return true
			}
		}
		return false
	})
}

// AddGenerator appends a generator. A generator without costs is charged
// 10 of the first resource.
func (s *Store) AddGenerator(g blueprint.Generator) error {
	return s.apply("add_generator", func(bp *blueprint.GameBlueprint) error {
		if err := checkNewID(g.ID, bp.HasGenerator(g.ID)); err != nil {
			return err
		}
		g.BaseCosts = append([]blueprint.PurchaseCost{}, g.BaseCosts...)
		if len(g.BaseCosts) == 0 && len(bp.Resources) > 0 {
			g.BaseCosts = append(g.BaseCosts, blueprint.PurchaseCost{
				ResourceID: bp.Resources[0].ID,
				Amount:     defaultGeneratorCost,
			})
		}
		if g.RequiredResources == nil {
			g.RequiredResources = []blueprint.Requirement{}
		}
		bp.Generators = append(bp.Generators, g)
		return nil
	})
}

// UpdateGenerator replaces the generator with the same id.
func (s *Store) UpdateGenerator(g blueprint.Generator) error {
	return s.apply("update_generator", func(bp *blueprint.GameBlueprint) error {
		cur, ok := bp.Generator(g.ID)
		if !ok {
			return fmt.Errorf("generator %q: %w", g.ID, ErrNotFound)
		}
		if g.BaseCosts == nil {
			g.BaseCosts = []blueprint.PurchaseCost{}
		}
		if g.RequiredResources == nil {
			g.RequiredResources = []blueprint.Requirement{}
		}
		*cur = g
		return nil
	})
}

// RemoveGenerator deletes a generator that nothing references.
func (s *Store) RemoveGenerator(id string) error {
	return s.remove("remove_generator", "generator", id, func(bp *blueprint.GameBlueprint) bool {
		for i := range bp.Generators {
			if bp.Generators[i].ID == id {
				bp.Generators = append(bp.Generators[:i], bp.Generators[i+1:]...)
				return true
			}
		}
		return false
	})
}

// AddUpgrade appends an upgrade.
func (s *Store) AddUpgrade(u blueprint.Upgrade) error {
	return s.apply("add_upgrade", func(bp *blueprint.GameBlueprint) error {
		if err := checkNewID(u.ID, bp.HasUpgrade(u.ID)); err != nil {
			return err
		}
		if u.UnlockConditions == nil {
			u.UnlockConditions = []blueprint.UnlockCondition{}
		}
		bp.Upgrades = append(bp.Upgrades, u)
		return nil
	})
}

// UpdateUpgrade replaces the upgrade with the same id.
func (s *Store) UpdateUpgrade(u blueprint.Upgrade) error {
	return s.apply("update_upgrade", func(bp *blueprint.GameBlueprint) error {
		cur, ok := bp.Upgrade(u.ID)
		if !ok {
			return fmt.Errorf("upgrade %q: %w", u.ID, ErrNotFound)
		}
		if u.UnlockConditions == nil {
			u.UnlockConditions = []blueprint.UnlockCondition{}
		}
		*cur = u
		return nil
	})
}

// RemoveUpgrade deletes an upgrade that nothing references.
func (s *Store) RemoveUpgrade(id string) error {
	return s.remove("remove_upgrade", "upgrade", id, func(bp *blueprint.GameBlueprint) bool {
		for i := range bp.Upgrades {
			if bp.Upgrades[i].ID == id {
				bp.Upgrades = append(bp.Upgrades[:i], bp.Upgrades[i+1:]...)
				return true
			}
		}
		return false
	})
}

// AddTier appends a tier.
func (s *Store) AddTier(t blueprint.Tier) error {
	return s.apply("add_tier", func(bp *blueprint.GameBlueprint) error {
		_, exists := bp.Tier(t.ID)
		if err := checkNewID(t.ID, exists); err != nil {
			return err
		}
		bp.Tiers = append(bp.Tiers, normalizeTier(t))
		return nil
	})
}

// UpdateTier replaces the tier with the same id.
func (s *Store) UpdateTier(t blueprint.Tier) error {
	return s.apply("update_tier", func(bp *blueprint.GameBlueprint) error {
		cur, ok := bp.Tier(t.ID)
		if !ok {
			return fmt.Errorf("tier %q: %w", t.ID, ErrNotFound)
		}
		*cur = normalizeTier(t)
		return nil
	})
}

// RemoveTier deletes a tier.
func (s *Store) RemoveTier(id string) error {
	return s.remove("remove_tier", "tier", id, func(bp *blueprint.GameBlueprint) bool {
		for i := range bp.Tiers {
			if bp.Tiers[i].ID == id {
				bp.Tiers = append(bp.Tiers[:i], bp.Tiers[i+1:]...)
				return true
			}
		}
		return false
	})
}

func normalizeTier(t blueprint.Tier) blueprint.Tier {
	for _, list := range []*[]string{&t.Resources, &t.Generators, &t.Upgrades} {
		if *list == nil {
			*list = []string{}
		}
	}
	if t.UnlockConditions == nil {
		t.UnlockConditions = []blueprint.UnlockCondition{}
	}
	return t
}

// AddItemToTier lists itemID under kind in a tier. Adding a member twice is a
// no-op.
func (s *Store) AddItemToTier(tierID string, kind blueprint.ItemKind, itemID string) error {
	return s.apply("add_tier_item", func(bp *blueprint.GameBlueprint) error {
		t, ok := bp.Tier(tierID)
		if !ok {
			return fmt.Errorf("tier %q: %w", tierID, ErrNotFound)
		}
		list := t.Items(kind)
		if list == nil {
			return fmt.Errorf("item kind %q: %w", kind, ErrInvalidValue)
		}
		if !t.Contains(kind, itemID) {
			*list = append(*list, itemID)
		}
		return nil
	})
}

// RemoveItemFromTier drops itemID from a tier member list. Removing an absent
// member is a no-op.
func (s *Store) RemoveItemFromTier(tierID string, kind blueprint.ItemKind, itemID string) error {
	return s.apply("remove_tier_item", func(bp *blueprint.GameBlueprint) error {
		t, ok := bp.Tier(tierID)
		if !ok {
			return fmt.Errorf("tier %q: %w", tierID, ErrNotFound)
		}
		list := t.Items(kind)
		if list == nil {
			return fmt.Errorf("item kind %q: %w", kind, ErrInvalidValue)
		}
		for i, id := range *list {
			if id == itemID {
				*list = append((*list)[:i], (*list)[i+1:]...)
				break
			}
		}
		return nil
	})
}

// AddAutomation appends an automation.
func (s *Store) AddAutomation(a blueprint.Automation) error {
	return s.apply("add_automation", func(bp *blueprint.GameBlueprint) error {
		_, exists := bp.Automation(a.ID)
		if err := checkNewID(a.ID, exists); err != nil {
			return err
		}
		if a.Condition == nil {
			a.Condition = []blueprint.UnlockCondition{}
		}
		bp.Automations = append(bp.Automations, a)
		return nil
	})
}

// UpdateAutomation replaces the automation with the same id.
func (s *Store) UpdateAutomation(a blueprint.Automation) error {
	return s.apply("update_automation", func(bp *blueprint.GameBlueprint) error {
		cur, ok := bp.Automation(a.ID)
		if !ok {
			return fmt.Errorf("automation %q: %w", a.ID, ErrNotFound)
		}
		if a.Condition == nil {
			a.Condition = []blueprint.UnlockCondition{}
		}
		*cur = a
		return nil
	})
}

// RemoveAutomation deletes an automation.
func (s *Store) RemoveAutomation(id string) error {
	return s.remove("remove_automation", "automation", id, func(bp *blueprint.GameBlueprint) bool {
		for i := range bp.Automations {
			if bp.Automations[i].ID == id {
				bp.Automations = append(bp.Automations[:i], bp.Automations[i+1:]...)
				return true
			}
		}
		return false
	})
}

// remove deletes an item through del and rejects the removal with ErrInUse
// when the remaining blueprint still references it.
func (s *Store) remove(op, kind, id string, del func(bp *blueprint.GameBlueprint) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.bp.Clone()
	if !del(next) {
		err := fmt.Errorf("editor: %s: %s %q: %w", op, kind, id, ErrNotFound)
		s.logger.Printf("%s_rejected id=%s error=%v", op, id, err)
		return err
	}
	if verr := next.Validate(); verr != nil {
		err := fmt.Errorf("editor: %s: %s %q: %w: %w", op, kind, id, ErrInUse, verr)
		s.logger.Printf("%s_rejected id=%s error=%v", op, id, err)
		return err
	}
	s.bp = next
	s.logger.Printf("%s_applied id=%s", op, id)
	return nil
}

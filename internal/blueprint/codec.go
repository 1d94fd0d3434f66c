package blueprint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedVersion is returned for documents newer than CurrentVersion.
var ErrUnsupportedVersion = errors.New("unsupported blueprint version")

// migration upgrades a generic document from version From to From+1.
type migration struct {
	From  int
	Name  string
	Apply func(doc map[string]any) error
}

// migrations run in order on documents older than CurrentVersion.
var migrations = []migration{
	{From: 1, Name: "cost lists and effect targets", Apply: migrateV1},
}

// Encode writes bp as indented JSON with tagged numbers.
func Encode(bp *GameBlueprint) ([]byte, error) {
	data, err := json.MarshalIndent(bp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("blueprint: encode: %w", err)
	}
	return data, nil
}

// Decode parses a blueprint document of any supported version, migrating it
// to CurrentVersion. Plain numbers and numeric strings are accepted wherever
// a tagged number is expected. Decode does not validate references.
func Decode(data []byte) (*GameBlueprint, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}

	version, err := documentVersion(doc)
	if err != nil {
		return nil, err
	}
	if version > CurrentVersion {
		return nil, fmt.Errorf("blueprint: version %d: %w", version, ErrUnsupportedVersion)
	}

	for _, m := range migrations {
		if m.From < version {
			continue
		}
		if err := m.Apply(doc); err != nil {
			return nil, fmt.Errorf("blueprint: migrate v%d (%s): %w", m.From, m.Name, err)
		}
		version = m.From + 1
	}
	doc["version"] = CurrentVersion

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("blueprint: re-encode migrated document: %w", err)
	}
	var bp GameBlueprint
	if err := json.Unmarshal(raw, &bp); err != nil {
		return nil, fmt.Errorf("blueprint: decode: %w", err)
	}
	bp.normalize()
	return &bp, nil
}

func decodeDocument(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	// Keep numbers as literals so values beyond float64 survive migration.
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("blueprint: parse: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("blueprint: parse: document is null")
	}
	return doc, nil
}

func documentVersion(doc map[string]any) (int, error) {
	raw, ok := doc["version"]
	if !ok || raw == nil {
		return 1, nil
	}
	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("blueprint: version is not a number")
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("blueprint: version %q: %w", n, err)
	}
	if v < 1 {
		v = 1
	}
	return int(v), nil
}

// migrateV1 turns the single generator baseCost into a baseCosts list paid in
// the first resource, renames upgrade targetId to effectTargetId and adds
// default settings.
func migrateV1(doc map[string]any) error {
	firstResource := ""
	if resources, ok := doc["resources"].([]any); ok && len(resources) > 0 {
		if r, ok := resources[0].(map[string]any); ok {
			firstResource, _ = r["id"].(string)
		}
	}

	if generators, ok := doc["generators"].([]any); ok {
		for i, item := range generators {
			g, ok := item.(map[string]any)
			if !ok {
				return fmt.Errorf("generators[%d] is not an object", i)
			}
			cost, hasCost := g["baseCost"]
			delete(g, "baseCost")
			if _, hasList := g["baseCosts"]; hasList {
				continue
			}
			list := []any{}
			if hasCost && cost != nil && firstResource != "" {
				list = append(list, map[string]any{"resourceId": firstResource, "amount": cost})
			}
			g["baseCosts"] = list
		}
	}

	if upgrades, ok := doc["upgrades"].([]any); ok {
		for i, item := range upgrades {
			u, ok := item.(map[string]any)
			if !ok {
				return fmt.Errorf("upgrades[%d] is not an object", i)
			}
			if target, ok := u["targetId"]; ok {
				if _, has := u["effectTargetId"]; !has {
					u["effectTargetId"] = target
				}
				delete(u, "targetId")
			}
		}
	}

	settings, ok := doc["settings"].(map[string]any)
	if !ok {
		settings = map[string]any{}
		doc["settings"] = settings
	}
	defaults := DefaultSettings()
	fill := map[string]any{
		"offlineProgressEnabled": defaults.OfflineProgressEnabled,
		"tickIntervalMs":         defaults.TickIntervalMs,
		"productionModel":        string(defaults.ProductionModel),
		"maxOfflineSeconds":      defaults.MaxOfflineSeconds,
	}
	for k, v := range fill {
		if _, ok := settings[k]; !ok {
			settings[k] = v
		}
	}
	return nil
}

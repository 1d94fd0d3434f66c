package blueprint

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// Schema reflects the JSON Schema of a current-version blueprint document.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	schema := reflector.ReflectFromType(reflect.TypeOf(GameBlueprint{}))
	schema.Title = "Idleforge Game Blueprint"
	schema.Description = "Declarative definition of an incremental game: resources, generators, upgrades, tiers and automations."
	return schema
}

package bignum

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// TypeTag is the "__type" discriminator written for every serialized Number.
const TypeTag = "Decimal"

type tagged struct {
	Type  string `json:"__type"`
	Value string `json:"value"`
}

// MarshalJSON writes {"__type":"Decimal","value":"<decimal string>"}.
func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagged{Type: TypeTag, Value: n.String()})
}

// UnmarshalJSON accepts the tagged object form as well as the legacy plain
// JSON number and numeric string forms. null decodes to zero.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = Zero
		return nil
	}

	switch b[0] {
	case '{':
		var t struct {
			Type  string          `json:"__type"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(b, &t); err != nil {
			return fmt.Errorf("bignum: decode tagged value: %w", err)
		}
		if t.Type != "" && t.Type != TypeTag {
			return fmt.Errorf("bignum: unexpected __type %q", t.Type)
		}
		v := bytes.TrimSpace(t.Value)
		if len(v) > 0 && v[0] == '{' {
			return fmt.Errorf("bignum: nested tagged value")
		}
		return n.UnmarshalJSON(v)
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("bignum: decode string value: %w", err)
		}
		parsed, err := Parse(s)
		if err != nil {
			return err
		}
		*n = parsed
		return nil
	}

	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// JSONSchema describes the accepted encodings for schema generation.
func (Number) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Description: "Arbitrary-magnitude decimal",
		OneOf: []*jsonschema.Schema{
			{Type: "object", Required: []string{"__type", "value"}},
			{Type: "number"},
			{Type: "string"},
		},
	}
}

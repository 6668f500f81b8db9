// Classifies JSON values into the logical kinds used by table rules.

package docdb

import (
	"encoding/json"
	"fmt"
)

// AutoIncrement is the placeholder value replaced by the next table counter on
// write. It is also the rule tag marking a field as auto-incremented.
const AutoIncrement = "AUTO_INCREMENT"

// Kind is the logical type tag of a field in a table's rules.
type Kind string

const (
	// KindString matches JSON strings.
	KindString Kind = "STRING"
	// KindNumber matches JSON numbers.
	KindNumber Kind = "NUMBER"
	// KindObject matches JSON objects.
	KindObject Kind = "OBJECT"
	// KindArray matches JSON arrays.
	KindArray Kind = "ARRAY"
	// KindBoolean matches JSON booleans.
	KindBoolean Kind = "BOOLEAN"
	// KindAutoIncrement only accepts the [AutoIncrement] placeholder.
	KindAutoIncrement Kind = AutoIncrement
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindObject, KindArray, KindBoolean, KindAutoIncrement:
		return true
	}
	return false
}

// UnmarshalJSON implements json.Unmarshaler and rejects unknown tags.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("kind must be a string: %w", err)
	}
	if !Kind(s).Valid() {
		return fmt.Errorf("unknown kind %q", s)
	}
	*k = Kind(s)
	return nil
}

// KindOf classifies a normalized JSON value.
//
// It returns false for null and for Go values that are not the output of
// decoding JSON into an any.
func KindOf(v any) (Kind, bool) {
	switch v.(type) {
	case string:
		return KindString, true
	case json.Number, float64:
		return KindNumber, true
	case bool:
		return KindBoolean, true
	case map[string]any:
		return KindObject, true
	case []any:
		return KindArray, true
	default:
		return "", false
	}
}

// isPlaceholder reports whether v is the literal auto-increment placeholder.
func isPlaceholder(v any) bool {
	s, ok := v.(string)
	return ok && s == AutoIncrement
}

// describe renders a value for error messages.
func describe(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

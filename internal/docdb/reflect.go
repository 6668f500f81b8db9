// Derives table rules from Go struct types.

package docdb

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// RulesFromType derives table rules from a struct type using JSON Schema
// reflection.
//
// Fields tagged `docstore:"auto_increment"` are declared [KindAutoIncrement];
// they must be a string or an interface so the value can carry the
// [AutoIncrement] placeholder. Fields tagged omitempty or omitzero, and
// fields whose JSON Schema type cannot be mapped to a kind, are rejected.
func RulesFromType[T any]() (Rules, error) {
	t := reflect.TypeFor[T]()
	switch t.Kind() {
	case reflect.Pointer:
		if t.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
		}
		t = t.Elem()
	case reflect.Struct:
	default:
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	// Inline properties (no $ref) so nested structs report "object".
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := r.ReflectFromType(t)
	if schema.Properties == nil {
		return nil, fmt.Errorf("type %s has no properties", t)
	}

	autoInc := make(map[string]bool)
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("json") == "-" {
			continue
		}
		name := jsonFieldName(&field)
		// Strict tables require every field, so a field json.Marshal may
		// drop cannot be declared.
		if _, opts, _ := strings.Cut(field.Tag.Get("json"), ","); hasOption(opts, "omitempty") || hasOption(opts, "omitzero") {
			return nil, fmt.Errorf("field %q: omitempty and omitzero are not supported", name)
		}
		if field.Tag.Get("docstore") == "auto_increment" {
			// The field must be able to hold the AUTO_INCREMENT placeholder.
			if k := field.Type.Kind(); k != reflect.String && k != reflect.Interface {
				return nil, fmt.Errorf("field %q: auto_increment requires a string or interface type, got %s", name, field.Type)
			}
			autoInc[name] = true
		}
	}

	rules := make(Rules)
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name := pair.Key
		if autoInc[name] {
			rules[name] = KindAutoIncrement
			continue
		}
		k, err := schemaTypeToKind(pair.Value.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		rules[name] = k
	}
	return rules, nil
}

func schemaTypeToKind(typ string) (Kind, error) {
	switch typ {
	case "string":
		return KindString, nil
	case "integer", "number":
		return KindNumber, nil
	case "boolean":
		return KindBoolean, nil
	case "object":
		return KindObject, nil
	case "array":
		return KindArray, nil
	default:
		return "", fmt.Errorf("unsupported JSON Schema type %q", typ)
	}
}

func hasOption(opts, want string) bool {
	for o := range strings.SplitSeq(opts, ",") {
		if o == want {
			return true
		}
	}
	return false
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

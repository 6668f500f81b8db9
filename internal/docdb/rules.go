// Handles table rules: the optional per-table field schema used in strict mode.

package docdb

import (
	"maps"
	"slices"

	dberrors "github.com/maruel/docstore/internal/errors"
)

// Rules maps a field name to its expected kind.
//
// A table created with non-empty rules is strict: every value written to it
// must be an object with exactly these fields.
type Rules map[string]Kind

// Fields returns the declared field names in sorted order.
func (r Rules) Fields() []string {
	return slices.Sorted(maps.Keys(r))
}

// check verifies that every declared kind is known.
func (r Rules) check() error {
	for _, field := range r.Fields() {
		if field == "" {
			return dberrors.Validation("rules: field name is required")
		}
		if k := r[field]; !k.Valid() {
			return dberrors.Validation("rules: field %q has unknown kind %q", field, string(k)).
				WithDetails(map[string]any{"field": field, "expected": string(k)})
		}
	}
	return nil
}

// Validate checks a normalized value against the rules.
//
// The value must be an object whose field set equals the declared field set,
// and every field must match its declared kind. A field declared
// [KindAutoIncrement] only accepts the [AutoIncrement] placeholder.
func (r Rules) Validate(value any) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return dberrors.TypeMismatch("value must be an OBJECT in strict mode, got %s", describe(value))
	}
	for _, field := range slices.Sorted(maps.Keys(obj)) {
		if _, ok := r[field]; !ok {
			return dberrors.Validation("field %q is not declared in the table rules", field).
				WithDetails(map[string]any{"field": field, "actual": describe(obj[field])})
		}
	}
	for _, field := range r.Fields() {
		v, ok := obj[field]
		if !ok {
			return dberrors.Validation("field %q is missing, rules expect %s", field, r[field]).
				WithDetails(map[string]any{"field": field, "expected": string(r[field])})
		}
		if err := r.checkKind(field, v); err != nil {
			return err
		}
	}
	return nil
}

// ValidateField checks a single field edit against the rules.
//
// The field must be declared, must not be auto-incremented and the value must
// match the declared kind.
func (r Rules) ValidateField(field string, value any) error {
	want, ok := r[field]
	if !ok {
		return dberrors.Validation("field %q is not declared in the table rules", field).
			WithDetail("field", field)
	}
	if want == KindAutoIncrement {
		return dberrors.Validation("field %q is AUTO_INCREMENT and cannot be edited", field).
			WithDetails(map[string]any{"field": field, "expected": string(want)})
	}
	if isPlaceholder(value) {
		return dberrors.Validation("the %s placeholder cannot be used when editing field %q", AutoIncrement, field).
			WithDetails(map[string]any{"field": field, "expected": string(want)})
	}
	return r.checkKind(field, value)
}

func (r Rules) checkKind(field string, v any) error {
	want := r[field]
	if want == KindAutoIncrement && isPlaceholder(v) {
		return nil
	}
	if got, ok := KindOf(v); ok && got == want {
		return nil
	}
	return dberrors.Validation("field %q: %s is not %s", field, describe(v), want).
		WithDetails(map[string]any{"field": field, "expected": string(want), "actual": describe(v)})
}

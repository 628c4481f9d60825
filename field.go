package zedb

import (
	"fmt"
	"slices"
	"strings"
)

type ValueType int

const (
	TypeString ValueType = iota + 1
	TypeInt
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	default:
		return fmt.Sprintf("invalid type %d", int(t))
	}
}

type Role int

const (
	RoleNone Role = iota
	RolePrimary
	RoleComposite
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RolePrimary:
		return "primary"
	case RoleComposite:
		return "composite"
	default:
		return fmt.Sprintf("invalid role %d", int(r))
	}
}

// Field describes one attribute of an entity type. Fields are built with
// String or Int and the chainable modifiers below, then frozen by
// DefineEntity; a Field must not be shared between entity types.
type Field struct {
	name     string
	typ      ValueType
	role     Role
	indexed  bool
	sortable bool
	required bool
	auto     bool
	enum     []any

	// set by DefineEntity
	entity *EntityType
	keyed  bool // string values are joined into keys with KeySeparator
	err    error
}

func String(name string) *Field {
	return &Field{name: name, typ: TypeString}
}

func Int(name string) *Field {
	return &Field{name: name, typ: TypeInt}
}

// Primary marks the field as the sole identifier of the entity. Primary
// fields are required and queryable.
func (f *Field) Primary() *Field {
	if f.role == RoleComposite {
		f.err = fmt.Errorf("field %s can be either primary or composite, but not both", f.name)
	}
	f.role = RolePrimary
	f.required = true
	return f
}

// Composite marks the field as one part of a multi-field identifier.
// Composite fields are required and indexed.
func (f *Field) Composite() *Field {
	if f.role == RolePrimary {
		f.err = fmt.Errorf("field %s can be either primary or composite, but not both", f.name)
	}
	f.role = RoleComposite
	f.required = true
	f.indexed = true
	return f
}

func (f *Field) Indexed() *Field {
	f.indexed = true
	return f
}

func (f *Field) Sortable() *Field {
	f.sortable = true
	return f
}

func (f *Field) Required() *Field {
	f.required = true
	return f
}

// Auto makes the field system-assigned from a per-type counter on first save.
// Only integer fields can be auto-generated.
func (f *Field) Auto() *Field {
	if f.typ != TypeInt {
		f.err = fmt.Errorf("field %s: only int fields can be auto-generated", f.name)
	}
	f.auto = true
	return f
}

// Enum restricts the field to a closed set of values.
func (f *Field) Enum(values ...any) *Field {
	for _, v := range values {
		nv, ok := normalizeValue(f.typ, v)
		if !ok {
			f.err = fmt.Errorf("field %s: enum value %v (%T) is not of type %v", f.name, v, v, f.typ)
			continue
		}
		f.enum = append(f.enum, nv)
	}
	return f
}

func (f *Field) Name() string     { return f.name }
func (f *Field) Type() ValueType  { return f.typ }
func (f *Field) Role() Role       { return f.role }
func (f *Field) IsIndexed() bool  { return f.indexed }
func (f *Field) IsSortable() bool { return f.sortable }
func (f *Field) IsRequired() bool { return f.required }
func (f *Field) IsAuto() bool     { return f.auto }

func (f *Field) IsIdentifier() bool {
	return f.role != RoleNone
}

// IsQueryable reports whether the field has an index and can be used in
// filters and ordering.
func (f *Field) IsQueryable() bool {
	return f.indexed || f.sortable || f.role != RoleNone
}

func (f *Field) EnumChoices() []any {
	return slices.Clone(f.enum)
}

func (f *Field) String() string {
	if f.entity != nil {
		return f.entity.name + "." + f.name
	}
	return f.name
}

// normalizeValue maps accepted Go types onto the canonical representation:
// string for string fields, int64 for int fields.
func normalizeValue(typ ValueType, v any) (any, bool) {
	switch typ {
	case TypeString:
		s, ok := v.(string)
		return s, ok
	case TypeInt:
		switch v := v.(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		}
	}
	return nil, false
}

func (f *Field) check(et *EntityType, v any) (any, error) {
	nv, ok := normalizeValue(f.typ, v)
	if !ok {
		return nil, badDataErrf(et, f.name, TypeMismatch, v, "has value %v (%T), should be of type %v", v, v, f.typ)
	}
	if f.enum != nil && !slices.Contains(f.enum, nv) {
		return nil, badDataErrf(et, f.name, InvalidEnumValue, v, "has value %v, should be one of %v", v, f.enum)
	}
	if s, ok := nv.(string); ok && f.IsQueryable() && containsSeparator(s) {
		return nil, badDataErrf(et, f.name, ReservedSeparator, v, "value %q must not contain %q", s, ValueIDSeparator)
	}
	if s, ok := nv.(string); ok && f.keyed && strings.Contains(s, KeySeparator) {
		return nil, badDataErrf(et, f.name, ReservedSeparator, v, "value %q must not contain %q", s, KeySeparator)
	}
	return nv, nil
}

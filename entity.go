package zedb

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Values maps field names to values: string for string fields, int or int64
// for int fields.
type Values map[string]any

// Entity is one in-memory instance of an entity type. Fields that were never
// set are absent from the value map rather than holding a zero value.
type Entity struct {
	typ    *EntityType
	values Values
}

// New validates vals against the entity type. Auto-generated fields cannot be
// supplied; they are assigned by the first Save.
func (et *EntityType) New(vals Values) (*Entity, error) {
	return et.construct(vals, false)
}

// MustNew is like New, but panics on invalid data.
func (et *EntityType) MustNew(vals Values) *Entity {
	e, err := et.New(vals)
	if err != nil {
		panic(err)
	}
	return e
}

// construct implements New; loading allows auto fields, which is how stored
// records are reconstructed.
func (et *EntityType) construct(vals Values, loading bool) (*Entity, error) {
	e := &Entity{
		typ:    et,
		values: make(Values, len(vals)),
	}
	for _, f := range et.fields {
		v, found := vals[f.name]
		if !found {
			if f.required && !f.auto {
				return nil, badDataErrf(et, f.name, MissingRequiredField, nil, "field %s is required", f.name)
			}
			continue
		}
		nv, err := f.check(et, v)
		if err != nil {
			return nil, err
		}
		if f.auto && !loading {
			return nil, badDataErrf(et, f.name, AutoFieldWriteForbidden, v, "not allowed to set auto-generated field")
		}
		e.values[f.name] = nv
	}

	var unknown []string
	for k := range vals {
		if et.fieldsByName[k] == nil {
			unknown = append(unknown, k)
		}
	}
	if unknown != nil {
		slices.Sort(unknown)
		return nil, &UnknownFieldError{et.name, unknown}
	}
	return e, nil
}

func (e *Entity) Type() *EntityType {
	return e.typ
}

// Set assigns a field value, applying the same checks as construction.
// Auto-generated fields can never be assigned.
func (e *Entity) Set(name string, v any) error {
	f := e.typ.fieldsByName[name]
	if f == nil {
		return &UnknownFieldError{e.typ.name, []string{name}}
	}
	if f.auto {
		return badDataErrf(e.typ, name, AutoFieldWriteForbidden, v, "not allowed to set auto-generated field")
	}
	nv, err := f.check(e.typ, v)
	if err != nil {
		return err
	}
	e.values[name] = nv
	return nil
}

// MustSet is like Set, but panics on error.
func (e *Entity) MustSet(name string, v any) *Entity {
	if err := e.Set(name, v); err != nil {
		panic(err)
	}
	return e
}

// setGenerated bypasses the auto-field guard; used by Save only.
func (e *Entity) setGenerated(name string, v any) {
	e.values[name] = v
}

func (e *Entity) Get(name string) (any, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Has reports whether the field holds a real value.
func (e *Entity) Has(name string) bool {
	_, ok := e.values[name]
	return ok
}

// Str returns a string field value, or "" when unset.
func (e *Entity) Str(name string) string {
	s, _ := e.values[name].(string)
	return s
}

// Int returns an int field value, or 0 when unset.
func (e *Entity) Int(name string) int64 {
	n, _ := e.values[name].(int64)
	return n
}

// AsMap returns a shallow snapshot of the fields that are currently set.
// Unset fields are absent, not nil.
func (e *Entity) AsMap() Values {
	return maps.Clone(e.values)
}

// Identifier joins the string forms of the identifier fields, in field name
// order, with KeySeparator.
func (e *Entity) Identifier() string {
	if len(e.typ.identifier) == 1 {
		return encodeIdentifierPart(e.values[e.typ.identifier[0].name])
	}
	parts := make([]string, len(e.typ.identifier))
	for i, f := range e.typ.identifier {
		parts[i] = encodeIdentifierPart(e.values[f.name])
	}
	return strings.Join(parts, KeySeparator)
}

func encodeIdentifierPart(v any) string {
	if v == nil {
		return ""
	}
	return encodeValue(v)
}

// StoreKey returns the key of the primary record of this entity.
func (e *Entity) StoreKey() string {
	return StoreKey(e.typ, e.Identifier())
}

func (e *Entity) missingIdentifierField() *Field {
	for _, f := range e.typ.identifier {
		if !e.Has(f.name) {
			return f
		}
	}
	return nil
}

// Equal reports whether both entities have the same type and field values.
func (e *Entity) Equal(o *Entity) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.typ == o.typ && maps.Equal(e.values, o.values)
}

func (e *Entity) String() string {
	return fmt.Sprintf("<%s>", e.StoreKey())
}

// Record returns the flat field map exactly as Save writes it to the store.
func (e *Entity) Record() map[string]string {
	return e.encodeRecord()
}

func (e *Entity) encodeRecord() map[string]string {
	rec := make(map[string]string, len(e.values))
	for k, v := range e.values {
		rec[k] = encodeValue(v)
	}
	return rec
}

// decodeRecord reconstructs an entity from a stored field map. Unknown fields
// in the record fail like unknown constructor arguments.
func (et *EntityType) decodeRecord(key string, rec map[string]string) (*Entity, error) {
	vals := make(Values, len(rec))
	for k, s := range rec {
		f := et.fieldsByName[k]
		if f == nil || f.typ == TypeString {
			vals[k] = s
			continue
		}
		n, err := parseInt(s)
		if err != nil {
			return nil, entityErrf(et, key, badDataErrf(et, k, TypeMismatch, s, "stored value %q is not an integer", s), "decoding record")
		}
		vals[k] = n
	}
	e, err := et.construct(vals, true)
	if err != nil {
		return nil, entityErrf(et, key, err, "decoding record")
	}
	return e, nil
}

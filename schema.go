package zedb

import (
	"fmt"
	"slices"
	"strings"
)

const (
	CreatedAtField = "created_at"
	UpdatedAtField = "updated_at"
)

// EntityType is the immutable, once-computed schema of one kind of entity.
type EntityType struct {
	name           string
	fields         []*Field // sorted by name
	fieldsByName   map[string]*Field
	identifier     []*Field
	indexed        []*Field
	sortable       []*Field
	auto           []*Field
	queryable      []*Field
	composites     []*CompositeIndex
	timestamped    bool
	queryableNames map[string]bool
}

// CompositeIndex is a multi-field index whose members embed a sort key built
// from all tuple values, so that range scans yield entities in tuple order.
type CompositeIndex struct {
	fields []string
}

func (ci *CompositeIndex) Fields() []string {
	return slices.Clone(ci.fields)
}

func (ci *CompositeIndex) String() string {
	return strings.Join(ci.fields, KeySeparator)
}

type entityOpt int

const (
	optTimestamps entityOpt = iota + 1
)

// Timestamps adds created_at and updated_at string fields maintained by Save.
func Timestamps() any {
	return optTimestamps
}

// WithCompositeIndex declares a composite index over two or more fields.
func WithCompositeIndex(fields ...string) any {
	return &CompositeIndex{fields: slices.Clone(fields)}
}

// DefineEntity validates field descriptors and derives the entity type.
// This is meant to run once per type at startup.
func DefineEntity(name string, fields []*Field, opts ...any) (*EntityType, error) {
	if name == "" || strings.Contains(name, KeySeparator) {
		return nil, modelErrf(name, "invalid entity type name %q", name)
	}
	switch name {
	case indexKeyPrefix, customKeyPrefix, autoKeyPrefix:
		return nil, modelErrf(name, "entity type name %q is reserved", name)
	}
	et := &EntityType{
		name:           name,
		fieldsByName:   make(map[string]*Field),
		queryableNames: make(map[string]bool),
	}

	for _, opt := range opts {
		switch opt := opt.(type) {
		case entityOpt:
			if opt == optTimestamps {
				et.timestamped = true
				fields = append(slices.Clone(fields), String(CreatedAtField).Indexed(), String(UpdatedAtField).Indexed())
			}
		case *CompositeIndex:
			et.composites = append(et.composites, opt)
		default:
			return nil, modelErrf(name, "invalid option %T %v", opt, opt)
		}
	}

	var numPrimary, numComposite int
	for _, f := range fields {
		if f.err != nil {
			return nil, modelErrf(name, "%v", f.err)
		}
		if f.entity != nil {
			return nil, modelErrf(name, "field %s already belongs to %s", f.name, f.entity.name)
		}
		if f.name == "" || strings.Contains(f.name, KeySeparator) {
			return nil, modelErrf(name, "invalid field name %q", f.name)
		}
		if et.fieldsByName[f.name] != nil {
			return nil, modelErrf(name, "duplicate field %s", f.name)
		}
		et.fieldsByName[f.name] = f
		et.fields = append(et.fields, f)
		switch f.role {
		case RolePrimary:
			numPrimary++
		case RoleComposite:
			numComposite++
		}
	}

	switch {
	case numPrimary == 0 && numComposite == 0:
		return nil, modelErrf(name, "no primary key or composite key")
	case numPrimary == 0 && numComposite == 1:
		return nil, modelErrf(name, "composite key is really a primary key")
	case numPrimary > 1:
		return nil, modelErrf(name, "more than one primary key")
	case numPrimary == 1 && numComposite != 0:
		return nil, modelErrf(name, "cannot have both primary and composite keys")
	}

	seen := make(map[string]bool)
	for _, ci := range et.composites {
		if seen[ci.String()] {
			return nil, modelErrf(name, "duplicate composite index %v", ci)
		}
		seen[ci.String()] = true
		if len(ci.fields) < 2 {
			return nil, modelErrf(name, "composite index %v needs at least two fields", ci)
		}
		for _, fn := range ci.fields {
			if et.fieldsByName[fn] == nil {
				return nil, modelErrf(name, "composite index %v refers to unknown field %s", ci, fn)
			}
		}
	}

	// Composite identifier parts and the leading field of a composite index
	// are joined with KeySeparator, so their values cannot contain it.
	// Timestamps always do; composite indexes led by them are scanned like
	// ordinary indexes.
	for _, f := range et.fields {
		f.keyed = f.role == RoleComposite
	}
	for _, ci := range et.composites {
		if f := et.fieldsByName[ci.fields[0]]; !isTimestampField(et, f.name) {
			f.keyed = true
		}
	}

	slices.SortFunc(et.fields, func(a, b *Field) int {
		return strings.Compare(a.name, b.name)
	})
	for _, f := range et.fields {
		f.entity = et
		if f.IsIdentifier() {
			et.identifier = append(et.identifier, f)
		}
		if f.indexed {
			et.indexed = append(et.indexed, f)
		}
		if f.sortable {
			et.sortable = append(et.sortable, f)
		}
		if f.auto {
			et.auto = append(et.auto, f)
		}
		if f.IsQueryable() {
			et.queryable = append(et.queryable, f)
			et.queryableNames[f.name] = true
		}
	}

	return et, nil
}

// MustDefineEntity is like DefineEntity, but panics on an invalid definition.
// Handy for package-level entity types.
func MustDefineEntity(name string, fields []*Field, opts ...any) *EntityType {
	et, err := DefineEntity(name, fields, opts...)
	if err != nil {
		panic(err)
	}
	return et
}

func (et *EntityType) Name() string {
	return et.name
}

func (et *EntityType) String() string {
	return et.name
}

func (et *EntityType) Fields() []*Field {
	return slices.Clone(et.fields)
}

func (et *EntityType) Field(name string) *Field {
	return et.fieldsByName[name]
}

func (et *EntityType) IdentifierFields() []*Field { return slices.Clone(et.identifier) }
func (et *EntityType) IndexedFields() []*Field    { return slices.Clone(et.indexed) }
func (et *EntityType) SortableFields() []*Field   { return slices.Clone(et.sortable) }
func (et *EntityType) AutoFields() []*Field       { return slices.Clone(et.auto) }
func (et *EntityType) QueryableFields() []*Field  { return slices.Clone(et.queryable) }
func (et *EntityType) IsTimestamped() bool        { return et.timestamped }

func (et *EntityType) CompositeIndexes() []*CompositeIndex {
	return slices.Clone(et.composites)
}

func (et *EntityType) IsQueryable(field string) bool {
	return et.queryableNames[field]
}

func (et *EntityType) queryableList() string {
	names := make([]string, len(et.queryable))
	for i, f := range et.queryable {
		names[i] = f.name
	}
	return fmt.Sprint(names)
}

func isTimestampField(et *EntityType, name string) bool {
	return et.timestamped && (name == CreatedAtField || name == UpdatedAtField)
}

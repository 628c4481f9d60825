package zedb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Registry is a set of entity types addressable by name.
type Registry struct {
	types  []*EntityType
	byName map[string]*EntityType
}

func NewRegistry(types ...*EntityType) (*Registry, error) {
	r := &Registry{byName: make(map[string]*EntityType)}
	for _, et := range types {
		if err := r.Add(et); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Add(et *EntityType) error {
	if r.byName[et.name] != nil {
		return modelErrf(et.name, "entity type defined twice")
	}
	r.byName[et.name] = et
	r.types = append(r.types, et)
	return nil
}

// Type returns the named entity type, or nil.
func (r *Registry) Type(name string) *EntityType {
	return r.byName[name]
}

func (r *Registry) Types() []*EntityType {
	return slices.Clone(r.types)
}

type yamlSchema struct {
	Types []yamlType `yaml:"types"`
}

type yamlType struct {
	Name             string      `yaml:"name"`
	Timestamps       bool        `yaml:"timestamps"`
	Fields           []yamlField `yaml:"fields"`
	CompositeIndexes [][]string  `yaml:"composite_indexes"`
}

type yamlField struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Primary   bool   `yaml:"primary"`
	Composite bool   `yaml:"composite"`
	Indexed   bool   `yaml:"indexed"`
	Sortable  bool   `yaml:"sortable"`
	Required  bool   `yaml:"required"`
	Auto      bool   `yaml:"auto"`
	Enum      []any  `yaml:"enum"`
}

// LoadSchemasYAML reads entity type declarations from a YAML file:
//
//	types:
//	  - name: User
//	    timestamps: true
//	    fields:
//	      - {name: id, type: int, primary: true, auto: true}
//	      - {name: email, type: string, indexed: true, required: true}
//	      - {name: role, type: string, enum: [admin, member]}
//	    composite_indexes:
//	      - [role, email]
func LoadSchemasYAML(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := ParseSchemasYAML(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseSchemasYAML is like LoadSchemasYAML, but reads from r. Unknown keys
// are rejected.
func ParseSchemasYAML(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc yamlSchema
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("zedb: parsing schema: %w", err)
	}

	reg := &Registry{byName: make(map[string]*EntityType)}
	for _, yt := range doc.Types {
		et, err := yt.define()
		if err != nil {
			return nil, err
		}
		if err := reg.Add(et); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (yt *yamlType) define() (*EntityType, error) {
	fields := make([]*Field, 0, len(yt.Fields))
	for _, yf := range yt.Fields {
		f, err := yf.field()
		if err != nil {
			return nil, modelErrf(yt.Name, "%v", err)
		}
		fields = append(fields, f)
	}
	var opts []any
	if yt.Timestamps {
		opts = append(opts, Timestamps())
	}
	for _, ci := range yt.CompositeIndexes {
		opts = append(opts, WithCompositeIndex(ci...))
	}
	return DefineEntity(yt.Name, fields, opts...)
}

func (yf *yamlField) field() (*Field, error) {
	var f *Field
	switch yf.Type {
	case "string", "str", "":
		f = String(yf.Name)
	case "int", "integer":
		f = Int(yf.Name)
	default:
		return nil, fmt.Errorf("field %s: unknown type %q", yf.Name, yf.Type)
	}
	if yf.Primary {
		f.Primary()
	}
	if yf.Composite {
		f.Composite()
	}
	if yf.Indexed {
		f.Indexed()
	}
	if yf.Sortable {
		f.Sortable()
	}
	if yf.Required {
		f.Required()
	}
	if yf.Auto {
		f.Auto()
	}
	if yf.Enum != nil {
		f.Enum(yf.Enum...)
	}
	return f, nil
}

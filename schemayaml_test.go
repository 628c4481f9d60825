package zedb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSchemaYAML = `
types:
  - name: Account
    timestamps: true
    fields:
      - {name: id, type: int, primary: true, auto: true}
      - {name: email, type: string, indexed: true, required: true}
      - {name: plan, type: string, sortable: true, enum: [free, pro]}
      - {name: note}
    composite_indexes:
      - [plan, email]
  - name: Seat
    fields:
      - {name: row, type: int, composite: true}
      - {name: col, type: int, composite: true}
`

func TestParseSchemasYAML(t *testing.T) {
	reg := must(ParseSchemasYAML(strings.NewReader(testSchemaYAML)))
	deepEqual(t, len(reg.Types()), 2)
	deepEqual(t, reg.Types()[0].Name(), "Account")
	isnil(t, reg.Type("Nope"))

	acc := reg.Type("Account")
	isnonnil(t, acc)
	deepEqual(t, acc.IsTimestamped(), true)
	deepEqual(t, fieldNames(acc.AutoFields()), []string{"id"})
	deepEqual(t, acc.Field("id").Type(), TypeInt)
	deepEqual(t, acc.Field("note").Type(), TypeString)
	deepEqual(t, acc.Field("email").IsRequired(), true)
	deepEqual(t, acc.Field("plan").EnumChoices(), []any{"free", "pro"})
	deepEqual(t, acc.CompositeIndexes()[0].String(), "plan:email")

	seat := reg.Type("Seat")
	deepEqual(t, fieldNames(seat.IdentifierFields()), []string{"col", "row"})

	// the parsed types are fully usable
	ctx := context.Background()
	db := setup(t, Options{})
	a := acc.MustNew(Values{"email": "x@example.com", "plan": "pro"})
	noerr(t, db.Save(ctx, a))
	deepEqual(t, a.StoreKey(), "Account:1")
	got := must(db.Query(acc).Filter("plan", "pro").OrderBy("email").IDs(ctx))
	deepEqual(t, got, []string{"1"})
}

func TestParseSchemasYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "types:\n  - name: A\n    colour: red\n", "field colour not found"},
		{"unknown type", "types:\n  - name: A\n    fields:\n      - {name: id, type: float, primary: true}\n", `unknown type "float"`},
		{"no identifier", "types:\n  - name: A\n    fields:\n      - {name: x}\n", "no primary key"},
		{"defined twice", "types:\n  - name: A\n    fields: [{name: id, primary: true}]\n  - name: A\n    fields: [{name: id, primary: true}]\n", "defined twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchemasYAML(strings.NewReader(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("** got %v, wanted error containing %q", err, tt.want)
			}
		})
	}

	_, err := ParseSchemasYAML(strings.NewReader("types:\n  - name: A\n    fields:\n      - {name: x}\n"))
	iserr(t, err, ErrInvalidModelDefinition)
}

func TestParseSchemasYAML_Empty(t *testing.T) {
	reg := must(ParseSchemasYAML(strings.NewReader("")))
	isempty(t, reg.Types())
}

func TestLoadSchemasYAML(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "schema.yaml")
	noerr(t, os.WriteFile(fn, []byte(testSchemaYAML), 0o644))
	reg := must(LoadSchemasYAML(fn))
	deepEqual(t, len(reg.Types()), 2)

	_, err := LoadSchemasYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	if !os.IsNotExist(err) {
		t.Errorf("** got %v, wanted not-exist error", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := must(NewRegistry(userType, ticketType))
	deepEqual(t, reg.Type("User"), userType)
	iserr(t, reg.Add(userType), ErrInvalidModelDefinition)
	_, err := NewRegistry(userType, userType)
	iserr(t, err, ErrInvalidModelDefinition)
}

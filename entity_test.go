package zedb

import (
	"errors"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		vals   Values
		kind   BadDataKind
		target error
	}{
		{"missing required", Values{"name": "x"}, MissingRequiredField, ErrMissingRequiredField},
		{"string for int", Values{"id": "u1", "age": "30"}, TypeMismatch, ErrTypeMismatch},
		{"int for string", Values{"id": 1}, TypeMismatch, ErrTypeMismatch},
		{"float for int", Values{"id": "u1", "age": 1.5}, TypeMismatch, ErrTypeMismatch},
		{"nil value", Values{"id": "u1", "name": nil}, TypeMismatch, ErrTypeMismatch},
		{"enum", Values{"id": "u1", "role": "owner"}, InvalidEnumValue, ErrInvalidEnumValue},
		{"separator in indexed", Values{"id": "u1", "name": "a\x00b"}, ReservedSeparator, ErrReservedSeparator},
		{"null marker in identifier", Values{"id": "\x01"}, ReservedSeparator, ErrReservedSeparator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := userType.New(tt.vals)
			var bde *BadDataError
			if !errors.As(err, &bde) {
				t.Fatalf("** got %v (%T), wanted *BadDataError", err, err)
			}
			deepEqual(t, bde.Kind, tt.kind)
			deepEqual(t, bde.Type, "User")
			iserr(t, err, ErrBadData)
			iserr(t, err, tt.target)
		})
	}
}

func TestNew_UnknownFields(t *testing.T) {
	_, err := userType.New(Values{"id": "u1", "zeta": 1, "alpha": 2})
	var ufe *UnknownFieldError
	if !errors.As(err, &ufe) {
		t.Fatalf("** got %v, wanted *UnknownFieldError", err)
	}
	deepEqual(t, ufe.Fields, []string{"alpha", "zeta"})
	iserr(t, err, ErrUnknownField)
	deepEqual(t, err.Error(), "User: unknown field(s) alpha, zeta")

	// field checks run before the unknown-field check
	_, err = userType.New(Values{"zeta": 1})
	iserr(t, err, ErrMissingRequiredField)
}

func TestNew_AcceptsIntAndInt64(t *testing.T) {
	a := userType.MustNew(Values{"id": "u1", "age": 5})
	b := userType.MustNew(Values{"id": "u1", "age": int64(5)})
	deepEqual(t, a.AsMap(), b.AsMap())
	deepEqual(t, a.Int("age"), int64(5))
	if !a.Equal(b) {
		t.Errorf("** %v and %v should be equal", a.AsMap(), b.AsMap())
	}

	// non-queryable strings may contain anything
	c := userType.MustNew(Values{"id": "u1", "bio": "a\x00b"})
	deepEqual(t, c.Str("bio"), "a\x00b")
}

func TestEntity_SetAndAccessors(t *testing.T) {
	e := userType.MustNew(Values{"id": "u1"})
	deepEqual(t, e.Has("name"), false)
	deepEqual(t, e.Str("name"), "")
	deepEqual(t, e.Int("age"), int64(0))

	v, ok := e.Get("name")
	deepEqual(t, v, nil)
	deepEqual(t, ok, false)

	noerr(t, e.Set("name", "Alice"))
	deepEqual(t, e.Str("name"), "Alice")
	iserr(t, e.Set("age", "old"), ErrTypeMismatch)
	iserr(t, e.Set("role", "owner"), ErrInvalidEnumValue)
	iserr(t, e.Set("nope", 1), ErrUnknownField)
	deepEqual(t, e.Has("age"), false)

	// AsMap is a snapshot with unset fields absent
	m := e.AsMap()
	deepEqual(t, m, Values{"id": "u1", "name": "Alice"})
	m["name"] = "Mallory"
	deepEqual(t, e.Str("name"), "Alice")

	deepEqual(t, e.Type(), userType)
	deepEqual(t, e.String(), "<User:u1>")
}

func TestEntity_MustVariantsPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("** MustNew did not panic")
		}
	}()
	userType.MustNew(Values{})
}

func TestEntity_Identifier(t *testing.T) {
	d := dinerType.MustNew(Values{"seat_num": 12, "table_num": 3})
	deepEqual(t, d.Identifier(), "12:3")
	deepEqual(t, d.StoreKey(), "Diner:12:3")
	deepEqual(t, StoreKey(dinerType, "12:3"), "Diner:12:3")

	id, ok := IdentifierFromKey(dinerType, "Diner:12:3")
	deepEqual(t, id, "12:3")
	deepEqual(t, ok, true)
	_, ok = IdentifierFromKey(dinerType, "Dinero:1")
	deepEqual(t, ok, false)

	tk := ticketType.MustNew(Values{"title": "x"})
	deepEqual(t, tk.Identifier(), "")
	deepEqual(t, tk.missingIdentifierField().Name(), "id")
}

func TestDecodeRecord(t *testing.T) {
	e, err := ticketType.decodeRecord("Ticket:5", map[string]string{"id": "5", "title": "x", "status": "open"})
	noerr(t, err)
	deepEqual(t, e.AsMap(), Values{"id": int64(5), "title": "x", "status": "open"})

	_, err = ticketType.decodeRecord("Ticket:5", map[string]string{"id": "five", "title": "x"})
	var ee *EntityError
	if !errors.As(err, &ee) {
		t.Fatalf("** got %v, wanted *EntityError", err)
	}
	deepEqual(t, ee.Key, "Ticket:5")
	iserr(t, err, ErrTypeMismatch)

	_, err = ticketType.decodeRecord("Ticket:5", map[string]string{"id": "5", "title": "x", "legacy": "y"})
	iserr(t, err, ErrUnknownField)

	_, err = ticketType.decodeRecord("Ticket:5", map[string]string{"id": "5", "status": "lost", "title": "x"})
	iserr(t, err, ErrInvalidEnumValue)
}

func TestNew_CompositeIdentifierRejectsKeySeparator(t *testing.T) {
	pair := MustDefineEntity("Pair", []*Field{
		String("left").Composite(),
		String("right").Composite(),
		String("note").Indexed(),
	})

	_, err := pair.New(Values{"left": "a:b", "right": "c"})
	iserr(t, err, ErrReservedSeparator)
	_, err = pair.New(Values{"left": "a", "right": "b:c"})
	iserr(t, err, ErrReservedSeparator)

	p := pair.MustNew(Values{"left": "a-b", "right": "c", "note": "x:y"})
	deepEqual(t, p.Identifier(), "a-b:c")
	iserr(t, p.Set("right", "d:e"), ErrReservedSeparator)
	deepEqual(t, p.Identifier(), "a-b:c")
}

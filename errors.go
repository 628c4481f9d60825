package zedb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidModelDefinition = errors.New("invalid model definition")
	ErrBadData                = errors.New("bad data")
	ErrUnknownField           = errors.New("unknown field")
	ErrInvalidQuery           = errors.New("invalid query")

	ErrTypeMismatch            = errors.New("type mismatch")
	ErrInvalidEnumValue        = errors.New("invalid enum value")
	ErrMissingRequiredField    = errors.New("missing required field")
	ErrAutoFieldWriteForbidden = errors.New("auto field write forbidden")
	ErrReservedSeparator       = errors.New("value contains reserved separator")
)

// BadDataKind classifies a field-level validation failure.
type BadDataKind int

const (
	TypeMismatch BadDataKind = iota + 1
	InvalidEnumValue
	MissingRequiredField
	AutoFieldWriteForbidden
	ReservedSeparator
)

func (k BadDataKind) sentinel() error {
	switch k {
	case TypeMismatch:
		return ErrTypeMismatch
	case InvalidEnumValue:
		return ErrInvalidEnumValue
	case MissingRequiredField:
		return ErrMissingRequiredField
	case AutoFieldWriteForbidden:
		return ErrAutoFieldWriteForbidden
	case ReservedSeparator:
		return ErrReservedSeparator
	default:
		return nil
	}
}

func (k BadDataKind) String() string {
	if e := k.sentinel(); e != nil {
		return e.Error()
	}
	return fmt.Sprintf("invalid kind %d", int(k))
}

// BadDataError reports a value that does not satisfy its field descriptor.
// errors.Is matches both ErrBadData and the kind-specific sentinel.
type BadDataError struct {
	Type  string
	Field string
	Kind  BadDataKind
	Value any
	Msg   string
}

func badDataErrf(et *EntityType, field string, kind BadDataKind, value any, format string, args ...any) error {
	return &BadDataError{et.name, field, kind, value, fmt.Sprintf(format, args...)}
}

func (e *BadDataError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Type)
	buf.WriteByte('.')
	buf.WriteString(e.Field)
	buf.WriteString(": ")
	buf.WriteString(e.Kind.String())
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	return buf.String()
}

func (e *BadDataError) Is(target error) bool {
	return target == ErrBadData || target == e.Kind.sentinel()
}

type UnknownFieldError struct {
	Type   string
	Fields []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s: unknown field(s) %s", e.Type, strings.Join(e.Fields, ", "))
}

func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrUnknownField
}

type QueryError struct {
	Type string
	Msg  string
}

func queryErrf(et *EntityType, format string, args ...any) error {
	var name string
	if et != nil {
		name = et.name
	}
	return &QueryError{name, fmt.Sprintf(format, args...)}
}

func (e *QueryError) Error() string {
	if e.Type == "" {
		return "invalid query: " + e.Msg
	}
	return e.Type + ": invalid query: " + e.Msg
}

func (e *QueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

type ModelError struct {
	Type string
	Msg  string
}

func modelErrf(name string, format string, args ...any) error {
	return &ModelError{name, fmt.Sprintf(format, args...)}
}

func (e *ModelError) Error() string {
	return e.Type + ": " + e.Msg
}

func (e *ModelError) Is(target error) bool {
	return target == ErrInvalidModelDefinition
}

// EntityError annotates a failure while decoding a stored record. Store
// failures themselves are never wrapped.
type EntityError struct {
	Type string
	Key  string
	Msg  string
	Err  error
}

func entityErrf(et *EntityType, key string, err error, format string, args ...any) error {
	return &EntityError{et.name, key, fmt.Sprintf(format, args...), err}
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Type)
	if e.Key != "" {
		buf.WriteByte('/')
		buf.WriteString(e.Key)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

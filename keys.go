package zedb

import (
	"strconv"
	"strings"
)

const (
	// ValueIDSeparator splits an encoded value from the trailing identifier
	// inside an index member.
	ValueIDSeparator = "\x00"
	// KeySeparator splits logical key segments (markers, entity type, field
	// names) and the parts of a composite identifier.
	KeySeparator = ":"
	// SortKeySeparator joins composite index values into a sort key.
	SortKeySeparator = "-"

	indexKeyPrefix  = "index"
	customKeyPrefix = "custom"
	autoKeyPrefix   = "auto"

	// nullValue encodes a field that was never set. It sorts before any
	// printable value.
	nullValue = "\x01"

	lexUpperSuffix = "\xff"
)

// StoreKey returns the primary record key for the given identifier.
func StoreKey(et *EntityType, identifier string) string {
	return et.name + KeySeparator + identifier
}

// IdentifierFromKey strips the entity type prefix from a primary record key.
func IdentifierFromKey(et *EntityType, key string) (string, bool) {
	return strings.CutPrefix(key, et.name+KeySeparator)
}

func indexKey(et *EntityType, field string) string {
	return indexKeyPrefix + KeySeparator + et.name + KeySeparator + field
}

func customIndexKey(et *EntityType, ci *CompositeIndex) string {
	return customKeyPrefix + KeySeparator + et.name + KeySeparator + strings.Join(ci.fields, KeySeparator)
}

func autoKey(et *EntityType, field string) string {
	return autoKeyPrefix + KeySeparator + et.name + KeySeparator + field
}

func recordKeyPrefix(et *EntityType) string {
	return et.name + KeySeparator
}

// encodeValue returns the string form used both in primary records and in
// index members.
func encodeValue(v any) string {
	switch v := v.(type) {
	case nil:
		return nullValue
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		panic("unreachable: unsupported value type")
	}
}

func indexMember(encoded, identifier string) string {
	return encoded + ValueIDSeparator + identifier
}

func customIndexMember(field, encoded, sortKey, identifier string) string {
	return field + KeySeparator + encoded + KeySeparator + sortKey + ValueIDSeparator + identifier
}

// identifierOfMember extracts the trailing identifier from an index member.
func identifierOfMember(member string) string {
	_, id, _ := strings.Cut(member, ValueIDSeparator)
	return id
}

func valueRange(encoded string) LexRange {
	lower := encoded + ValueIDSeparator
	return LexII([]byte(lower), []byte(lower+lexUpperSuffix))
}

func prefixRange(prefix string) LexRange {
	return LexII([]byte(prefix), []byte(prefix+lexUpperSuffix))
}

/*
Package zedb stores schema-described entities in a key-value store that
only offers flat keys, hashes, counters and sorted sets (Redis, or an
emulation of it), and maintains secondary indexes so that entities can be
queried by field values.

We implement:

1. Entity types, declared once at startup from field descriptors (or YAML).

2. Saving and loading entities as hash records.

3. Per-field and composite indexes, kept up to date on every save.

4. Conjunctive equality queries with ordering and pagination.

5. Auto-generated integer fields backed by atomic counters.

# Technical Details

**Keys.**
The layout is compatible with existing data and must not change:

	{Type}:{identifier}                   hash: field -> encoded value
	index:{Type}:{field}                  sorted set: "{value}\x00{identifier}"
	custom:{Type}:{f1}:{f2}...            sorted set: "{field}:{value}:{v1}-{v2}...\x00{identifier}"
	auto:{Type}:{field}                   integer counter

All index members have score 0, so the store orders them lexically.

**Identifiers.**
The identifier is the value of the primary field, or the values of the
composite fields in field name order joined with ":".

**Values.**
Strings are stored as is, integers in decimal. A field that was never set
is indexed as "\x01", which lets queries filter on nil. Queryable string
fields cannot hold "\x00" or exactly "\x01".
String values of composite identifier fields, and of the first field of a
composite index, cannot contain ":" either, so that identifiers and
composite index prefixes stay unambiguous.

**Lookups.**
An equality filter is a lexical range scan of ["{value}\x00",
"{value}\x00\xff"]. Integer order is lexical, not numeric.

**Consistency.**
A save is a sequence of independent store operations, so readers may
briefly see the record and its index entries disagree, and concurrent saves
of one identifier can leave a stale index entry. Options.AtomicSaves wraps
the sequence in a store transaction where the store supports it.
*/
package zedb

package zedb

import "fmt"

type (
	// Change describes one successful Save or Delete.
	Change struct {
		typ    *EntityType
		op     Op
		id     string
		entity *Entity
		stale  *Entity
	}

	Op int
)

const (
	OpNone   Op = 0
	OpSave   Op = 1
	OpDelete Op = 2
)

func (chg *Change) Type() *EntityType {
	return chg.typ
}
func (chg *Change) Op() Op {
	return chg.op
}
func (chg *Change) Identifier() string {
	return chg.id
}
func (chg *Change) StoreKey() string {
	return StoreKey(chg.typ, chg.id)
}

// Entity returns the saved entity; nil for deletions.
func (chg *Change) Entity() *Entity {
	return chg.entity
}
func (chg *Change) HasStale() bool {
	return chg.stale != nil
}

// Stale returns the version that was stored before the change, if any.
func (chg *Change) Stale() *Entity {
	return chg.stale
}

func (chg *Change) String() string {
	return fmt.Sprintf("%v %s", chg.op, chg.StoreKey())
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpSave:
		return "save"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

package zedb

import (
	"bytes"
	"sort"
)

// LexRange defines a range of sorted-set members compared as raw byte
// strings. A nil bound is open. The constructors use mnemonics: O means open,
// I means inclusive, E means exclusive; the first letter is for the lower
// bound, the second for the upper bound.
type LexRange struct {
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
}

func LexOO() LexRange            { return LexRange{} }
func LexIO(l []byte) LexRange    { return LexRange{Lower: l, LowerInc: true} }
func LexEO(l []byte) LexRange    { return LexRange{Lower: l, LowerInc: false} }
func LexOI(u []byte) LexRange    { return LexRange{Upper: u, UpperInc: true} }
func LexOE(u []byte) LexRange    { return LexRange{Upper: u, UpperInc: false} }
func LexII(l, u []byte) LexRange { return LexRange{Lower: l, Upper: u, LowerInc: true, UpperInc: true} }
func LexIE(l, u []byte) LexRange {
	return LexRange{Lower: l, Upper: u, LowerInc: true, UpperInc: false}
}
func LexEI(l, u []byte) LexRange {
	return LexRange{Lower: l, Upper: u, LowerInc: false, UpperInc: true}
}
func LexEE(l, u []byte) LexRange {
	return LexRange{Lower: l, Upper: u, LowerInc: false, UpperInc: false}
}

func (r LexRange) aboveLower(m []byte) bool {
	if r.Lower == nil {
		return true
	}
	cmp := bytes.Compare(m, r.Lower)
	return cmp == 1 || (cmp == 0 && r.LowerInc)
}

func (r LexRange) belowUpper(m []byte) bool {
	if r.Upper == nil {
		return true
	}
	cmp := bytes.Compare(m, r.Upper)
	return cmp == -1 || (cmp == 0 && r.UpperInc)
}

// Contains reports whether member falls within the range.
func (r LexRange) Contains(member string) bool {
	m := []byte(member)
	return r.aboveLower(m) && r.belowUpper(m)
}

// RedisArgs renders the bounds in ZRANGEBYLEX syntax.
func (r LexRange) RedisArgs() (min, max string) {
	if r.Lower == nil {
		min = "-"
	} else if r.LowerInc {
		min = "[" + string(r.Lower)
	} else {
		min = "(" + string(r.Lower)
	}
	if r.Upper == nil {
		max = "+"
	} else if r.UpperInc {
		max = "[" + string(r.Upper)
	} else {
		max = "(" + string(r.Upper)
	}
	return
}

// filterSorted returns the members of a lexically sorted slice that fall
// within the range.
func (r LexRange) filterSorted(sorted []string) []string {
	start := 0
	if r.Lower != nil {
		start = sort.Search(len(sorted), func(i int) bool {
			return r.aboveLower([]byte(sorted[i]))
		})
	}
	var result []string
	for _, m := range sorted[start:] {
		if !r.belowUpper([]byte(m)) {
			break
		}
		result = append(result, m)
	}
	return result
}

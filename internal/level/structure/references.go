package structure

import (
	"sort"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/scylladb/go-set/i64set"
)

// References maps a structure type to the packed chunk positions of the
// structure starts that reach into a chunk. Insertion order is kept.
type References struct {
	m *orderedmap.OrderedMap[*Type, *i64set.Set]
}

func NewReferences() *References {
	return &References{m: orderedmap.NewOrderedMap[*Type, *i64set.Set]()}
}

// Put replaces the set stored for t. An existing key keeps its position.
func (r *References) Put(t *Type, positions *i64set.Set) {
	r.m.Set(t, positions)
}

func (r *References) Get(t *Type) (*i64set.Set, bool) {
	return r.m.Get(t)
}

// Remove deletes the entry for t and reports whether one existed.
func (r *References) Remove(t *Type) bool {
	return r.m.Delete(t)
}

func (r *References) Len() int {
	return r.m.Len()
}

// Types returns the keys in insertion order.
func (r *References) Types() []*Type {
	return r.m.Keys()
}

func (r *References) HasNull() bool {
	_, ok := r.m.Get(nil)
	return ok
}

// Each visits entries in insertion order until fn returns false.
func (r *References) Each(fn func(t *Type, positions *i64set.Set) bool) {
	for el := r.m.Front(); el != nil; el = el.Next() {
		if !fn(el.Key, el.Value) {
			return
		}
	}
}

// Sorted returns the positions of a set in ascending order.
func Sorted(positions *i64set.Set) []int64 {
	if positions == nil {
		return nil
	}
	out := positions.List()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

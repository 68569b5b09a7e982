package entity

import "sort"

// ID identifies an entity. Zero is never allocated.
type ID uint64

// Registry allocates entity ids and tracks which ones are alive.
// Ids are monotonic and never reused within a process.
type Registry struct {
	next  ID
	alive Set
}

func NewRegistry() *Registry {
	return &Registry{alive: Set{}}
}

func (r *Registry) Create() ID {
	r.next++
	r.alive.Add(r.next)
	return r.next
}

func (r *Registry) Destroy(id ID) bool {
	if !r.alive.Has(id) {
		return false
	}
	r.alive.Remove(id)
	return true
}

func (r *Registry) Alive(id ID) bool { return r.alive.Has(id) }
func (r *Registry) Len() int         { return len(r.alive) }

// Set is an unordered set of entity ids.
type Set map[ID]struct{}

func SetOf(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Add(id ID)      { s[id] = struct{}{} }
func (s Set) Remove(id ID)   { delete(s, id) }
func (s Set) Has(id ID) bool { _, ok := s[id]; return ok }
func (s Set) Len() int       { return len(s) }

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Table stores one component kind keyed by entity.
type Table[T any] struct {
	rows map[ID]T
}

func NewTable[T any]() *Table[T] {
	return &Table[T]{rows: map[ID]T{}}
}

func (t *Table[T]) Get(id ID) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *Table[T]) Has(id ID) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *Table[T]) Set(id ID, v T) { t.rows[id] = v }
func (t *Table[T]) Delete(id ID)   { delete(t.rows, id) }
func (t *Table[T]) Len() int       { return len(t.rows) }

// Each visits rows in ascending id order so systems iterate deterministically.
func (t *Table[T]) Each(fn func(id ID, v T)) {
	ids := make([]ID, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fn(id, t.rows[id])
	}
}

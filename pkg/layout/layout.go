// Package layout implements FieldLayout, the sorted deduplicated
// schema of a key or counter, and LayoutRegistry, which interns
// layouts so that two schemas naming the same set of field types
// share a single, pointer-comparable handle.
package layout

import (
	"fmt"
	"sync"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
	"github.com/movsoftware/silk-sub015/pkg/fieldtype"
	"github.com/movsoftware/silk-sub015/pkg/rbtree"
)

// Field records the byte range of one field within a packed entry.
type Field struct {
	Type   fieldtype.Type
	Offset int
	Length int
}

// Layout is an interned, ordered schema: a deduplicated set of field
// types sorted ascending by type ID, with precomputed byte offsets.
// Layouts are only ever constructed by the registry so that identical
// schemas share one *Layout.
type Layout struct {
	fields      []Field
	totalOctets int
	refCount    int
}

// Fields returns the layout's fields in ascending type-ID order.
func (l *Layout) Fields() []Field {
	out := make([]Field, len(l.fields))
	copy(out, l.fields)
	return out
}

// TotalOctets is the packed byte width of this layout.
func (l *Layout) TotalOctets() int { return l.totalOctets }

// Find returns the Field descriptor for t, if present in this layout.
func (l *Layout) Find(t fieldtype.Type) (Field, bool) {
	for _, f := range l.fields {
		if f.Type == t {
			return f, true
		}
	}
	return Field{}, false
}

// Equal reports whether l and o name the same set of field types.
// Because layouts are interned, equal layouts are always the same
// pointer; this is provided for diagnostics and tests.
func (l *Layout) Equal(o *Layout) bool {
	if l == o {
		return true
	}
	if o == nil || len(l.fields) != len(o.fields) {
		return false
	}
	for i, f := range l.fields {
		if o.fields[i].Type != f.Type {
			return false
		}
	}
	return true
}

type bitmapKey struct {
	bits  [fieldtype.BitmapWords]uint64
	count int
}

func bitmapCompare(a, b bitmapKey, _ struct{}) int {
	if a.count != b.count {
		if a.count < b.count {
			return -1
		}
		return 1
	}
	for i := range a.bits {
		if a.bits[i] != b.bits[i] {
			if a.bits[i] < b.bits[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Registry interns FieldLayouts by the bitmap of field types they
// contain, guaranteeing pointer equality of identical schemas. It is
// safe for concurrent use.
type Registry struct {
	mu   sync.Mutex
	tree *rbtree.Tree[bitmapKey, *Layout, struct{}]
}

// NewRegistry creates an empty layout registry.
func NewRegistry() *Registry {
	return &Registry{
		tree: rbtree.New[bitmapKey, *Layout, struct{}](bitmapCompare, struct{}{}),
	}
}

func keyFor(types []fieldtype.Type) (bitmapKey, error) {
	var k bitmapKey
	for _, t := range types {
		idx, ok := fieldtype.Index(t)
		if !ok {
			return k, apperr.New(apperr.InvalidArgument, "layout", "intern",
				fmt.Errorf("undefined field type %d", t))
		}
		word, bit := idx/64, uint(idx%64)
		if k.bits[word]&(1<<bit) == 0 {
			k.bits[word] |= 1 << bit
			k.count++
		}
	}
	return k, nil
}

// Intern returns the shared Layout for the given set of field types,
// building it (sorted, deduplicated, with computed offsets) the first
// time it is requested. The returned Layout's reference count is
// incremented; callers must call Release when done.
func (r *Registry) Intern(types []fieldtype.Type) (*Layout, error) {
	if len(types) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "layout", "intern",
			fmt.Errorf("empty field list"))
	}
	key, err := keyFor(types)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tree.Find(key); ok {
		existing.refCount++
		return existing, nil
	}

	l := buildLayout(types)
	l.refCount = 1
	r.tree.InsertOrGet(key, l)
	return l, nil
}

// Release decrements l's reference count and removes it from the
// registry once no caller holds a reference.
func (r *Registry) Release(l *Layout) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	l.refCount--
	if l.refCount > 0 {
		return
	}
	key, err := keyFor(typesOf(l))
	if err != nil {
		return
	}
	r.tree.Delete(key)
}

// Len reports the number of distinct layouts currently interned.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.Len()
}

func typesOf(l *Layout) []fieldtype.Type {
	out := make([]fieldtype.Type, len(l.fields))
	for i, f := range l.fields {
		out[i] = f.Type
	}
	return out
}

func buildLayout(types []fieldtype.Type) *Layout {
	dedup := make(map[fieldtype.Type]struct{}, len(types))
	unique := make([]fieldtype.Type, 0, len(types))
	for _, t := range types {
		if _, seen := dedup[t]; seen {
			continue
		}
		dedup[t] = struct{}{}
		unique = append(unique, t)
	}
	sortTypes(unique)

	fields := make([]Field, 0, len(unique))
	offset := 0
	for _, t := range unique {
		width := fieldtype.Octets(t)
		fields = append(fields, Field{Type: t, Offset: offset, Length: width})
		offset += width
	}
	return &Layout{fields: fields, totalOctets: offset}
}

func sortTypes(types []fieldtype.Type) {
	for i := 1; i < len(types); i++ {
		for j := i; j > 0 && types[j-1] > types[j]; j-- {
			types[j-1], types[j] = types[j], types[j-1]
		}
	}
}

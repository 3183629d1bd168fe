// Package aggbag implements AggregateBag: a typed composite-key to
// composite-counter map keyed by a packed, big-endian byte block, with
// saturating per-field addition and floor-zero subtraction, backed by
// pkg/rbtree ordered by memcmp over the key octets.
package aggbag

import (
	"encoding/binary"
	"io"
	"iter"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
	"github.com/movsoftware/silk-sub015/pkg/fieldtype"
	"github.com/movsoftware/silk-sub015/pkg/layout"
	"github.com/movsoftware/silk-sub015/pkg/rbtree"
	"github.com/movsoftware/silk-sub015/pkg/recstream"
)

// entryKey is the memcmp-ordered key used by the underlying tree: the
// raw key octets of one entry.
type entryKey string

func entryKeyCompare(a, b entryKey, _ struct{}) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Bag is the triple (KeyLayout, CounterLayout, OrderedMap). Each tree
// entry value is the counter octets for the matching key; the key
// itself lives in the tree key.
type Bag struct {
	registry *layout.Registry
	keyL     *layout.Layout
	counterL *layout.Layout
	tree     *rbtree.Tree[entryKey, []byte, struct{}]
	frozen   bool
}

// New creates an empty, mutable bag. SetKeyFields/SetCounterFields
// must be called before any entry operation.
func New(registry *layout.Registry) *Bag {
	return &Bag{
		registry: registry,
		tree:     rbtree.New[entryKey, []byte, struct{}](entryKeyCompare, struct{}{}),
	}
}

func (b *Bag) freeze() { b.frozen = true }

// SetKeyFields interns a key layout built from fieldTypes. It fails
// with SchemaFrozen once the bag has been mutated or read from disk,
// FieldClassMismatch if any type is a counter type, and
// UnsupportedIPv6 if an IPv6 field type is supplied.
func (b *Bag) SetKeyFields(fieldTypes []fieldtype.Type) error {
	if b.frozen {
		return apperr.New(apperr.SchemaFrozen, "aggbag", "setKeyFields", nil)
	}
	for _, t := range fieldTypes {
		if fieldtype.IsCounter(t) {
			return apperr.New(apperr.FieldClassMismatch, "aggbag", "setKeyFields", nil)
		}
		if t == fieldtype.SIPv6 || t == fieldtype.DIPv6 || t == fieldtype.NextHopIPv6 {
			return apperr.New(apperr.UnsupportedIPv6, "aggbag", "setKeyFields", nil)
		}
	}
	l, err := b.registry.Intern(fieldTypes)
	if err != nil {
		return err
	}
	b.keyL = l
	return nil
}

// SetCounterFields interns a counter layout built from fieldTypes. It
// fails with SchemaFrozen once the bag has been mutated or read from
// disk, and FieldClassMismatch if any type is a key type.
func (b *Bag) SetCounterFields(fieldTypes []fieldtype.Type) error {
	if b.frozen {
		return apperr.New(apperr.SchemaFrozen, "aggbag", "setCounterFields", nil)
	}
	for _, t := range fieldTypes {
		if fieldtype.IsKey(t) {
			return apperr.New(apperr.FieldClassMismatch, "aggbag", "setCounterFields", nil)
		}
	}
	l, err := b.registry.Intern(fieldTypes)
	if err != nil {
		return err
	}
	b.counterL = l
	return nil
}

// KeyLayout returns the bag's interned key schema, or nil if unset.
func (b *Bag) KeyLayout() *layout.Layout { return b.keyL }

// CounterLayout returns the bag's interned counter schema, or nil if unset.
func (b *Bag) CounterLayout() *layout.Layout { return b.counterL }

// Len reports the number of entries currently in the bag.
func (b *Bag) Len() int { return b.tree.Len() }

func (b *Bag) checkSchema(op string) error {
	if b.keyL == nil || b.counterL == nil {
		return apperr.New(apperr.UndefinedKey, "aggbag", op, nil)
	}
	return nil
}

func zeroCounter(n int) []byte { return make([]byte, n) }

// Get returns the counter bytes stored for key, or a zeroed counter if
// key is absent.
func (b *Bag) Get(key []byte) ([]byte, error) {
	if err := b.checkSchema("get"); err != nil {
		return nil, err
	}
	if len(key) != b.keyL.TotalOctets() {
		return nil, apperr.New(apperr.FieldsDifferKey, "aggbag", "get", nil)
	}
	v, ok := b.tree.Find(entryKey(key))
	if !ok {
		return zeroCounter(b.counterL.TotalOctets()), nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set inserts or overwrites the counter for key.
func (b *Bag) Set(key, counter []byte) error {
	if err := b.checkSchema("set"); err != nil {
		return err
	}
	if len(key) != b.keyL.TotalOctets() {
		return apperr.New(apperr.FieldsDifferKey, "aggbag", "set", nil)
	}
	if len(counter) != b.counterL.TotalOctets() {
		return apperr.New(apperr.FieldsDifferCounter, "aggbag", "set", nil)
	}
	b.freeze()
	stored := make([]byte, len(counter))
	copy(stored, counter)

	if _, ok := b.tree.Find(entryKey(key)); ok {
		b.tree.Delete(entryKey(key))
	}
	b.tree.InsertOrGet(entryKey(append([]byte(nil), key...)), stored)
	return nil
}

// Add inserts key with counter if absent, otherwise performs per-field
// 64-bit saturating addition. It returns the resulting stored counter.
func (b *Bag) Add(key, counter []byte) ([]byte, error) {
	if err := b.checkSchema("add"); err != nil {
		return nil, err
	}
	if len(key) != b.keyL.TotalOctets() {
		return nil, apperr.New(apperr.FieldsDifferKey, "aggbag", "add", nil)
	}
	if len(counter) != b.counterL.TotalOctets() {
		return nil, apperr.New(apperr.FieldsDifferCounter, "aggbag", "add", nil)
	}
	b.freeze()

	existing, ok := b.tree.Find(entryKey(key))
	if !ok {
		stored := make([]byte, len(counter))
		copy(stored, counter)
		b.tree.InsertOrGet(entryKey(append([]byte(nil), key...)), stored)
		return stored, nil
	}
	for off := 0; off+8 <= len(existing); off += 8 {
		dst := binary.BigEndian.Uint64(existing[off : off+8])
		src := binary.BigEndian.Uint64(counter[off : off+8])
		binary.BigEndian.PutUint64(existing[off:off+8], saturatingAdd(dst, src))
	}
	return existing, nil
}

// Subtract performs per-field floor-zero subtraction if key is
// present; it is a no-op if key is absent. The entry is never removed
// even if every counter field becomes zero.
func (b *Bag) Subtract(key, counter []byte) error {
	if err := b.checkSchema("subtract"); err != nil {
		return err
	}
	if len(key) != b.keyL.TotalOctets() {
		return apperr.New(apperr.FieldsDifferKey, "aggbag", "subtract", nil)
	}
	if len(counter) != b.counterL.TotalOctets() {
		return apperr.New(apperr.FieldsDifferCounter, "aggbag", "subtract", nil)
	}
	b.freeze()

	existing, ok := b.tree.Find(entryKey(key))
	if !ok {
		return nil
	}
	for off := 0; off+8 <= len(existing); off += 8 {
		dst := binary.BigEndian.Uint64(existing[off : off+8])
		src := binary.BigEndian.Uint64(counter[off : off+8])
		binary.BigEndian.PutUint64(existing[off:off+8], floorZeroSub(dst, src))
	}
	return nil
}

// Remove deletes key from the bag, if present.
func (b *Bag) Remove(key []byte) error {
	if err := b.checkSchema("remove"); err != nil {
		return err
	}
	b.freeze()
	b.tree.Delete(entryKey(key))
	return nil
}

func saturatingAdd(dst, src uint64) uint64 {
	if dst > ^uint64(0)-src {
		return ^uint64(0)
	}
	return dst + src
}

func floorZeroSub(dst, src uint64) uint64 {
	if dst <= src {
		return 0
	}
	return dst - src
}

// Merge applies Add across every entry of other. Both bags must share
// identical key and counter layout handles.
func (b *Bag) Merge(other *Bag) error {
	return b.combine(other, b.Add2)
}

// Minus applies Subtract across every entry of other. Both bags must
// share identical key and counter layout handles.
func (b *Bag) Minus(other *Bag) error {
	return b.combine(other, func(k, c []byte) error { return b.Subtract(k, c) })
}

// Add2 adapts Add to the (key, counter) -> error signature combine needs.
func (b *Bag) Add2(key, counter []byte) error {
	_, err := b.Add(key, counter)
	return err
}

func (b *Bag) combine(other *Bag, apply func(key, counter []byte) error) error {
	if other.keyL != b.keyL || other.counterL != b.counterL {
		return apperr.New(apperr.FieldsDifferKey, "aggbag", "combine", nil)
	}
	for key, counter := range other.Iterate() {
		if err := apply([]byte(key), []byte(counter)); err != nil {
			return err
		}
	}
	return nil
}

// KeyView and CounterView are read-only views over one entry's packed
// bytes, yielded by Iterate.
type KeyView []byte
type CounterView []byte

// Iterate yields (key, counter) pairs in ascending lex order of key
// bytes. Mutating the bag while an Iterate is in progress is
// undefined, mirroring the tree's cursor contract.
func (b *Bag) Iterate() iter.Seq2[KeyView, CounterView] {
	return func(yield func(KeyView, CounterView) bool) {
		for k, v := range b.tree.Cursor() {
			if !yield(KeyView(k), CounterView(v)) {
				return
			}
		}
	}
}

// WriteTo serializes the bag to w using the §6.2 file format: a stream
// header, the aggregate-bag header entry, and densely packed entries.
// Entries whose counter is all-zero are skipped.
func (b *Bag) WriteTo(w *recstream.Writer, method recstream.CompressionMethod) error {
	if err := b.checkSchema("writeTo"); err != nil {
		return err
	}
	keyTypes := typesOf(b.keyL)
	counterTypes := typesOf(b.counterL)
	h := recstream.NewAggbagHeader(keyTypes, counterTypes, method)

	if err := w.WriteHeader(h); err != nil {
		return err
	}
	for key, counter := range b.Iterate() {
		if allZero(counter) {
			continue
		}
		rec := make([]byte, len(key)+len(counter))
		copy(rec, key)
		copy(rec[len(key):], counter)
		if err := w.WriteRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrom deserializes a bag from r, which must be positioned at the
// start of a stream written by WriteTo. Schema setters are implicitly
// invoked from the header entry's field lists; duplicate keys in the
// file are tolerated, later wins.
func (b *Bag) ReadFrom(r *recstream.Reader) error {
	h, err := r.ReadHeader()
	if err != nil {
		return err
	}
	if err := b.SetKeyFields(h.Entry.KeyTypes); err != nil {
		return err
	}
	if err := b.SetCounterFields(h.Entry.CounterTypes); err != nil {
		return err
	}
	b.freeze()

	recLen := h.Entry.KeyOctets + h.Entry.CounterOctets
	buf := make([]byte, recLen)
	for {
		_, err := r.ReadRecord(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		key := buf[:h.Entry.KeyOctets]
		counter := buf[h.Entry.KeyOctets:]
		if err := b.Set(key, counter); err != nil {
			return err
		}
	}
}

func typesOf(l *layout.Layout) []fieldtype.Type {
	fields := l.Fields()
	out := make([]fieldtype.Type, len(fields))
	for i, f := range fields {
		out[i] = f.Type
	}
	return out
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

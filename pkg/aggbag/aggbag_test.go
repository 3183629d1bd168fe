package aggbag

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/movsoftware/silk-sub015/pkg/apperr"
	"github.com/movsoftware/silk-sub015/pkg/fieldtype"
	"github.com/movsoftware/silk-sub015/pkg/layout"
	"github.com/movsoftware/silk-sub015/pkg/recstream"
)

func newDIPv4SumBytesBag(t *testing.T) *Bag {
	t.Helper()
	reg := layout.NewRegistry()
	b := New(reg)
	require.NoError(t, b.SetKeyFields([]fieldtype.Type{fieldtype.DIPv4}))
	require.NoError(t, b.SetCounterFields([]fieldtype.Type{fieldtype.SumBytes}))
	return b
}

func counterOf(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func keyIPv4(a, bb, c, d byte) []byte { return []byte{a, bb, c, d} }

func TestAddThenGetReturnsStoredCounter(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	key := keyIPv4(1, 2, 3, 4)

	_, err := bag.Add(key, counterOf(100))
	require.NoError(t, err)

	got, err := bag.Get(key)
	require.NoError(t, err)
	require.Equal(t, uint64(100), binary.BigEndian.Uint64(got))
}

func TestGetAbsentReturnsZeroedCounter(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	got, err := bag.Get(keyIPv4(9, 9, 9, 9))
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), got)
}

func TestAddSaturates(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	key := keyIPv4(1, 2, 3, 4)

	_, err := bag.Add(key, counterOf(0xFFFFFFFFFFFFFFF0))
	require.NoError(t, err)
	_, err = bag.Add(key, counterOf(0x20))
	require.NoError(t, err)

	got, err := bag.Get(key)
	require.NoError(t, err)
	require.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), binary.BigEndian.Uint64(got))
}

func TestSubtractFloorsAtZeroWithoutRemoving(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	key := keyIPv4(1, 2, 3, 4)
	_, err := bag.Add(key, counterOf(10))
	require.NoError(t, err)

	require.NoError(t, bag.Subtract(key, counterOf(100)))

	got, err := bag.Get(key)
	require.NoError(t, err)
	require.Equal(t, uint64(0), binary.BigEndian.Uint64(got))
	require.Equal(t, 1, bag.Len(), "entry must survive even at zero")
}

func TestSubtractAbsentIsNoOp(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	require.NoError(t, bag.Subtract(keyIPv4(5, 5, 5, 5), counterOf(1)))
	require.Equal(t, 0, bag.Len())
}

func TestSetOverwrites(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	key := keyIPv4(1, 1, 1, 1)
	require.NoError(t, bag.Set(key, counterOf(5)))
	require.NoError(t, bag.Set(key, counterOf(9)))

	got, err := bag.Get(key)
	require.NoError(t, err)
	require.Equal(t, uint64(9), binary.BigEndian.Uint64(got))
	require.Equal(t, 1, bag.Len())
}

func TestRemove(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	key := keyIPv4(1, 1, 1, 1)
	_, err := bag.Add(key, counterOf(1))
	require.NoError(t, err)
	require.NoError(t, bag.Remove(key))
	require.Equal(t, 0, bag.Len())
}

func TestSetKeyFieldsFailsAfterFreeze(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	_, err := bag.Add(keyIPv4(1, 1, 1, 1), counterOf(1))
	require.NoError(t, err)

	err = bag.SetKeyFields([]fieldtype.Type{fieldtype.SIPv4})
	require.True(t, apperr.Is(err, apperr.SchemaFrozen))
}

func TestSetKeyFieldsRejectsCounterType(t *testing.T) {
	reg := layout.NewRegistry()
	bag := New(reg)
	err := bag.SetKeyFields([]fieldtype.Type{fieldtype.SumBytes})
	require.Error(t, err)
}

func TestSetCounterFieldsRejectsKeyType(t *testing.T) {
	reg := layout.NewRegistry()
	bag := New(reg)
	err := bag.SetCounterFields([]fieldtype.Type{fieldtype.SIPv4})
	require.Error(t, err)
}

func TestSetKeyFieldsRejectsIPv6(t *testing.T) {
	reg := layout.NewRegistry()
	bag := New(reg)
	err := bag.SetKeyFields([]fieldtype.Type{fieldtype.SIPv6})
	require.Error(t, err)
}

func TestIterateAscendingLexOrder(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	keys := [][]byte{keyIPv4(10, 0, 0, 3), keyIPv4(10, 0, 0, 1), keyIPv4(10, 0, 0, 2)}
	for _, k := range keys {
		_, err := bag.Add(k, counterOf(1))
		require.NoError(t, err)
	}

	var seen [][]byte
	for k := range bag.Iterate() {
		cp := make([]byte, len(k))
		copy(cp, k)
		seen = append(seen, cp)
	}
	require.Equal(t, [][]byte{keyIPv4(10, 0, 0, 1), keyIPv4(10, 0, 0, 2), keyIPv4(10, 0, 0, 3)}, seen)
}

func TestRoundTripThroughFile(t *testing.T) {
	reg := layout.NewRegistry()
	bag := New(reg)
	require.NoError(t, bag.SetKeyFields([]fieldtype.Type{fieldtype.SIPv4, fieldtype.DPort}))
	require.NoError(t, bag.SetCounterFields([]fieldtype.Type{fieldtype.Records, fieldtype.SumBytes}))

	type entry struct {
		key     []byte
		records uint64
		bytes   uint64
	}
	entries := []entry{
		{append(keyIPv4(1, 1, 1, 1), 0, 80), 1, 1000},
		{append(keyIPv4(2, 2, 2, 2), 0, 443), 2, 2000},
		{append(keyIPv4(3, 3, 3, 3), 1, 187), 3, 3000},
	}
	for _, e := range entries {
		counter := make([]byte, 16)
		binary.BigEndian.PutUint64(counter[:8], e.records)
		binary.BigEndian.PutUint64(counter[8:], e.bytes)
		_, err := bag.Add(e.key, counter)
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "bag.dat")
	w, err := recstream.Create(path, recstream.CompressionNone, bag.KeyLayout().TotalOctets()+bag.CounterLayout().TotalOctets())
	require.NoError(t, err)
	require.NoError(t, bag.WriteTo(w, recstream.CompressionNone))
	require.NoError(t, w.Close())

	r, err := recstream.Open(path)
	require.NoError(t, err)
	defer r.Close()

	reg2 := layout.NewRegistry()
	readBack := New(reg2)
	require.NoError(t, readBack.ReadFrom(r))

	var original, roundTripped [][2][]byte
	for k, c := range bag.Iterate() {
		original = append(original, [2][]byte{append([]byte(nil), k...), append([]byte(nil), c...)})
	}
	for k, c := range readBack.Iterate() {
		roundTripped = append(roundTripped, [2][]byte{append([]byte(nil), k...), append([]byte(nil), c...)})
	}
	require.Equal(t, original, roundTripped)
}

func TestWriteToSkipsAllZeroCounters(t *testing.T) {
	bag := newDIPv4SumBytesBag(t)
	require.NoError(t, bag.Set(keyIPv4(1, 1, 1, 1), counterOf(0)))
	require.NoError(t, bag.Set(keyIPv4(2, 2, 2, 2), counterOf(5)))

	path := filepath.Join(t.TempDir(), "bag.dat")
	w, err := recstream.Create(path, recstream.CompressionNone, bag.KeyLayout().TotalOctets()+bag.CounterLayout().TotalOctets())
	require.NoError(t, err)
	require.NoError(t, bag.WriteTo(w, recstream.CompressionNone))
	require.NoError(t, w.Close())

	r, err := recstream.Open(path)
	require.NoError(t, err)
	defer r.Close()
	reg2 := layout.NewRegistry()
	readBack := New(reg2)
	require.NoError(t, readBack.ReadFrom(r))
	require.Equal(t, 1, readBack.Len())
}

func TestMergeRequiresIdenticalLayouts(t *testing.T) {
	bagA := newDIPv4SumBytesBag(t)
	reg := layout.NewRegistry()
	bagB := New(reg)
	require.NoError(t, bagB.SetKeyFields([]fieldtype.Type{fieldtype.SIPv4}))
	require.NoError(t, bagB.SetCounterFields([]fieldtype.Type{fieldtype.SumBytes}))

	err := bagA.Merge(bagB)
	require.Error(t, err)
}

func TestMergeAddsAcrossEntries(t *testing.T) {
	bagA := newDIPv4SumBytesBag(t)
	reg := bagA.registry
	bagB := New(reg)
	require.NoError(t, bagB.SetKeyFields([]fieldtype.Type{fieldtype.DIPv4}))
	require.NoError(t, bagB.SetCounterFields([]fieldtype.Type{fieldtype.SumBytes}))

	key := keyIPv4(1, 1, 1, 1)
	_, err := bagA.Add(key, counterOf(10))
	require.NoError(t, err)
	_, err = bagB.Add(key, counterOf(5))
	require.NoError(t, err)

	require.NoError(t, bagA.Merge(bagB))
	got, err := bagA.Get(key)
	require.NoError(t, err)
	require.Equal(t, uint64(15), binary.BigEndian.Uint64(got))
}


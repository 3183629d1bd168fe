package fieldtype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyCounterPartition(t *testing.T) {
	require.True(t, IsKey(SIPv4))
	require.False(t, IsCounter(SIPv4))

	require.True(t, IsCounter(Records))
	require.False(t, IsKey(Records))

	require.Equal(t, CounterBase, Records)
}

func TestDescribeKnownTypes(t *testing.T) {
	for _, tc := range []struct {
		t      Type
		octets int
		kind   Kind
	}{
		{SIPv4, 4, KindIPv4},
		{SIPv6, 16, KindIPv6},
		{SPort, 2, KindUnsigned},
		{STime, 8, KindSigned},
		{Records, 8, KindUnsigned},
		{SumBytes, 8, KindUnsigned},
	} {
		d, ok := Describe(tc.t)
		require.True(t, ok, "type %d should be defined", tc.t)
		require.Equal(t, tc.octets, d.Octets)
		require.Equal(t, tc.kind, d.Kind)
	}
}

func TestDescribeUndefinedType(t *testing.T) {
	_, ok := Describe(Type(9999))
	require.False(t, ok)
	require.Equal(t, 0, Octets(Type(9999)))
}

func TestIndexIsDenseAndUnique(t *testing.T) {
	seen := map[int]Type{}
	for t2 := range descriptors {
		idx, ok := Index(t2)
		require.True(t, ok)
		if prior, dup := seen[idx]; dup {
			t.Fatalf("Index collision between %v and %v at %d", prior, t2, idx)
		}
		seen[idx] = t2
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, BitmapWords*64)
	}
}

func TestIndexRejectsUndefined(t *testing.T) {
	_, ok := Index(Type(9999))
	require.False(t, ok)
}

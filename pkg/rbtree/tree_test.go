package rbtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intCmp(a, b int, _ struct{}) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func newIntTree() *Tree[int, int, struct{}] {
	return New[int, int, struct{}](intCmp, struct{}{})
}

// blackHeight walks from n to every nil leaf and fails the test if the
// number of black nodes on the path differs between leaves. It returns
// the common black height.
func blackHeight[K any, V any, C any](t *testing.T, tr *Tree[K, V, C], n *node[K, V]) int {
	t.Helper()
	if tr.isNil(n) {
		return 1
	}
	left := blackHeight(t, tr, n.left)
	right := blackHeight(t, tr, n.right)
	require.Equal(t, left, right, "black height mismatch")
	if n.color == black {
		return left + 1
	}
	return left
}

func assertRBInvariants[K any, V any, C any](t *testing.T, tr *Tree[K, V, C]) {
	t.Helper()
	require.Equal(t, black, tr.root.color, "root must be black")
	var walk func(n *node[K, V])
	walk = func(n *node[K, V]) {
		if tr.isNil(n) {
			return
		}
		if n.color == red {
			require.Equal(t, black, n.left.color, "red node must have black left child")
			require.Equal(t, black, n.right.color, "red node must have black right child")
		}
		walk(n.left)
		walk(n.right)
	}
	walk(tr.root)
	blackHeight(t, tr, tr.root)
}

func TestInsertOrGetMaintainsSortedOrder(t *testing.T) {
	tr := newIntTree()
	seq := []int{201, 34, 202, 56, 203, 78, 204, 1, 205, 79, 206, 2, 207, 80, 208, 3, 209, 32, 210, 65, 211, 5, 212, 8, 213, 74, 214, 215}
	for _, v := range seq {
		_, inserted := tr.InsertOrGet(v, v)
		require.True(t, inserted)
	}
	assertRBInvariants(t, tr)

	var got []int
	for k := range tr.Cursor() {
		got = append(got, k)
	}
	want := []int{1, 2, 3, 5, 8, 32, 34, 56, 65, 74, 78, 79, 80, 201, 202, 203, 204, 205, 206, 207, 208, 209, 210, 211, 212, 213, 214, 215}
	require.Equal(t, want, got)
	require.Equal(t, len(want), tr.Len())
}

func TestInsertOrGetRejectsDuplicate(t *testing.T) {
	tr := newIntTree()
	_, inserted := tr.InsertOrGet(10, 100)
	require.True(t, inserted)

	existing, inserted := tr.InsertOrGet(10, 999)
	require.False(t, inserted)
	require.Equal(t, 100, existing)

	v, ok := tr.Find(10)
	require.True(t, ok)
	require.Equal(t, 100, v)
}

func TestFindMissing(t *testing.T) {
	tr := newIntTree()
	tr.InsertOrGet(1, 1)
	_, ok := tr.Find(2)
	require.False(t, ok)
}

func TestDeleteMaintainsInvariants(t *testing.T) {
	tr := newIntTree()
	vals := []int{50, 30, 70, 20, 40, 60, 80, 10, 25, 35, 45}
	for _, v := range vals {
		tr.InsertOrGet(v, v)
	}
	assertRBInvariants(t, tr)

	for _, v := range []int{20, 70, 50, 10} {
		_, _, ok := tr.Delete(v)
		require.True(t, ok)
		assertRBInvariants(t, tr)
		_, found := tr.Find(v)
		require.False(t, found)
	}
	require.Equal(t, len(vals)-4, tr.Len())
}

func TestDeleteMissingReportsFalse(t *testing.T) {
	tr := newIntTree()
	tr.InsertOrGet(1, 1)
	_, _, ok := tr.Delete(999)
	require.False(t, ok)
	require.Equal(t, 1, tr.Len())
}

func TestNearestModes(t *testing.T) {
	tr := newIntTree()
	for _, v := range []int{10, 20, 30, 40, 50} {
		tr.InsertOrGet(v, v)
	}

	k, _, ok := tr.Nearest(ModeFirst, 0)
	require.True(t, ok)
	require.Equal(t, 10, k)

	k, _, ok = tr.Nearest(ModeLast, 0)
	require.True(t, ok)
	require.Equal(t, 50, k)

	k, _, ok = tr.Nearest(ModeEQ, 30)
	require.True(t, ok)
	require.Equal(t, 30, k)

	_, _, ok = tr.Nearest(ModeEQ, 35)
	require.False(t, ok)

	k, _, ok = tr.Nearest(ModeLE, 35)
	require.True(t, ok)
	require.Equal(t, 30, k)

	k, _, ok = tr.Nearest(ModeGE, 35)
	require.True(t, ok)
	require.Equal(t, 40, k)

	k, _, ok = tr.Nearest(ModeLT, 30)
	require.True(t, ok)
	require.Equal(t, 20, k)

	k, _, ok = tr.Nearest(ModeGT, 30)
	require.True(t, ok)
	require.Equal(t, 40, k)

	_, _, ok = tr.Nearest(ModeLT, 10)
	require.False(t, ok)

	_, _, ok = tr.Nearest(ModeGT, 50)
	require.False(t, ok)

	k, _, ok = tr.Nearest(ModePrev, 30)
	require.True(t, ok)
	require.Equal(t, 20, k)

	k, _, ok = tr.Nearest(ModeNext, 30)
	require.True(t, ok)
	require.Equal(t, 40, k)
}

func TestCursorAscendingOrderRandomInserts(t *testing.T) {
	tr := newIntTree()
	vals := []int{55, 3, 99, 1, 42, 7, 23, 88, 16, 61, 2, 100, 0, 50}
	for _, v := range vals {
		tr.InsertOrGet(v, v*10)
	}
	assertRBInvariants(t, tr)

	var prev int
	first := true
	count := 0
	for k, v := range tr.Cursor() {
		if !first {
			require.Less(t, prev, k)
		}
		require.Equal(t, k*10, v)
		prev = k
		first = false
		count++
	}
	require.Equal(t, len(vals), count)
}

func TestWalkOrdersVisitEveryNode(t *testing.T) {
	tr := newIntTree()
	vals := []int{8, 4, 12, 2, 6, 10, 14, 1, 3, 5, 7}
	for _, v := range vals {
		tr.InsertOrGet(v, v)
	}

	for _, order := range []WalkOrder{Preorder, Postorder, Endorder} {
		seen := map[int]bool{}
		tr.Walk(order, func(k, _ int) { seen[k] = true })
		require.Len(t, seen, len(vals))
	}

	var leaves []int
	tr.Walk(LeafOrder, func(k, _ int) { leaves = append(leaves, k) })
	for _, l := range leaves {
		require.Contains(t, []int{1, 3, 5, 7, 10, 14}, l)
	}
}

func TestDestroyEmptiesTree(t *testing.T) {
	tr := newIntTree()
	for _, v := range []int{1, 2, 3, 4, 5} {
		tr.InsertOrGet(v, v)
	}
	visited := 0
	tr.Destroy(func(int, int) { visited++ })
	require.Equal(t, 5, visited)
	require.Equal(t, 0, tr.Len())
	_, ok := tr.Find(1)
	require.False(t, ok)
}

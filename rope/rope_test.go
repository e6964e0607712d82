package rope_test

import (
	"testing"

	"github.com/egwalker-dev/eg-walker/rope"
	"github.com/stretchr/testify/require"
)

func TestRopeInsertMatchesReferenceSlice(t *testing.T) {
	r := rope.New()
	var ref []rune

	insert := func(pos int, c rune) {
		r.Insert(pos, c)
		ref = append(ref[:pos], append([]rune{c}, ref[pos:]...)...)
	}

	insert(0, 'a')
	insert(1, 'b')
	insert(0, 'c')
	insert(2, 'd')

	require.Equal(t, string(ref), r.String())
	require.Equal(t, len(ref), r.Len())
}

func TestRopeDeleteMatchesReferenceSlice(t *testing.T) {
	r := rope.New()
	var ref []rune
	for _, c := range "hello world" {
		r.Insert(r.Len(), c)
		ref = append(ref, c)
	}

	del := func(pos int) {
		r.Delete(pos)
		ref = append(ref[:pos], ref[pos+1:]...)
	}

	del(5)
	del(0)
	del(len(ref) - 1)

	require.Equal(t, string(ref), r.String())
}

func TestRopeSplitsAndMergesAcrossLeafCapBoundary(t *testing.T) {
	r := rope.New()
	var ref []rune

	const n = 500
	for i := 0; i < n; i++ {
		c := rune('a' + i%26)
		r.Insert(r.Len(), c)
		ref = append(ref, c)
	}
	require.Equal(t, string(ref), r.String())
	require.Equal(t, n, r.Len())

	// Delete back down past several leaf boundaries, forcing merges.
	for i := 0; i < n-10; i++ {
		r.Delete(0)
		ref = ref[1:]
	}
	require.Equal(t, string(ref), r.String())
	require.Equal(t, 10, r.Len())
}

func TestRopeEmptyStringsToEmpty(t *testing.T) {
	r := rope.New()
	require.Equal(t, "", r.String())
	require.Equal(t, 0, r.Len())
}

func TestRopeRandomInterleavedOpsConvergeWithReference(t *testing.T) {
	r := rope.New()
	var ref []rune

	positions := []int{0, 0, 1, 0, 3, 2, 5, 0, 4, 1}
	chars := "abcdefghij"
	for i, pos := range positions {
		c := rune(chars[i])
		r.Insert(pos, c)
		ref = append(ref[:pos], append([]rune{c}, ref[pos:]...)...)
	}
	require.Equal(t, string(ref), r.String())

	deletePositions := []int{3, 0, 2, 4}
	for _, pos := range deletePositions {
		r.Delete(pos)
		ref = append(ref[:pos], ref[pos+1:]...)
	}
	require.Equal(t, string(ref), r.String())
}

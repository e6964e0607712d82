package replay

import (
	"testing"

	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/stretchr/testify/require"
)

func TestOSTInsertAtAndGetByIndex(t *testing.T) {
	t1 := NewOST()
	t1.InsertAt(0, Item{OpID: 0, CurState: Inserted, EndState: Inserted})
	t1.InsertAt(1, Item{OpID: 1, CurState: Inserted, EndState: Inserted})
	t1.InsertAt(1, Item{OpID: 2, CurState: Inserted, EndState: Inserted})

	require.Equal(t, 3, t1.Len())
	require.Equal(t, causalgraph.LV(0), t1.GetByIndex(0).Item.OpID)
	require.Equal(t, causalgraph.LV(2), t1.GetByIndex(1).Item.OpID)
	require.Equal(t, causalgraph.LV(1), t1.GetByIndex(2).Item.OpID)
}

func TestOSTIndexOfItemRoundTrips(t *testing.T) {
	tree := NewOST()
	for i := 0; i < 20; i++ {
		tree.InsertAt(tree.Len(), Item{OpID: causalgraph.LV(i), CurState: Inserted, EndState: Inserted})
	}
	for i := 0; i < 20; i++ {
		node := tree.GetByIndex(i)
		require.Equal(t, i, tree.IndexOfItem(node))
	}
}

func TestOSTFindByCurPosSkipsNotYetInsertedAndDeleted(t *testing.T) {
	tree := NewOST()
	tree.InsertAt(0, Item{OpID: causalgraph.LV(0), CurState: Inserted, EndState: Inserted})
	tree.InsertAt(1, Item{OpID: causalgraph.LV(1), CurState: NotYetInserted, EndState: NotYetInserted})
	tree.InsertAt(2, Item{OpID: causalgraph.LV(2), CurState: Inserted, EndState: Inserted})
	tree.InsertAt(3, Item{OpID: causalgraph.LV(3), CurState: deletedBase, EndState: deletedBase})
	tree.InsertAt(4, Item{OpID: causalgraph.LV(4), CurState: Inserted, EndState: Inserted})

	idx, endPos := tree.FindByCurPos(0, nil)
	require.Equal(t, 0, idx)
	require.Equal(t, 0, endPos)

	idx, endPos = tree.FindByCurPos(1, nil)
	require.Equal(t, 1, idx)
	require.Equal(t, 1, endPos)

	idx, endPos = tree.FindByCurPos(2, nil)
	require.Equal(t, 3, idx)
	require.Equal(t, 2, endPos)
}

func TestOSTRefreshCountsForItem(t *testing.T) {
	tree := NewOST()
	tree.InsertAt(0, Item{OpID: causalgraph.LV(0), CurState: Inserted, EndState: Inserted})
	tree.InsertAt(1, Item{OpID: causalgraph.LV(1), CurState: Inserted, EndState: Inserted})

	node, ok := tree.NodeForOpID(causalgraph.LV(1))
	require.True(t, ok)
	node.Item.CurState = NotYetInserted
	tree.RefreshCountsForItem(node)

	idx, _ := tree.FindByCurPos(0, nil)
	require.Equal(t, 0, idx)
	require.Equal(t, 1, tree.root.curIns)
}

package replay

import "github.com/egwalker-dev/eg-walker/causalgraph"

// ItemNode is one node of the OrderStatisticTree: an AVL tree keyed by
// in-order position rather than by value, so every positional query
// descends/ascends via subtree counts instead of comparisons.
type ItemNode struct {
	Item Item

	left, right, parent *ItemNode
	height               int
	size, curIns, endIns int
}

func height(n *ItemNode) int {
	if n == nil {
		return 0
	}
	return n.height
}

func size(n *ItemNode) int {
	if n == nil {
		return 0
	}
	return n.size
}

func curIns(n *ItemNode) int {
	if n == nil {
		return 0
	}
	return n.curIns
}

func endIns(n *ItemNode) int {
	if n == nil {
		return 0
	}
	return n.endIns
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (n *ItemNode) recalc() {
	n.height = 1 + max(height(n.left), height(n.right))
	n.size = 1 + size(n.left) + size(n.right)

	ci, ei := 0, 0
	if n.Item.CurState == Inserted {
		ci = 1
	}
	if n.Item.EndState == Inserted {
		ei = 1
	}
	n.curIns = ci + curIns(n.left) + curIns(n.right)
	n.endIns = ei + endIns(n.left) + endIns(n.right)
}

func rotateRight(y *ItemNode) *ItemNode {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	if t2 != nil {
		t2.parent = y
	}
	y.parent = x
	y.recalc()
	x.recalc()
	return x
}

func rotateLeft(x *ItemNode) *ItemNode {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	if t2 != nil {
		t2.parent = x
	}
	x.parent = y
	x.recalc()
	y.recalc()
	return y
}

func rebalance(n *ItemNode) *ItemNode {
	bf := height(n.left) - height(n.right)
	if bf > 1 {
		if height(n.left.left) < height(n.left.right) {
			n.left = rotateLeft(n.left)
			n.left.parent = n
		}
		root := rotateRight(n)
		return root
	}
	if bf < -1 {
		if height(n.right.right) < height(n.right.left) {
			n.right = rotateRight(n.right)
			n.right.parent = n
		}
		root := rotateLeft(n)
		return root
	}
	return n
}

// OrderStatisticTree is a balanced tree of Items in document order, each
// node maintaining subtree size and counts of curState==Inserted /
// endState==Inserted items, plus parent pointers for O(log n) node ->
// index lookup.
type OrderStatisticTree struct {
	root *ItemNode
	byOp map[causalgraph.LV]*ItemNode
}

// NewOST returns an empty tree.
func NewOST() *OrderStatisticTree {
	return &OrderStatisticTree{byOp: make(map[causalgraph.LV]*ItemNode)}
}

// Len returns the number of items currently in the tree.
func (t *OrderStatisticTree) Len() int { return size(t.root) }

func insertAtNode(n *ItemNode, idx int, newNode *ItemNode) *ItemNode {
	ls := size(n.left)
	if idx <= ls {
		if n.left == nil {
			n.left = newNode
			newNode.parent = n
		} else {
			n.left = insertAtNode(n.left, idx, newNode)
			n.left.parent = n
		}
	} else {
		if n.right == nil {
			n.right = newNode
			newNode.parent = n
		} else {
			n.right = insertAtNode(n.right, idx-ls-1, newNode)
			n.right.parent = n
		}
	}
	n.recalc()
	return rebalance(n)
}

// InsertAt inserts it at in-order position idx (0 <= idx <= Len()).
func (t *OrderStatisticTree) InsertAt(idx int, it Item) *ItemNode {
	newNode := &ItemNode{Item: it, height: 1, size: 1}
	if it.CurState == Inserted {
		newNode.curIns = 1
	}
	if it.EndState == Inserted {
		newNode.endIns = 1
	}
	if t.root == nil {
		t.root = newNode
	} else {
		t.root = insertAtNode(t.root, idx, newNode)
		t.root.parent = nil
	}
	t.byOp[it.OpID] = newNode
	return newNode
}

// GetByIndex returns the node at in-order position idx, or nil if out of
// range.
func (t *OrderStatisticTree) GetByIndex(idx int) *ItemNode {
	n := t.root
	for n != nil {
		ls := size(n.left)
		switch {
		case idx < ls:
			n = n.left
		case idx == ls:
			return n
		default:
			idx -= ls + 1
			n = n.right
		}
	}
	return nil
}

// IndexOfItem returns n's in-order position by ascending its parent
// chain.
func (t *OrderStatisticTree) IndexOfItem(n *ItemNode) int {
	if n == nil {
		return -1
	}
	idx := size(n.left)
	cur := n
	for cur.parent != nil {
		p := cur.parent
		if p.right == cur {
			idx += size(p.left) + 1
		}
		cur = p
	}
	return idx
}

// NodeForOpID returns the node holding the Item with the given OpID.
func (t *OrderStatisticTree) NodeForOpID(opID causalgraph.LV) (*ItemNode, bool) {
	n, ok := t.byOp[opID]
	return n, ok
}

// PosHint carries (pos, idx, endPos) from a previous FindByCurPos call so
// a subsequent nearby call can take a cheap forward scan instead of a
// full descent. Purely a speedup: see spec design notes §9.
type PosHint struct {
	Pos    int
	Idx    int
	EndPos int
}

// descendByCurPos finds the position one past the targetPos'th
// curState==Inserted item (1-indexed), and the count of
// endState==Inserted items at or before that position. targetPos==0
// returns (0, 0) without descending into any item.
func (t *OrderStatisticTree) descendByCurPos(targetPos int) (idx int, endPos int) {
	k := targetPos
	n := t.root
	for n != nil {
		lci := curIns(n.left)
		if k <= lci {
			n = n.left
			continue
		}
		k -= lci
		idx += size(n.left)
		endPos += endIns(n.left)

		if n.Item.CurState == Inserted {
			if k == 1 {
				idx++
				if n.Item.EndState == Inserted {
					endPos++
				}
				return idx, endPos
			}
			k--
		}
		if n.Item.EndState == Inserted {
			endPos++
		}
		idx++
		n = n.right
	}
	return idx, endPos
}

// FindByCurPos locates the cursor for targetPos: the position idx such
// that exactly targetPos items with curState==Inserted precede it, along
// with endPos, the count of endState==Inserted items before it. When
// hint is usable (targetPos >= hint.Pos and the delta is small) a forward
// scan from the hint is used instead of a full descent.
func (t *OrderStatisticTree) FindByCurPos(targetPos int, hint *PosHint) (idx int, endPos int) {
	if hint != nil && targetPos >= hint.Pos && targetPos-hint.Pos <= 4 {
		return t.scanForward(hint.Pos, hint.Idx, hint.EndPos, targetPos)
	}
	return t.descendByCurPos(targetPos)
}

func (t *OrderStatisticTree) scanForward(curPos, idx, endPos, targetPos int) (int, int) {
	for curPos < targetPos {
		n := t.GetByIndex(idx)
		if n == nil {
			return idx, endPos
		}
		if n.Item.CurState == Inserted {
			curPos++
		}
		if n.Item.EndState == Inserted {
			endPos++
		}
		idx++
	}
	return idx, endPos
}

// RefreshCountsForItem re-sums size/curIns/endIns from n up to the root,
// after the caller has mutated n.Item's CurState/EndState in place.
func (t *OrderStatisticTree) RefreshCountsForItem(n *ItemNode) {
	for cur := n; cur != nil; cur = cur.parent {
		cur.recalc()
	}
}

// InOrder returns every Item in document order. Intended for debugging
// and small-scale tests; callers on the hot path should use GetByIndex.
func (t *OrderStatisticTree) InOrder() []Item {
	out := make([]Item, 0, t.Len())
	var walk func(*ItemNode)
	walk = func(n *ItemNode) {
		if n == nil {
			return
		}
		walk(n.left)
		out = append(out, n.Item)
		walk(n.right)
	}
	walk(t.root)
	return out
}

package replay

import (
	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/egwalker-dev/eg-walker/oplog"
	"github.com/pkg/errors"
)

// indexOfOpID returns the in-order index of the item with the given
// opID, or -1 for NoLV (and for items not yet inserted into the tree at
// all, which integrate never asks about).
func indexOfOpID(ctx *EditContext, opID causalgraph.LV) int {
	if opID == NoLV {
		return -1
	}
	n, ok := ctx.Items.NodeForOpID(opID)
	if !ok {
		return -1
	}
	return ctx.Items.IndexOfItem(n)
}

// retreat1 undoes op lv's effect on the walk's live state: an insert's
// item steps back to NotYetInserted, a delete's target item loses one
// delete count.
func retreat1[T any](ctx *EditContext, ol *oplog.OpLog[T], lv causalgraph.LV) error {
	op := ol.Ops[lv]
	target := lv
	if op.Type == oplog.Delete {
		var ok bool
		target, ok = ctx.DelTargets[lv]
		if !ok {
			return errors.Wrapf(ErrInvariantBroken, "retreat1: no delete target recorded for lv %d", lv)
		}
	}
	node, ok := ctx.Items.NodeForOpID(target)
	if !ok {
		return errors.Wrapf(ErrInvariantBroken, "retreat1: item for lv %d not in tree", target)
	}
	node.Item.CurState--
	ctx.Items.RefreshCountsForItem(node)
	ctx.Hint = nil
	return nil
}

// advance1 replays op lv's effect on the walk's live state, the inverse
// of retreat1, without touching the output snapshot.
func advance1[T any](ctx *EditContext, ol *oplog.OpLog[T], lv causalgraph.LV) error {
	op := ol.Ops[lv]
	target := lv
	if op.Type == oplog.Delete {
		var ok bool
		target, ok = ctx.DelTargets[lv]
		if !ok {
			return errors.Wrapf(ErrInvariantBroken, "advance1: no delete target recorded for lv %d", lv)
		}
	}
	node, ok := ctx.Items.NodeForOpID(target)
	if !ok {
		return errors.Wrapf(ErrInvariantBroken, "advance1: item for lv %d not in tree", target)
	}
	node.Item.CurState++
	ctx.Items.RefreshCountsForItem(node)
	ctx.Hint = nil
	return nil
}

// integrate resolves a new insert's final position among concurrent
// inserts still NotYetInserted at cursorIdx, using the Fugue/YjsMod scan:
// walk forward over NYI items, comparing each against newItem's
// (originLeft, rightParent) bounds and breaking the tie with the
// underlying causal-graph total order when both bounds agree.
func integrate(cg *causalgraph.CausalGraph, ctx *EditContext, newItem Item, cursorIdx, cursorEndPos int) (int, int, error) {
	if cur := ctx.Items.GetByIndex(cursorIdx); cur != nil && cur.Item.CurState != NotYetInserted {
		return cursorIdx, cursorEndPos, nil
	}

	leftIdx := indexOfOpID(ctx, newItem.OriginLeft)
	var rightIdx int
	if newItem.RightParent == NoLV {
		rightIdx = ctx.Items.Len()
	} else {
		rightIdx = indexOfOpID(ctx, newItem.RightParent)
	}

	destIdx, destEndPos := cursorIdx, cursorEndPos
	scanning := false
	idx, endPos := cursorIdx, cursorEndPos

	for {
		other := ctx.Items.GetByIndex(idx)
		if other == nil || other.Item.CurState != NotYetInserted {
			break
		}

		oleftIdx := indexOfOpID(ctx, other.Item.OriginLeft)
		if oleftIdx < leftIdx {
			break
		}
		if oleftIdx == leftIdx {
			var orightIdx int
			if other.Item.RightParent == NoLV {
				orightIdx = ctx.Items.Len()
			} else {
				orightIdx = indexOfOpID(ctx, other.Item.RightParent)
			}
			if orightIdx == rightIdx {
				cmp, err := causalgraph.LVCmp(cg, newItem.OpID, other.Item.OpID)
				if err != nil {
					return 0, 0, err
				}
				if cmp < 0 {
					break
				}
				scanning = false
			} else {
				scanning = orightIdx < rightIdx
			}
		}

		idx++
		if other.Item.EndState == Inserted {
			endPos++
		}
		if !scanning {
			destIdx, destEndPos = idx, endPos
		}
	}

	return destIdx, destEndPos, nil
}

// apply1 applies op lv against the walk's live state and, when sink is
// non-nil, mirrors the visible effect into the output snapshot.
func apply1[T any](cg *causalgraph.CausalGraph, ctx *EditContext, ol *oplog.OpLog[T], sink Sink[T], lv causalgraph.LV) error {
	op := ol.Ops[lv]

	if op.Type == oplog.Insert {
		idx, endPos := ctx.Items.FindByCurPos(op.Pos, ctx.Hint)

		originLeft := NoLV
		if idx > 0 {
			if left := ctx.Items.GetByIndex(idx - 1); left != nil {
				originLeft = left.Item.OpID
			}
		}

		rightParent := NoLV
		for i := idx; ; i++ {
			n := ctx.Items.GetByIndex(i)
			if n == nil {
				break
			}
			if n.Item.CurState != NotYetInserted {
				if n.Item.OriginLeft == originLeft {
					rightParent = n.Item.OpID
				}
				break
			}
		}

		newItem := Item{
			OpID:        lv,
			CurState:    Inserted,
			EndState:    Inserted,
			OriginLeft:  originLeft,
			RightParent: rightParent,
		}

		insertIdx, insertEndPos, err := integrate(cg, ctx, newItem, idx, endPos)
		if err != nil {
			return errors.Wrapf(err, "apply1: integrate lv %d", lv)
		}
		ctx.Items.InsertAt(insertIdx, newItem)
		if sink != nil {
			sink.Insert(insertEndPos, op.Content)
		}
		ctx.Hint = &PosHint{Pos: op.Pos + 1, Idx: insertIdx + 1, EndPos: insertEndPos + 1}
		return nil
	}

	idx, endPos := ctx.Items.FindByCurPos(op.Pos, ctx.Hint)
	for {
		n := ctx.Items.GetByIndex(idx)
		if n == nil {
			return errors.Wrapf(ErrInvariantBroken, "apply1: delete lv %d found no live target at pos %d", lv, op.Pos)
		}
		if n.Item.CurState == Inserted {
			break
		}
		if n.Item.EndState == Inserted {
			endPos++
		}
		idx++
	}

	target := ctx.Items.GetByIndex(idx)
	target.Item.CurState++
	wasVisible := target.Item.EndState == Inserted
	target.Item.EndState++
	ctx.Items.RefreshCountsForItem(target)
	if wasVisible && sink != nil {
		sink.Delete(endPos)
	}
	ctx.DelTargets[lv] = target.Item.OpID
	ctx.Hint = nil
	return nil
}

// traverseAndApply walks every op in [fromOp, toOp), retreating/advancing
// ctx's live state to match each causal-graph entry's parents before
// applying that entry's ops, and materializing visible effects into sink
// (pass nil to skip materialization and only rebuild ctx's tree state).
func traverseAndApply[T any](ctx *EditContext, ol *oplog.OpLog[T], sink Sink[T], fromOp, toOp causalgraph.LV) error {
	return causalgraph.IterVersionsBetween(&ol.CG, fromOp, toOp, func(entry causalgraph.CGEntry, parents []causalgraph.LV) error {
		aOnly, bOnly, err := causalgraph.Diff(&ol.CG, ctx.CurVersion, parents)
		if err != nil {
			return errors.Wrap(err, "traverseAndApply: diff")
		}

		for i := len(aOnly) - 1; i >= 0; i-- {
			r := aOnly[i]
			for v := r.End - 1; v >= r.Start; v-- {
				if err := retreat1(ctx, ol, v); err != nil {
					return errors.Wrap(err, "traverseAndApply: retreat")
				}
			}
		}
		for _, r := range bOnly {
			for v := r.Start; v < r.End; v++ {
				if err := advance1(ctx, ol, v); err != nil {
					return errors.Wrap(err, "traverseAndApply: advance")
				}
			}
		}

		for v := entry.Version; v < entry.VEnd; v++ {
			if err := apply1(&ol.CG, ctx, ol, sink, v); err != nil {
				return errors.Wrap(err, "traverseAndApply: apply")
			}
		}
		ctx.CurVersion = []causalgraph.LV{entry.VEnd - 1}
		return nil
	})
}

package oplog

import (
	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/pkg/errors"
)

// LocalInsert appends one "ins" op per element of content, starting at
// pos, allocating a single new CG entry spanning the whole run (parents
// = current heads). It returns the LVs assigned, in order.
func LocalInsert[T any](ol *OpLog[T], agent causalgraph.AgentID, pos int, content ...T) ([]causalgraph.LV, error) {
	if len(content) == 0 {
		return nil, nil
	}
	seq := causalgraph.NextSeqForAgent(&ol.CG, agent)
	id := causalgraph.RawVersion{Agent: agent, Seq: seq}

	entry, err := causalgraph.AddRaw(&ol.CG, id, len(content), nil)
	if err != nil {
		return nil, errors.Wrap(err, "oplog: LocalInsert")
	}
	if entry == nil {
		return nil, errors.Wrapf(ErrInvariantBroken, "LocalInsert: %s:%d already known", agent, seq)
	}
	if entry.Version != causalgraph.LV(len(ol.Ops)) {
		return nil, errors.Wrapf(ErrInvariantBroken, "LocalInsert: cg lv %d != ops len %d", entry.Version, len(ol.Ops))
	}

	lvs := make([]causalgraph.LV, len(content))
	for i, c := range content {
		ol.Ops = append(ol.Ops, ListOp[T]{Type: Insert, Pos: pos + i, Content: c})
		lvs[i] = entry.Version + causalgraph.LV(i)
	}
	return lvs, nil
}

// LocalDelete appends len "del" ops, all at pos (later deletions in the
// run don't need to shift pos — the deleted items fall out of the
// visible count as they go). len must be >= 1.
func LocalDelete[T any](ol *OpLog[T], agent causalgraph.AgentID, pos int, length int) ([]causalgraph.LV, error) {
	if length == 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "LocalDelete: len must be >= 1")
	}
	seq := causalgraph.NextSeqForAgent(&ol.CG, agent)
	id := causalgraph.RawVersion{Agent: agent, Seq: seq}

	entry, err := causalgraph.AddRaw(&ol.CG, id, length, nil)
	if err != nil {
		return nil, errors.Wrap(err, "oplog: LocalDelete")
	}
	if entry == nil {
		return nil, errors.Wrapf(ErrInvariantBroken, "LocalDelete: %s:%d already known", agent, seq)
	}
	if entry.Version != causalgraph.LV(len(ol.Ops)) {
		return nil, errors.Wrapf(ErrInvariantBroken, "LocalDelete: cg lv %d != ops len %d", entry.Version, len(ol.Ops))
	}

	lvs := make([]causalgraph.LV, length)
	for i := 0; i < length; i++ {
		ol.Ops = append(ol.Ops, ListOp[T]{Type: Delete, Pos: pos})
		lvs[i] = entry.Version + causalgraph.LV(i)
	}
	return lvs, nil
}

// PushOp ingests a single foreign operation already identified by
// rawID/rawParents. It returns false (no error) if the op is already
// known.
func PushOp[T any](ol *OpLog[T], rawID causalgraph.RawVersion, rawParents []causalgraph.RawVersion, opType ListOpType, pos int, content *T) (bool, error) {
	if opType == Insert && content == nil {
		return false, errors.Wrapf(ErrMissingContent, "PushOp: %s:%d", rawID.Agent, rawID.Seq)
	}

	entry, err := causalgraph.AddRaw(&ol.CG, rawID, 1, rawParents)
	if err != nil {
		return false, errors.Wrap(err, "oplog: PushOp")
	}
	if entry == nil {
		return false, nil
	}
	if entry.Version != causalgraph.LV(len(ol.Ops)) {
		return false, errors.Wrapf(ErrInvariantBroken, "PushOp: cg lv %d != ops len %d", entry.Version, len(ol.Ops))
	}

	op := ListOp[T]{Type: opType, Pos: pos}
	if content != nil {
		op.Content = *content
	}
	ol.Ops = append(ol.Ops, op)
	return true, nil
}

// MergeOplogInto copies every op in src that dest doesn't yet have into
// dest, preserving each op's original parents. Idempotent and
// order-independent: calling it twice changes nothing the second time,
// and merging sources in either order leaves dest with the same set of
// ops (their LVs follow the order in which they were merged).
func MergeOplogInto[T any](dest, src *OpLog[T]) error {
	summary, err := causalgraph.SummarizeVersion(&dest.CG, dest.CG.Heads)
	if err != nil {
		return errors.Wrap(err, "MergeOplogInto: summarize dest")
	}

	// Express dest's known versions as a src-local LV frontier, then diff
	// against src's heads to find what src has that dest doesn't.
	destKnownInSrc, _, err := causalgraph.IntersectWithSummary(&src.CG, summary, nil)
	if err != nil {
		return errors.Wrap(err, "MergeOplogInto: intersect dest-known")
	}
	_, srcOnly, err := causalgraph.Diff(&src.CG, destKnownInSrc, src.CG.Heads)
	if err != nil {
		return errors.Wrap(err, "MergeOplogInto: diff src-only")
	}

	serialized, err := causalgraph.SerializeDiff(&src.CG, srcOnly)
	if err != nil {
		return errors.Wrap(err, "MergeOplogInto: serialize")
	}
	added, err := causalgraph.MergePartialVersions(&dest.CG, serialized)
	if err != nil {
		return errors.Wrap(err, "MergeOplogInto: merge partial versions")
	}

	return causalgraph.IterVersionsBetween(&dest.CG, added.Start, added.End, func(entry causalgraph.CGEntry, parents []causalgraph.LV) error {
		for v := entry.Version; v < entry.VEnd; v++ {
			srcLV, err := causalgraph.RawToLV(&src.CG, entry.Agent, entry.Seq+int(v-entry.Version))
			if err != nil {
				return errors.Wrapf(err, "MergeOplogInto: locate op for %s:%d", entry.Agent, entry.Seq)
			}
			if int(srcLV) >= len(src.Ops) {
				return errors.Wrapf(ErrInvariantBroken, "MergeOplogInto: src op for lv %d missing", srcLV)
			}
			for int(v) >= len(dest.Ops) {
				dest.Ops = append(dest.Ops, ListOp[T]{})
			}
			dest.Ops[v] = src.Ops[srcLV]
		}
		return nil
	})
}

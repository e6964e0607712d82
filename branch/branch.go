// Package branch implements the snapshot+frontier façade over an OpLog:
// full checkout, and incremental merge via either a fast-forward
// positional apply or a full Fugue replay seeded from the common
// ancestor.
package branch

import (
	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/egwalker-dev/eg-walker/oplog"
	"github.com/egwalker-dev/eg-walker/replay"
	"github.com/egwalker-dev/eg-walker/rope"
	"github.com/pkg/errors"
)

// placeholderOffset disjoins synthetic pre-conflict opIds from real LVs,
// per spec design notes §9, so itemsByLV lookups for placeholders can
// never collide with real ops.
const placeholderOffset = causalgraph.LV(1) << 40

// Branch is a materialized snapshot at a frontier.
type Branch[T any] struct {
	Snapshot []T
	Version  []causalgraph.LV
}

// CreateEmptyBranch returns a Branch at the empty frontier.
func CreateEmptyBranch[T any]() *Branch[T] {
	return &Branch[T]{Snapshot: []T{}, Version: []causalgraph.LV{}}
}

// Checkout runs a full replay of ol from scratch and returns the
// resulting Branch.
func Checkout[T any](ol *oplog.OpLog[T]) (*Branch[T], error) {
	ctx := replay.NewEditContext()
	snapshot := []T{}
	sink := replay.SliceSink[T]{Target: &snapshot}
	if err := replay.TraverseAndApply(ctx, ol, sink, 0, causalgraph.NextLV(&ol.CG)); err != nil {
		return nil, errors.Wrap(err, "branch: checkout")
	}
	return &Branch[T]{Snapshot: snapshot, Version: ol.GetLatestVersion()}, nil
}

// CheckoutSimpleString specializes Checkout to T=rune, materializing
// through a rope.Rope instead of []rune so a splice copies at most one
// rope leaf rather than the whole document (the rope itself is not
// rebalanced; see package rope).
func CheckoutSimpleString(ol *oplog.OpLog[rune]) (string, error) {
	ctx := replay.NewEditContext()
	r := rope.New()
	if err := replay.TraverseAndApply[rune](ctx, ol, r, 0, causalgraph.NextLV(&ol.CG)); err != nil {
		return "", errors.Wrap(err, "branch: checkout simple string")
	}
	return r.String(), nil
}

// ApplyFastForward applies every op in ranges positionally against
// snapshot and returns the result. Exported for package document, which
// drives its own canFastForward gate above this primitive (spec.md
// §4.7) rather than going through MergeChangesIntoBranch's looser
// isFastForward gate.
func ApplyFastForward[T any](ol *oplog.OpLog[T], snapshot []T, ranges []causalgraph.LVRange) []T {
	return fastForwardApply(ol, snapshot, ranges)
}

// fastForwardApply applies every op in ranges positionally, in ascending
// LV order, directly against snapshot.
func fastForwardApply[T any](ol *oplog.OpLog[T], snapshot []T, ranges []causalgraph.LVRange) []T {
	for _, r := range ranges {
		for lv := r.Start; lv < r.End; lv++ {
			op := ol.Ops[lv]
			switch op.Type {
			case oplog.Insert:
				snapshot = append(snapshot[:op.Pos], append([]T{op.Content}, snapshot[op.Pos:]...)...)
			case oplog.Delete:
				snapshot = append(snapshot[:op.Pos], snapshot[op.Pos+1:]...)
			}
		}
	}
	return snapshot
}

// seedPlaceholders pre-populates ctx's OST with one Inserted/Inserted
// placeholder item per LV already known to the common-ancestor prefix,
// so that apply1's position math for the conflict and new-ops regions
// lands correctly relative to content both sides already share. The
// bound must stop at the common ancestor, not at branch.Version's own
// tip: anything between them is exactly what conflictOps is about to
// replay as a real item, and seeding a placeholder for it too would
// double-count that content under two different opIDs.
func seedPlaceholders(ctx *replay.EditContext, upTo causalgraph.LV) {
	for lv := causalgraph.LV(0); lv < upTo; lv++ {
		ctx.Items.InsertAt(ctx.Items.Len(), replay.Item{
			OpID:        lv + placeholderOffset,
			CurState:    replay.Inserted,
			EndState:    replay.Inserted,
			OriginLeft:  replay.NoLV,
			RightParent: replay.NoLV,
		})
	}
}

func maxLV(vs []causalgraph.LV) causalgraph.LV {
	m := causalgraph.LV(-1)
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}

// MergeChangesIntoBranch merges ol's state at mergeVersion (ol's heads
// if nil) into branch, taking the fast-forward path when safe and
// falling back to a full replay seeded from the common ancestor
// otherwise.
func MergeChangesIntoBranch[T any](branch *Branch[T], ol *oplog.OpLog[T], mergeVersion []causalgraph.LV) error {
	if mergeVersion == nil {
		mergeVersion = ol.GetLatestVersion()
	}

	ff, err := causalgraph.IsFastForward(&ol.CG, branch.Version, mergeVersion)
	if err != nil {
		return errors.Wrap(err, "branch: merge: fast-forward test")
	}

	if ff {
		_, bOnly, err := causalgraph.Diff(&ol.CG, branch.Version, mergeVersion)
		if err != nil {
			return errors.Wrap(err, "branch: merge: diff")
		}
		branch.Snapshot = fastForwardApply(ol, branch.Snapshot, bOnly)
		dominators, err := causalgraph.FindDominators(&ol.CG, append(append([]causalgraph.LV(nil), branch.Version...), mergeVersion...))
		if err != nil {
			return errors.Wrap(err, "branch: merge: dominators")
		}
		branch.Version = dominators
		return nil
	}

	var conflictOps, newOps []causalgraph.LVRange
	common, err := causalgraph.FindConflicting(&ol.CG, branch.Version, mergeVersion, func(r causalgraph.LVRange, flag causalgraph.ConflictFlag) {
		switch flag {
		case causalgraph.FlagOnlyA:
			conflictOps = append(conflictOps, r)
		case causalgraph.FlagOnlyB:
			newOps = append(newOps, r)
		}
	})
	if err != nil {
		return errors.Wrap(err, "branch: merge: find conflicting")
	}
	reverseRanges(conflictOps)
	reverseRanges(newOps)

	ctx := replay.NewEditContext()
	ctx.CurVersion = common
	seedPlaceholders(ctx, maxLV(common)+1)

	for _, r := range conflictOps {
		if err := replay.TraverseAndApply[T](ctx, ol, nil, r.Start, r.End); err != nil {
			return errors.Wrap(err, "branch: merge: replay conflict region")
		}
	}
	for _, r := range newOps {
		if err := replay.TraverseAndApply[T](ctx, ol, replay.SliceSink[T]{Target: &branch.Snapshot}, r.Start, r.End); err != nil {
			return errors.Wrap(err, "branch: merge: replay new ops")
		}
	}

	dominators, err := causalgraph.FindDominators(&ol.CG, append(append([]causalgraph.LV(nil), branch.Version...), mergeVersion...))
	if err != nil {
		return errors.Wrap(err, "branch: merge: dominators")
	}
	branch.Version = dominators
	return nil
}

// reverseRanges reverses r in place; FindConflicting visits in
// descending LV order but traverseAndApply needs ascending.
func reverseRanges(r []causalgraph.LVRange) {
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
}

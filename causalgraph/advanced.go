package causalgraph

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/egwalker-dev/eg-walker/internal/pqueue"
	"github.com/egwalker-dev/eg-walker/internal/rle"
	"github.com/pkg/errors"
)

// ancestorLVSet returns every LV reachable by walking parents from
// frontier (frontier included), using the comparator priority queue from
// internal/pqueue to drain versions in descending order the way spec.md
// §4.2 describes for the diff/dominators walks.
func ancestorLVSet(cg *CausalGraph, frontier []LV) (mapset.Set[LV], error) {
	visited := mapset.NewSet[LV]()
	q := pqueue.New[LV, struct{}](func(a, b LV) bool { return a < b })
	for _, v := range frontier {
		if v >= 0 {
			q.Push(v, struct{}{})
		}
	}
	for !q.Empty() {
		v := q.Pop().Value
		if visited.Contains(v) {
			continue
		}
		visited.Add(v)
		entry, offset, found := findEntryContaining(cg, v)
		if !found {
			return nil, errors.Wrapf(ErrInvalidVersion, "lv %d", v)
		}
		for _, p := range parentsOf(entry, offset) {
			if p >= 0 {
				q.Push(p, struct{}{})
			}
		}
	}
	return visited, nil
}

// toRanges sorts a set of LVs ascending and coalesces adjacent values
// into LVRange runs.
func toRanges(set mapset.Set[LV]) []LVRange {
	vs := set.ToSlice()
	vs = rle.SortAndDedup(vs)
	var ranges []rle.Range[LV]
	for _, v := range vs {
		ranges = rle.PushCoalesced(ranges, v, v+1)
	}
	out := make([]LVRange, len(ranges))
	for i, r := range ranges {
		out[i] = LVRange{Start: r.Start, End: r.End}
	}
	return out
}

// Diff computes the LVs reachable from a but not b (aOnly) and from b but
// not a (bOnly), both as ascending, coalesced LVRange lists.
func Diff(cg *CausalGraph, a, b []LV) (aOnly, bOnly []LVRange, err error) {
	aSet, err := ancestorLVSet(cg, a)
	if err != nil {
		return nil, nil, err
	}
	bSet, err := ancestorLVSet(cg, b)
	if err != nil {
		return nil, nil, err
	}
	return toRanges(aSet.Difference(bSet)), toRanges(bSet.Difference(aSet)), nil
}

// IsFastForward reports whether every LV reachable from "from" is still
// reachable from "to" — i.e. diff(from, to).aOnly is empty.
func IsFastForward(cg *CausalGraph, from, to []LV) (bool, error) {
	aOnly, _, err := Diff(cg, from, to)
	if err != nil {
		return false, err
	}
	return len(aOnly) == 0, nil
}

// VersionContainsLV reports whether target is an ancestor of (or equal
// to) any LV in frontier.
func VersionContainsLV(cg *CausalGraph, frontier []LV, target LV) (bool, error) {
	if target < 0 || target >= cg.nextLV {
		return false, errors.Wrapf(ErrInvalidVersion, "lv %d", target)
	}
	for _, v := range frontier {
		if v == target {
			return true, nil
		}
	}
	set, err := ancestorLVSet(cg, frontier)
	if err != nil {
		return false, err
	}
	return set.Contains(target), nil
}

// Contains is VersionContainsLV without the error return, for callers
// that already know both frontier and target are valid.
func Contains(cg *CausalGraph, frontier []LV, target LV) bool {
	ok, err := VersionContainsLV(cg, frontier, target)
	return err == nil && ok
}

// SortLVsByRaw returns a copy of lvs sorted ascending by RawVersion
// (agent, then seq) rather than by raw LV order, so output is
// deterministic across merges that assigned LVs in different orders.
func SortLVsByRaw(cg *CausalGraph, lvs []LV) ([]LV, error) {
	sorted := append([]LV(nil), lvs...)
	var sortErr error
	sort.SliceStable(sorted, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		c, err := LVCmp(cg, sorted[i], sorted[j])
		if err != nil {
			sortErr = err
			return false
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return sorted, nil
}

// FindDominators returns the subset of versions whose members are not
// ancestors of any other member.
func FindDominators(cg *CausalGraph, versions []LV) ([]LV, error) {
	uniq := rle.SortAndDedup(append([]LV(nil), versions...))
	if len(uniq) <= 1 {
		for _, v := range uniq {
			if v < 0 || v >= cg.nextLV {
				return nil, errors.Wrapf(ErrInvalidVersion, "lv %d", v)
			}
		}
		return uniq, nil
	}

	ancestorSets := make([]mapset.Set[LV], len(uniq))
	for i, v := range uniq {
		if v < 0 || v >= cg.nextLV {
			return nil, errors.Wrapf(ErrInvalidVersion, "lv %d", v)
		}
		set, err := ancestorLVSet(cg, []LV{v})
		if err != nil {
			return nil, err
		}
		ancestorSets[i] = set
	}

	dominators := make([]LV, 0, len(uniq))
	for i, v := range uniq {
		dominated := false
		for j, other := range uniq {
			if i == j {
				continue
			}
			if ancestorSets[j].Contains(v) && !ancestorSets[i].Contains(other) {
				dominated = true
				break
			}
		}
		if !dominated {
			dominators = append(dominators, v)
		}
	}
	return rle.SortAndDedup(dominators), nil
}

// FindConflicting walks both frontiers backward through the graph,
// calling visit once per LV (as a one-element range) that is only in a's
// ancestry or only in b's, in descending LV order, and returns the
// common-ancestor frontier. LVs in both ancestries are not visited.
type ConflictFlag int

const (
	FlagOnlyA ConflictFlag = iota
	FlagOnlyB
	FlagShared
)

func FindConflicting(cg *CausalGraph, a, b []LV, visit func(r LVRange, flag ConflictFlag)) ([]LV, error) {
	aSet, err := ancestorLVSet(cg, a)
	if err != nil {
		return nil, err
	}
	bSet, err := ancestorLVSet(cg, b)
	if err != nil {
		return nil, err
	}

	// The shared root both frontiers descend from is the dominator
	// frontier of their ancestor *intersection*, not of a∪b: when a and
	// b are themselves concurrent, dominators(a∪b) is just {a, b} again,
	// which would make commonSet swallow every element of a∪b below and
	// visit would never fire.
	commonSet := aSet.Intersect(bSet)
	commonAncestors, err := FindDominators(cg, commonSet.ToSlice())
	if err != nil {
		return nil, err
	}

	all := rle.SortAndDedup(append(aSet.ToSlice(), bSet.ToSlice()...))
	for i := len(all) - 1; i >= 0; i-- {
		v := all[i]
		if commonSet.Contains(v) {
			continue
		}
		inA, inB := aSet.Contains(v), bSet.Contains(v)
		var flag ConflictFlag
		switch {
		case inA && inB:
			flag = FlagShared
		case inA:
			flag = FlagOnlyA
		default:
			flag = FlagOnlyB
		}
		visit(LVRange{Start: v, End: v + 1}, flag)
	}
	return commonAncestors, nil
}

// SerializedDiffEntry is the transport form of a diffed CG run.
type SerializedDiffEntry struct {
	Agent   AgentID
	Seq     int
	Len     int
	Parents []RawVersion
}

// SerializeDiff converts LVRanges into the wire-friendly entry list
// described in spec.md §6.
func SerializeDiff(cg *CausalGraph, ranges []LVRange) ([]SerializedDiffEntry, error) {
	out := make([]SerializedDiffEntry, 0, len(ranges))
	for _, r := range ranges {
		err := IterVersionsBetween(cg, r.Start, r.End, func(entry CGEntry, parents []LV) error {
			rawParents, err := LVToRawList(cg, parents)
			if err != nil {
				return err
			}
			if rawParents == nil {
				// A root run keeps an empty, non-nil parent list: AddRaw
				// reads nil parents as "the receiving graph's heads".
				rawParents = []RawVersion{}
			}
			out = append(out, SerializedDiffEntry{
				Agent:   entry.Agent,
				Seq:     entry.Seq,
				Len:     entry.Len(),
				Parents: rawParents,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MergePartialVersions ingests serialized entries via AddRaw, returning
// the [startLV, endLV) range that was actually added (entries already
// fully known contribute nothing and may shrink the observed range).
func MergePartialVersions(cg *CausalGraph, entries []SerializedDiffEntry) (LVRange, error) {
	start := cg.nextLV
	for _, e := range entries {
		if _, err := AddRaw(cg, RawVersion{Agent: e.Agent, Seq: e.Seq}, e.Len, e.Parents); err != nil {
			return LVRange{}, errors.Wrapf(err, "MergePartialVersions: %s:%d len %d", e.Agent, e.Seq, e.Len)
		}
	}
	return LVRange{Start: start, End: cg.nextLV}, nil
}

// IntersectWithSummary walks summary against cg's own AgentToVersion
// index, returning the dominators of (known LVs ++ seed) and, when
// summary names seqs cg has never seen, the remainder of summary that
// stayed unknown.
func IntersectWithSummary(cg *CausalGraph, summary VersionSummary, seed []LV) ([]LV, VersionSummary, error) {
	known := append([]LV(nil), seed...)
	var unknown VersionSummary

	for agent, ranges := range summary {
		local := cg.AgentToVersion[agent]
		for _, r := range ranges {
			seq, seqEnd := r[0], r[1]
			for seq < seqEnd {
				entry, offset, found := findEntryContainingRaw(cg, agent, seq)
				if !found {
					// Find how far the unknown run extends before the next
					// known client entry (or seqEnd).
					runEnd := seqEnd
					idx := sortSearchClientSeq(local, seq)
					if idx < len(local) && local[idx].Seq < runEnd {
						runEnd = local[idx].Seq
					}
					if unknown == nil {
						unknown = make(VersionSummary)
					}
					unknown[agent] = append(unknown[agent], [2]int{seq, runEnd})
					seq = runEnd
					continue
				}
				runLen := entry.Len() - offset
				if seq+runLen > seqEnd {
					runLen = seqEnd - seq
				}
				for i := 0; i < runLen; i++ {
					known = append(known, entry.Version+LV(offset+i))
				}
				seq += runLen
			}
		}
	}

	dominators, err := FindDominators(cg, known)
	if err != nil {
		return nil, nil, err
	}
	return dominators, unknown, nil
}

func sortSearchClientSeq(entries []ClientEntry, seq int) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].Seq < seq {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Relation describes the ancestry relationship between two versions.
type Relation string

const (
	RelationEqual      Relation = "eq"
	RelationAncestor   Relation = "ancestor"
	RelationDescendant Relation = "descendant"
	RelationConcurrent Relation = "concurrent"
)

// CompareVersions determines the relationship between a and b.
func CompareVersions(cg *CausalGraph, a, b LV) (Relation, error) {
	if a == b {
		return RelationEqual, nil
	}
	aIsAncestor, err := VersionContainsLV(cg, []LV{b}, a)
	if err != nil {
		return "", err
	}
	if aIsAncestor {
		return RelationAncestor, nil
	}
	bIsAncestor, err := VersionContainsLV(cg, []LV{a}, b)
	if err != nil {
		return "", err
	}
	if bIsAncestor {
		return RelationDescendant, nil
	}
	return RelationConcurrent, nil
}

package causalgraph

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/egwalker-dev/eg-walker/internal/rle"
	"github.com/pkg/errors"
)

// NextLV returns the next available local version in the graph.
func NextLV(cg *CausalGraph) LV { return cg.nextLV }

// NextSeqForAgent returns the next sequence number cg expects from agent.
// A never-before-seen agent starts at 0.
func NextSeqForAgent(cg *CausalGraph, agent AgentID) int {
	entries := cg.AgentToVersion[agent]
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].SeqEnd
}

// HasVersion reports whether (agent, seq) is already known to cg.
func HasVersion(cg *CausalGraph, agent AgentID, seq int) bool {
	_, _, found := findEntryContainingRaw(cg, agent, seq)
	return found
}

// LVCmp is the total order used as a deterministic concurrent-insertion
// tie-break: compare by RawVersion, agent lexicographically then seq
// numerically.
func LVCmp(cg *CausalGraph, a, b LV) (int, error) {
	ra, ok := LVToRaw(cg, a)
	if !ok {
		return 0, errors.Wrapf(ErrInvalidVersion, "lv %d", a)
	}
	rb, ok := LVToRaw(cg, b)
	if !ok {
		return 0, errors.Wrapf(ErrInvalidVersion, "lv %d", b)
	}
	if ra.Agent != rb.Agent {
		if ra.Agent < rb.Agent {
			return -1, nil
		}
		return 1, nil
	}
	switch {
	case ra.Seq < rb.Seq:
		return -1, nil
	case ra.Seq > rb.Seq:
		return 1, nil
	default:
		return 0, nil
	}
}

// findEntryContainingRaw binary-searches an agent's ClientEntry runs for
// the one covering seq, then locates the matching CGEntry.
func findEntryContainingRaw(cg *CausalGraph, agent AgentID, seq int) (*CGEntry, int, bool) {
	clientEntries, ok := cg.AgentToVersion[agent]
	if !ok {
		return nil, -1, false
	}

	idx := sort.Search(len(clientEntries), func(i int) bool {
		return clientEntries[i].SeqEnd > seq
	})
	if idx >= len(clientEntries) || clientEntries[idx].Seq > seq {
		return nil, -1, false
	}

	lv := clientEntries[idx].Version + LV(seq-clientEntries[idx].Seq)
	return findEntryContaining(cg, lv)
}

// findEntryContaining binary-searches cg.Entries for the run covering v.
func findEntryContaining(cg *CausalGraph, v LV) (*CGEntry, int, bool) {
	if v < 0 || v >= cg.nextLV {
		return nil, -1, false
	}
	idx := sort.Search(len(cg.Entries), func(i int) bool {
		return cg.Entries[i].VEnd > v
	})
	if idx < len(cg.Entries) && cg.Entries[idx].Version <= v {
		entry := &cg.Entries[idx]
		return entry, int(v - entry.Version), true
	}
	return nil, -1, false
}

// FindEntryContaining is the exported form of findEntryContaining.
func FindEntryContaining(cg *CausalGraph, v LV) (CGEntry, int, bool) {
	e, off, ok := findEntryContaining(cg, v)
	if !ok {
		return CGEntry{}, -1, false
	}
	return *e, off, true
}

// parentsOf returns the parents of v: the entry's own Parents when v is
// the first version of its run, else the single implicit predecessor.
func parentsOf(entry *CGEntry, offset int) []LV {
	if offset == 0 {
		return entry.Parents
	}
	return []LV{entry.Version + LV(offset) - 1}
}

// LVToRaw converts an LV to its RawVersion.
func LVToRaw(cg *CausalGraph, v LV) (RawVersion, bool) {
	entry, offset, found := findEntryContaining(cg, v)
	if !found {
		return RawVersion{}, false
	}
	return RawVersion{Agent: entry.Agent, Seq: entry.Seq + offset}, true
}

// LVToRawList converts every LV in lvs to its RawVersion.
func LVToRawList(cg *CausalGraph, lvs []LV) ([]RawVersion, error) {
	if len(lvs) == 0 {
		return nil, nil
	}
	raws := make([]RawVersion, len(lvs))
	for i, lv := range lvs {
		rv, ok := LVToRaw(cg, lv)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidVersion, "lv %d", lv)
		}
		raws[i] = rv
	}
	return raws, nil
}

// RawToLV converts (agent, seq) to its LV.
func RawToLV(cg *CausalGraph, agent AgentID, seq int) (LV, error) {
	entry, offset, found := findEntryContainingRaw(cg, agent, seq)
	if !found {
		return -1, errors.Wrapf(ErrInvalidVersion, "raw version %s:%d", agent, seq)
	}
	return entry.Version + LV(offset), nil
}

// AdvanceFrontier removes every element of f that appears in parents,
// then appends vLast and re-sorts ascending. It never checks ancestry
// transitively: callers only reach this once ops arrive in causal order.
func AdvanceFrontier(f []LV, vLast LV, parents []LV) []LV {
	kept := rle.Remove(append([]LV(nil), f...), parents)
	kept = append(kept, vLast)
	return rle.SortAndDedup(kept)
}

// tryCoalesce reports whether appending [id.Seq, id.Seq+length) at
// startLV onto the last existing CGEntry for this agent would keep the
// run contiguous in both LV and seq space, with the new run's sole
// parent being the previous run's last LV — the RLE coalescing rule from
// spec.md §3.
func tryCoalesce(cg *CausalGraph, id RawVersion, length int, parentLVs []LV, startLV LV) bool {
	n := len(cg.Entries)
	if n == 0 {
		return false
	}
	last := &cg.Entries[n-1]
	if last.Agent != id.Agent || last.VEnd != startLV || last.Seq+last.Len() != id.Seq {
		return false
	}
	if len(parentLVs) != 1 || parentLVs[0] != last.VEnd-1 {
		return false
	}
	last.VEnd = startLV + LV(length)
	return true
}

// Add appends a new version span [seqStart, seqEnd) for agent to the
// graph, with parents given as LVs rather than RawVersions. It's a thin
// wrapper over AddRaw for callers that already have LV parents in hand
// (e.g. a frontier from FindDominators) and would otherwise have to
// round-trip them through LVToRaw themselves.
func Add(cg *CausalGraph, agent AgentID, seqStart, seqEnd int, parents []LV) (*CGEntry, error) {
	var rawParents []RawVersion
	if parents != nil {
		rawParents = make([]RawVersion, len(parents))
		for i, lv := range parents {
			rv, ok := LVToRaw(cg, lv)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidVersion, "Add: parent lv %d", lv)
			}
			rawParents[i] = rv
		}
	}
	return AddRaw(cg, RawVersion{Agent: agent, Seq: seqStart}, seqEnd-seqStart, rawParents)
}

// AddRaw appends a new version span [id.Seq, id.Seq+length) for id.Agent
// to the graph. If the entire range is already known it is a no-op that
// returns (nil, nil). rawParents == nil means "use the graph's current
// heads."
func AddRaw(cg *CausalGraph, id RawVersion, length int, rawParents []RawVersion) (*CGEntry, error) {
	if length <= 0 {
		return nil, errors.New("causalgraph: AddRaw length must be positive")
	}

	// Skip any prefix of [id.Seq, id.Seq+length) already known for this
	// agent.
	seq := id.Seq
	end := id.Seq + length
	for seq < end && HasVersion(cg, id.Agent, seq) {
		seq++
	}
	if seq >= end {
		return nil, nil
	}
	skipped := seq - id.Seq
	length -= skipped
	id = RawVersion{Agent: id.Agent, Seq: seq}
	if skipped > 0 {
		// The first unknown version's parent is its known predecessor in
		// the same run.
		rawParents = []RawVersion{{Agent: id.Agent, Seq: seq - 1}}
	}

	var parentLVs []LV
	if rawParents == nil {
		parentLVs = append([]LV(nil), cg.Heads...)
	} else {
		parentLVs = make([]LV, 0, len(rawParents))
		for _, rp := range rawParents {
			lv, err := RawToLV(cg, rp.Agent, rp.Seq)
			if err != nil {
				return nil, errors.Wrapf(err, "AddRaw: parent %s:%d", rp.Agent, rp.Seq)
			}
			parentLVs = append(parentLVs, lv)
		}
	}
	parentLVs = rle.SortAndDedup(parentLVs)

	startLV := cg.nextLV
	endLV := startLV + LV(length)
	cg.nextLV = endLV

	var newEntry *CGEntry
	if tryCoalesce(cg, id, length, parentLVs, startLV) {
		newEntry = &cg.Entries[len(cg.Entries)-1]
	} else {
		cg.Entries = append(cg.Entries, CGEntry{
			Agent:   id.Agent,
			Seq:     id.Seq,
			Version: startLV,
			VEnd:    endLV,
			Parents: parentLVs,
		})
		newEntry = &cg.Entries[len(cg.Entries)-1]
	}

	addClientEntry(cg, id.Agent, id.Seq, id.Seq+length, startLV)
	cg.Heads = AdvanceFrontierSpan(cg.Heads, startLV, endLV, parentLVs)

	return newEntry, nil
}

// AdvanceFrontierSpan removes parents from f and appends every LV in
// [startLV, endLV), used by AddRaw to advance the frontier over a
// whole run at once (AdvanceFrontier only appends a single vLast).
func AdvanceFrontierSpan(f []LV, startLV, endLV LV, parents []LV) []LV {
	kept := rle.Remove(append([]LV(nil), f...), parents)
	for v := startLV; v < endLV; v++ {
		kept = append(kept, v)
	}
	return rle.SortAndDedup(kept)
}

// addClientEntry inserts a [seq, seqEnd) -> version run into an agent's
// ClientEntry list, coalescing with its predecessor when contiguous in
// both seq and LV, and supporting mid-list insertion for agents that
// have edited multiple branches out of seq order.
func addClientEntry(cg *CausalGraph, agent AgentID, seq, seqEnd int, version LV) {
	entries := cg.AgentToVersion[agent]
	idx := sort.Search(len(entries), func(i int) bool { return entries[i].Seq >= seq })

	if idx > 0 {
		prev := &entries[idx-1]
		if prev.SeqEnd == seq && prev.Version+LV(prev.SeqEnd-prev.Seq) == version {
			prev.SeqEnd = seqEnd
			cg.AgentToVersion[agent] = entries
			return
		}
	}

	entries = append(entries, ClientEntry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = ClientEntry{Seq: seq, SeqEnd: seqEnd, Version: version}
	cg.AgentToVersion[agent] = entries
}

// IterVersionsBetween walks the CG entries covering [lvStart, lvEnd),
// calling fn once per contiguous sub-run with that sub-run's effective
// parents (the entry's own Parents at a run boundary, else the single
// implicit predecessor).
func IterVersionsBetween(cg *CausalGraph, lvStart, lvEnd LV, fn func(entry CGEntry, parents []LV) error) error {
	if lvStart >= lvEnd {
		return nil
	}
	v := lvStart
	for v < lvEnd {
		entry, offset, found := findEntryContaining(cg, v)
		if !found {
			return errors.Wrapf(ErrInvalidVersion, "lv %d", v)
		}
		sliceEnd := entry.VEnd
		if sliceEnd > lvEnd {
			sliceEnd = lvEnd
		}
		parents := parentsOf(entry, offset)
		sub := CGEntry{
			Agent:   entry.Agent,
			Seq:     entry.Seq + offset,
			Version: v,
			VEnd:    sliceEnd,
			Parents: parents,
		}
		if err := fn(sub, parents); err != nil {
			return err
		}
		v = sliceEnd
	}
	return nil
}

// SummarizeVersion walks every ancestor of frontier and returns the
// coalesced per-agent seq ranges it covers.
func SummarizeVersion(cg *CausalGraph, frontier []LV) (VersionSummary, error) {
	summary := make(VersionSummary)
	if len(frontier) == 0 {
		return summary, nil
	}

	visited := mapset.NewSet[LV]()
	queue := append([]LV(nil), frontier...)
	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if v < 0 || visited.Contains(v) {
			continue
		}
		visited.Add(v)

		entry, offset, found := findEntryContaining(cg, v)
		if !found {
			return nil, errors.Wrapf(ErrInvalidVersion, "lv %d", v)
		}
		queue = append(queue, parentsOf(entry, offset)...)
	}

	byAgent := make(map[AgentID][]int)
	for _, v := range visited.ToSlice() {
		raw, _ := LVToRaw(cg, v)
		byAgent[raw.Agent] = append(byAgent[raw.Agent], raw.Seq)
	}
	for agent, seqs := range byAgent {
		sort.Ints(seqs)
		ranges := make([][2]int, 0, len(seqs))
		for _, s := range seqs {
			if n := len(ranges); n > 0 && ranges[n-1][1] == s {
				ranges[n-1][1] = s + 1
			} else {
				ranges = append(ranges, [2]int{s, s + 1})
			}
		}
		summary[agent] = ranges
	}
	return summary, nil
}

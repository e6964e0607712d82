// Package causalgraph implements the run-length-encoded causal graph:
// storage of (agent, seq) -> local version with parent pointers, and the
// ancestry queries (diff, dominators, conflict walk, version-contains)
// the replay engine drives over it.
package causalgraph

import (
	"github.com/pkg/errors"
)

// AgentID identifies one peer/session producing operations.
type AgentID string

// LV is a dense, append-order-assigned local version: the identity of
// one primitive operation within one peer's causal graph.
type LV int

// RawVersion is the globally stable (agent, seq) identity, independent
// of any one peer's local assignment order.
type RawVersion struct {
	Agent AgentID
	Seq   int
}

// LVRange is a half-open [Start, End) run of local versions.
type LVRange struct {
	Start LV
	End   LV
}

// CGEntry is one RLE run of the causal graph: the half-open LV range
// [Version, VEnd) belonging to Agent starting at Seq, with Parents
// naming the parents of the run's first version (every later version in
// the run implicitly has the previous version as its sole parent).
type CGEntry struct {
	Version LV
	VEnd    LV
	Agent   AgentID
	Seq     int
	Parents []LV
}

// Len reports how many local versions this entry spans.
func (e CGEntry) Len() int { return int(e.VEnd - e.Version) }

// ClientEntry is one RLE run in an agent's own seq -> LV index.
type ClientEntry struct {
	Seq     int
	SeqEnd  int
	Version LV
}

// VersionSummary maps an agent to its coalesced, ascending [start, end)
// seq ranges — the wire-friendly description of "everything I've seen
// from this agent."
type VersionSummary map[AgentID][][2]int

// CausalGraph is the DAG of every known operation, RLE-compressed.
type CausalGraph struct {
	Heads          []LV
	Entries        []CGEntry
	AgentToVersion map[AgentID][]ClientEntry
	nextLV         LV
}

// Sentinel error kinds from spec.md §7. Wrap these with
// github.com/pkg/errors so callers can both errors.Is-match the kind and
// read which LV/RawVersion triggered it.
var (
	ErrInvalidVersion  = errors.New("causalgraph: invalid version")
	ErrInvariantBroken = errors.New("causalgraph: invariant broken")
)

// CreateCG returns a new, empty CausalGraph.
func CreateCG() *CausalGraph {
	return &CausalGraph{
		AgentToVersion: make(map[AgentID][]ClientEntry),
	}
}

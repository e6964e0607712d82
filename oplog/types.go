// Package oplog implements the operation log: the ordered list of
// insert/delete operations tied 1:1 to causal graph entries.
package oplog

import (
	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/pkg/errors"
)

// ListOpType tags a ListOp as an insert or a delete.
type ListOpType string

const (
	Insert ListOpType = "ins"
	Delete ListOpType = "del"
)

// ListOp is one primitive edit: an insert carries Content, a delete
// doesn't. Pos is the 0-indexed position in the author's own view of the
// document at the frontier the op was issued from.
type ListOp[T any] struct {
	Type    ListOpType
	Pos     int
	Content T
}

// OpLog is the append-only list of operations, one per local version in
// CG: len(Ops) == causalgraph.NextLV(&CG) always.
type OpLog[T any] struct {
	Ops []ListOp[T]
	CG  causalgraph.CausalGraph
}

// Sentinel error kinds from spec.md §7.
var (
	ErrInvalidLength   = errors.New("oplog: invalid length")
	ErrMissingContent  = errors.New("oplog: missing content")
	ErrInvariantBroken = errors.New("oplog: invariant broken")
)

// New returns an empty OpLog.
func New[T any]() *OpLog[T] {
	return &OpLog[T]{
		Ops: []ListOp[T]{},
		CG:  *causalgraph.CreateCG(),
	}
}

// GetLatestVersion returns a copy of the current frontier.
func (ol *OpLog[T]) GetLatestVersion() []causalgraph.LV {
	return append([]causalgraph.LV(nil), ol.CG.Heads...)
}

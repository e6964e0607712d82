// Package document is the mutable-document façade over oplog+branch:
// local edits keep the snapshot in sync eagerly, remote merges only
// invoke the replay engine when a fast-forward isn't safe.
package document

import (
	"github.com/egwalker-dev/eg-walker/branch"
	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/egwalker-dev/eg-walker/oplog"
	"github.com/pkg/errors"
	"github.com/sanity-io/litter"
)

// Document wraps an OpLog and keeps a Branch positioned at the OpLog's
// own heads on every local edit.
type Document[T any] struct {
	OpLog  *oplog.OpLog[T]
	Branch *branch.Branch[T]
}

// CreateDocument returns an empty Document.
func CreateDocument[T any]() *Document[T] {
	return &Document[T]{OpLog: oplog.New[T](), Branch: branch.CreateEmptyBranch[T]()}
}

// OpenDocument builds a Document from ol via a full checkout.
func OpenDocument[T any](ol *oplog.OpLog[T]) (*Document[T], error) {
	b, err := branch.Checkout(ol)
	if err != nil {
		return nil, errors.Wrap(err, "document: open")
	}
	return &Document[T]{OpLog: ol, Branch: b}, nil
}

// RestoreDocument reattaches an OpLog to a snapshot/version already
// known to be consistent with it (e.g. loaded from storage), with no
// replay cost.
func RestoreDocument[T any](ol *oplog.OpLog[T], snapshot []T, version []causalgraph.LV) *Document[T] {
	return &Document[T]{OpLog: ol, Branch: &branch.Branch[T]{Snapshot: snapshot, Version: version}}
}

// DocInsert appends a local insert and splices it into the snapshot
// directly — a local edit never needs the replay engine, since it has
// no concurrent history by construction.
func DocInsert[T any](doc *Document[T], agent causalgraph.AgentID, pos int, content ...T) error {
	if _, err := oplog.LocalInsert(doc.OpLog, agent, pos, content...); err != nil {
		return errors.Wrap(err, "document: insert")
	}
	snap := doc.Branch.Snapshot
	snap = append(snap[:pos], append(append([]T{}, content...), snap[pos:]...)...)
	doc.Branch.Snapshot = snap
	doc.Branch.Version = doc.OpLog.GetLatestVersion()
	return nil
}

// DocDelete appends len local deletes, all at pos, and splices them out
// of the snapshot directly.
func DocDelete[T any](doc *Document[T], agent causalgraph.AgentID, pos int, length int) error {
	if _, err := oplog.LocalDelete(doc.OpLog, agent, pos, length); err != nil {
		return errors.Wrap(err, "document: delete")
	}
	doc.Branch.Snapshot = append(doc.Branch.Snapshot[:pos], doc.Branch.Snapshot[pos+length:]...)
	doc.Branch.Version = doc.OpLog.GetLatestVersion()
	return nil
}

// CanFastForward reports whether to can be reached from version without
// running Fugue integration: either they're equal, or every LV in
// version is an ancestor of every head in to. Strictly stronger than
// causalgraph.IsFastForward, which only requires set-inclusion of
// ancestors and can be fooled by concurrent branches within to that
// version doesn't dominate individually (spec.md §9).
func CanFastForward(cg *causalgraph.CausalGraph, version, to []causalgraph.LV) (bool, error) {
	if frontierEqual(version, to) {
		return true, nil
	}
	for _, h := range to {
		for _, v := range version {
			ok, err := causalgraph.VersionContainsLV(cg, []causalgraph.LV{h}, v)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func frontierEqual(a, b []causalgraph.LV) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[causalgraph.LV]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			return false
		}
	}
	return true
}

// MergeRemote ingests remote's ops and reconciles doc's snapshot: a
// positional fast-forward when CanFastForward holds, otherwise a full
// replay of the combined OpLog.
func MergeRemote[T any](doc *Document[T], remote *oplog.OpLog[T]) error {
	if err := oplog.MergeOplogInto(doc.OpLog, remote); err != nil {
		return errors.Wrap(err, "document: merge remote")
	}
	heads := doc.OpLog.GetLatestVersion()

	ok, err := CanFastForward(&doc.OpLog.CG, doc.Branch.Version, heads)
	if err != nil {
		return errors.Wrap(err, "document: merge remote: can-fast-forward")
	}
	if ok {
		_, bOnly, err := causalgraph.Diff(&doc.OpLog.CG, doc.Branch.Version, heads)
		if err != nil {
			return errors.Wrap(err, "document: merge remote: diff")
		}
		doc.Branch.Snapshot = branch.ApplyFastForward(doc.OpLog, doc.Branch.Snapshot, bOnly)
		doc.Branch.Version = heads
		return nil
	}

	b, err := branch.Checkout(doc.OpLog)
	if err != nil {
		return errors.Wrap(err, "document: merge remote: full replay")
	}
	doc.Branch = b
	return nil
}

// GetContent returns the current snapshot.
func GetContent[T any](doc *Document[T]) []T { return doc.Branch.Snapshot }

// History summarizes doc's current version as a VersionSummary, the
// compact agent/seq-range form persistence code would serialize rather
// than a raw LV frontier.
func History[T any](doc *Document[T]) (causalgraph.VersionSummary, error) {
	summary, err := causalgraph.SummarizeVersion(&doc.OpLog.CG, doc.Branch.Version)
	if err != nil {
		return nil, errors.Wrap(err, "document: history")
	}
	return summary, nil
}

// Dump renders doc's OpLog and Branch via litter, for debugging and the
// CLI demo. The branch version is rendered sorted by RawVersion rather
// than raw LV, so the dump is stable across merges that assigned LVs in
// a different order for the same causal state.
func Dump[T any](doc *Document[T]) string {
	sorted, err := causalgraph.SortLVsByRaw(&doc.OpLog.CG, doc.Branch.Version)
	if err != nil {
		return litter.Sdump(doc)
	}
	view := struct {
		OpLog   *oplog.OpLog[T]
		Version []causalgraph.LV
		Content []T
	}{OpLog: doc.OpLog, Version: sorted, Content: doc.Branch.Snapshot}
	return litter.Sdump(view)
}

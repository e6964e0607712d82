// Package replay implements the Fugue/YjsMod integration algorithm: the
// order-statistic tree of Items (C5) and the retreat/advance/apply walk
// driven over causal-graph ranges (C6).
package replay

import "github.com/egwalker-dev/eg-walker/causalgraph"

// ItemState is an Item's visibility. NotYetInserted and Inserted are the
// two "live" states; Deleted is represented as an integer >= 2 so that
// concurrent deletes of the same item reconcile idempotently as
// retreat/advance walk them back and forth — the delete count is
// state - 1.
type ItemState int

const (
	NotYetInserted ItemState = 0
	Inserted       ItemState = 1
	deletedBase    ItemState = 2
)

// IsDeleted reports whether s represents any delete count (s >= 2).
func (s ItemState) IsDeleted() bool { return s >= deletedBase }

// NoLV is the sentinel "no version" value used for OriginLeft/RightParent.
const NoLV causalgraph.LV = -1

// Item is one element in the document during replay. OpID is the LV of
// the insert operation that created it. CurState floats as retreat/
// advance move the walk's current version; EndState is the item's final
// visibility once every requested op has been applied.
type Item struct {
	OpID causalgraph.LV

	CurState ItemState
	EndState ItemState

	OriginLeft  causalgraph.LV
	RightParent causalgraph.LV
}

package replay

import "github.com/egwalker-dev/eg-walker/causalgraph"

// Sink is the snapshot-materialization target apply1 writes into. A nil
// sink is valid: traverseAndApply still rebuilds the OST's state, it
// just materializes nothing (used when replaying the conflict region
// before replaying new ops against the real snapshot — see package
// branch).
type Sink[T any] interface {
	Insert(pos int, v T)
	Delete(pos int)
}

// SliceSink adapts a *[]T into a Sink.
type SliceSink[T any] struct{ Target *[]T }

func (s SliceSink[T]) Insert(pos int, v T) {
	t := s.Target
	*t = append((*t)[:pos], append([]T{v}, (*t)[pos:]...)...)
}

func (s SliceSink[T]) Delete(pos int) {
	t := s.Target
	*t = append((*t)[:pos], (*t)[pos+1:]...)
}

// EditContext holds the transient state of one replay: the OST of
// Items, the delete-target map, and the walk's current version. It is
// scoped to a single checkout or merge call and discarded when that call
// returns.
type EditContext struct {
	Items      *OrderStatisticTree
	DelTargets map[causalgraph.LV]causalgraph.LV
	CurVersion []causalgraph.LV
	Hint       *PosHint
}

// NewEditContext returns a fresh, empty EditContext.
func NewEditContext() *EditContext {
	return &EditContext{
		Items:      NewOST(),
		DelTargets: make(map[causalgraph.LV]causalgraph.LV),
		CurVersion: []causalgraph.LV{},
	}
}

package replay

import "github.com/pkg/errors"

// ErrInvariantBroken marks a replay precondition violated by malformed
// or corrupt input (an op referencing a delete target that was never
// inserted, a cursor landing past the end of the tree, and similar).
var ErrInvariantBroken = errors.New("replay: invariant broken")

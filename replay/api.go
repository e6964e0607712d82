package replay

import (
	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/egwalker-dev/eg-walker/oplog"
)

// TraverseAndApply is the exported entry point other packages (branch,
// document) drive a replay through: it walks every op in [fromOp, toOp)
// against ctx's live state, materializing into sink (nil to skip
// materialization).
func TraverseAndApply[T any](ctx *EditContext, ol *oplog.OpLog[T], sink Sink[T], fromOp, toOp causalgraph.LV) error {
	return traverseAndApply(ctx, ol, sink, fromOp, toOp)
}

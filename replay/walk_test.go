package replay_test

import (
	"testing"

	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/egwalker-dev/eg-walker/oplog"
	"github.com/egwalker-dev/eg-walker/replay"
	"github.com/stretchr/testify/require"
)

func checkoutAll(t *testing.T, ol *oplog.OpLog[rune]) string {
	ctx := replay.NewEditContext()
	var out []rune
	err := replay.TraverseAndApply[rune](ctx, ol, replay.SliceSink[rune]{Target: &out}, 0, causalgraph.NextLV(&ol.CG))
	require.NoError(t, err)
	return string(out)
}

func ptrRune(r rune) *rune { return &r }

func TestTraverseAndApplyResolvesConcurrentInsertsByAgentOrder(t *testing.T) {
	ol := oplog.New[rune]()
	_, err := oplog.LocalInsert(ol, "base", 0, 'x')
	require.NoError(t, err)

	base := causalgraph.RawVersion{Agent: "base", Seq: 0}
	_, err = oplog.PushOp(ol, causalgraph.RawVersion{Agent: "Z", Seq: 0}, []causalgraph.RawVersion{base}, oplog.Insert, 1, ptrRune('Z'))
	require.NoError(t, err)
	_, err = oplog.PushOp(ol, causalgraph.RawVersion{Agent: "A", Seq: 0}, []causalgraph.RawVersion{base}, oplog.Insert, 1, ptrRune('A'))
	require.NoError(t, err)

	// Both Z and A insert at the same position relative to the shared
	// base, with the same originLeft and no rightParent: the lower
	// agent ID wins the tie-break regardless of push order.
	require.Equal(t, "xAZ", checkoutAll(t, ol))
}

func TestTraverseAndApplyConcurrentDeletesAtDisjointPositionsConverge(t *testing.T) {
	ol := oplog.New[rune]()
	_, err := oplog.LocalInsert(ol, "base", 0, []rune("abc")...)
	require.NoError(t, err)

	base := causalgraph.RawVersion{Agent: "base", Seq: 2}
	_, err = oplog.PushOp(ol, causalgraph.RawVersion{Agent: "A", Seq: 0}, []causalgraph.RawVersion{base}, oplog.Delete, 0, nil)
	require.NoError(t, err)
	_, err = oplog.PushOp(ol, causalgraph.RawVersion{Agent: "B", Seq: 0}, []causalgraph.RawVersion{base}, oplog.Delete, 2, nil)
	require.NoError(t, err)

	require.Equal(t, "b", checkoutAll(t, ol))
}

func TestTraverseAndApplyPartialRangeRebuildsStateWithNilSink(t *testing.T) {
	ol := oplog.New[rune]()
	_, err := oplog.LocalInsert(ol, "A", 0, []rune("abc")...)
	require.NoError(t, err)

	ctx := replay.NewEditContext()
	require.NoError(t, replay.TraverseAndApply[rune](ctx, ol, nil, 0, 2))

	// Sink positions are absolute, counting the [0,2) prefix the nil-sink
	// pass above already walked through the OST: resuming [2,3) into a
	// sink must start from a slice that already holds that prefix, the
	// same way branch.MergeChangesIntoBranch replays newOps against
	// branch.Snapshot rather than an empty slice.
	out := []rune("ab")
	require.NoError(t, replay.TraverseAndApply[rune](ctx, ol, replay.SliceSink[rune]{Target: &out}, 2, 3))
	require.Equal(t, "abc", string(out))
}

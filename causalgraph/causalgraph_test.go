package causalgraph_test

import (
	"testing"

	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestAddRawCoalescesContiguousRuns(t *testing.T) {
	cg := causalgraph.CreateCG()

	e1, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 3, nil)
	require.NoError(t, err)
	require.NotNil(t, e1)
	require.Equal(t, causalgraph.LV(0), e1.Version)
	require.Equal(t, causalgraph.LV(3), e1.VEnd)

	e2, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 3}, 2, []causalgraph.RawVersion{{Agent: "a", Seq: 2}})
	require.NoError(t, err)
	require.NotNil(t, e2)
	// Contiguous same-agent run with a single parent equal to the
	// predecessor's last LV: must coalesce into the same CGEntry.
	require.Len(t, cg.Entries, 1)
	require.Equal(t, causalgraph.LV(5), cg.Entries[0].VEnd)
}

func TestAddRawSkipsKnownPrefix(t *testing.T) {
	cg := causalgraph.CreateCG()
	_, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 3, nil)
	require.NoError(t, err)

	entry, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 3, nil)
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Equal(t, causalgraph.LV(3), causalgraph.NextLV(cg))
}

func TestLVRawRoundTrip(t *testing.T) {
	cg := causalgraph.CreateCG()
	_, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 5, nil)
	require.NoError(t, err)

	for seq := 0; seq < 5; seq++ {
		lv, err := causalgraph.RawToLV(cg, "a", seq)
		require.NoError(t, err)
		raw, ok := causalgraph.LVToRaw(cg, lv)
		require.True(t, ok)
		require.Equal(t, causalgraph.AgentID("a"), raw.Agent)
		require.Equal(t, seq, raw.Seq)
	}
}

func TestDiffAndIsFastForward(t *testing.T) {
	cg := causalgraph.CreateCG()
	_, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 2, nil) // lv 0,1
	require.NoError(t, err)
	_, err = causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 2}, 1, nil) // lv 2
	require.NoError(t, err)

	aOnly, bOnly, err := causalgraph.Diff(cg, []causalgraph.LV{1}, []causalgraph.LV{2})
	require.NoError(t, err)
	require.Empty(t, aOnly)
	require.Equal(t, []causalgraph.LVRange{{Start: 2, End: 3}}, bOnly)

	ff, err := causalgraph.IsFastForward(cg, []causalgraph.LV{1}, []causalgraph.LV{2})
	require.NoError(t, err)
	require.True(t, ff)

	ff, err = causalgraph.IsFastForward(cg, []causalgraph.LV{2}, []causalgraph.LV{1})
	require.NoError(t, err)
	require.False(t, ff)
}

func TestFindDominators(t *testing.T) {
	cg := causalgraph.CreateCG()
	_, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 1, nil) // lv 0
	require.NoError(t, err)
	_, err = causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "b", Seq: 0}, 1, []causalgraph.RawVersion{{Agent: "a", Seq: 0}}) // lv 1, parent 0
	require.NoError(t, err)

	dominators, err := causalgraph.FindDominators(cg, []causalgraph.LV{0, 1})
	require.NoError(t, err)
	require.Equal(t, []causalgraph.LV{1}, dominators)
}

func TestVersionContainsLV(t *testing.T) {
	cg := causalgraph.CreateCG()
	_, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 3, nil)
	require.NoError(t, err)

	ok, err := causalgraph.VersionContainsLV(cg, []causalgraph.LV{2}, 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = causalgraph.VersionContainsLV(cg, []causalgraph.LV{0}, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSummarizeAndIntersect(t *testing.T) {
	cg := causalgraph.CreateCG()
	_, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 5, nil)
	require.NoError(t, err)

	summary, err := causalgraph.SummarizeVersion(cg, cg.Heads)
	require.NoError(t, err)
	require.Equal(t, causalgraph.VersionSummary{"a": [][2]int{{0, 5}}}, summary)

	other := causalgraph.CreateCG()
	_, err = causalgraph.AddRaw(other, causalgraph.RawVersion{Agent: "a", Seq: 0}, 5, nil)
	require.NoError(t, err)
	_, err = causalgraph.AddRaw(other, causalgraph.RawVersion{Agent: "a", Seq: 5}, 2, nil)
	require.NoError(t, err)

	known, unknown, err := causalgraph.IntersectWithSummary(other, summary, nil)
	require.NoError(t, err)
	require.Nil(t, unknown)
	require.Equal(t, []causalgraph.LV{4}, known)
}

// TestSerializeDiffRoundTripsEntries checks that serializing and
// re-merging a diff reproduces the same entry shape, using cmp for a
// readable diff on failure rather than testify's generic mismatch dump.
func TestSerializeDiffRoundTripsEntries(t *testing.T) {
	src := causalgraph.CreateCG()
	_, err := causalgraph.AddRaw(src, causalgraph.RawVersion{Agent: "a", Seq: 0}, 3, nil)
	require.NoError(t, err)
	_, err = causalgraph.AddRaw(src, causalgraph.RawVersion{Agent: "b", Seq: 0}, 2, []causalgraph.RawVersion{{Agent: "a", Seq: 2}})
	require.NoError(t, err)

	serialized, err := causalgraph.SerializeDiff(src, []causalgraph.LVRange{{Start: 0, End: 5}})
	require.NoError(t, err)

	dest := causalgraph.CreateCG()
	_, err = causalgraph.MergePartialVersions(dest, serialized)
	require.NoError(t, err)

	roundTripped, err := causalgraph.SerializeDiff(dest, []causalgraph.LVRange{{Start: 0, End: 5}})
	require.NoError(t, err)

	if !cmp.Equal(serialized, roundTripped) {
		t.Errorf("serialize/merge/serialize round trip changed shape; diff = %v", cmp.Diff(serialized, roundTripped))
	}
}

func TestAddTranslatesLVParentsToRawVersions(t *testing.T) {
	cg := causalgraph.CreateCG()
	_, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 1, nil)
	require.NoError(t, err)

	entry, err := causalgraph.Add(cg, "b", 0, 2, []causalgraph.LV{0})
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, causalgraph.LV(1), entry.Version)
	require.Equal(t, causalgraph.LV(3), entry.VEnd)

	rv, ok := causalgraph.LVToRaw(cg, 1)
	require.True(t, ok)
	require.Equal(t, causalgraph.RawVersion{Agent: "b", Seq: 0}, rv)
}

func TestAddRejectsUnknownLVParent(t *testing.T) {
	cg := causalgraph.CreateCG()
	_, err := causalgraph.Add(cg, "a", 0, 1, []causalgraph.LV{99})
	require.ErrorIs(t, err, causalgraph.ErrInvalidVersion)
}

func TestSortLVsByRawOrdersByAgentThenSeq(t *testing.T) {
	cg := causalgraph.CreateCG()
	_, err := causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "b", Seq: 0}, 1, nil)
	require.NoError(t, err)
	_, err = causalgraph.AddRaw(cg, causalgraph.RawVersion{Agent: "a", Seq: 0}, 2, nil)
	require.NoError(t, err)

	// LV 0 is "b":0, LVs 1-2 are "a":0-1: raw order puts "a" first
	// despite its LVs being allocated second.
	sorted, err := causalgraph.SortLVsByRaw(cg, []causalgraph.LV{0, 1, 2})
	require.NoError(t, err)
	require.Equal(t, []causalgraph.LV{1, 2, 0}, sorted)
}

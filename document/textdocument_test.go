package document_test

import (
	"testing"

	"github.com/egwalker-dev/eg-walker/document"
	"github.com/egwalker-dev/eg-walker/oplog"
	"github.com/stretchr/testify/require"
)

func TestTextDocInsertAndDeleteKeepCacheInSync(t *testing.T) {
	doc := document.CreateTextDocument()

	require.NoError(t, document.TextDocInsert(doc, "A", 0, "hello"))
	require.Equal(t, "hello", document.GetTextDocText(doc))

	require.NoError(t, document.TextDocDelete(doc, "A", 1, 3))
	require.Equal(t, "ho", document.GetTextDocText(doc))

	require.Equal(t, string(document.GetContent(doc.Doc)), document.GetTextDocText(doc))
}

func TestOpenTextDocumentMatchesLiveCache(t *testing.T) {
	doc := document.CreateTextDocument()
	require.NoError(t, document.TextDocInsert(doc, "A", 0, "abcdef"))
	require.NoError(t, document.TextDocDelete(doc, "A", 2, 2))

	reopened, err := document.OpenTextDocument(doc.Doc.OpLog)
	require.NoError(t, err)
	require.Equal(t, document.GetTextDocText(doc), document.GetTextDocText(reopened))
	require.Equal(t, "abef", document.GetTextDocText(doc))
}

func TestRestoreTextDocumentSkipsReplay(t *testing.T) {
	doc := document.CreateTextDocument()
	require.NoError(t, document.TextDocInsert(doc, "A", 0, "abc"))

	restored := document.RestoreTextDocument(doc.Doc.OpLog, "abc", doc.Doc.OpLog.GetLatestVersion())
	require.Equal(t, "abc", document.GetTextDocText(restored))
}

func TestMergeTextRemoteFastForward(t *testing.T) {
	doc := document.CreateTextDocument()
	require.NoError(t, document.TextDocInsert(doc, "A", 0, "abc"))

	remote := oplog.New[rune]()
	require.NoError(t, oplog.MergeOplogInto(remote, doc.Doc.OpLog))
	_, err := oplog.LocalInsert(remote, "A", 3, []rune("def")...)
	require.NoError(t, err)

	require.NoError(t, document.MergeTextRemote(doc, remote))
	require.Equal(t, "abcdef", document.GetTextDocText(doc))
}

func TestMergeTextRemoteFullReplayOnConcurrentEdit(t *testing.T) {
	a := oplog.New[rune]()
	_, err := oplog.LocalInsert(a, "base", 0, []rune("ab")...)
	require.NoError(t, err)

	b := oplog.New[rune]()
	require.NoError(t, oplog.MergeOplogInto(b, a))

	doc, err := document.OpenTextDocument(a)
	require.NoError(t, err)

	_, err = oplog.LocalInsert(b, "B", 1, 'Y')
	require.NoError(t, err)
	require.NoError(t, document.TextDocInsert(doc, "A", 1, "X"))

	require.NoError(t, document.MergeTextRemote(doc, b))

	full, err := document.OpenTextDocument(doc.Doc.OpLog)
	require.NoError(t, err)
	require.Equal(t, document.GetTextDocText(full), document.GetTextDocText(doc))
	require.Equal(t, "aXYb", document.GetTextDocText(doc))
}

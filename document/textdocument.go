package document

import (
	"github.com/egwalker-dev/eg-walker/branch"
	"github.com/egwalker-dev/eg-walker/causalgraph"
	"github.com/egwalker-dev/eg-walker/oplog"
	"github.com/pkg/errors"
)

// TextDocument specializes Document to T=rune and keeps the snapshot
// materialized as a string cache, per spec.md §4.7: restore keeps the
// given string as the cache (the rune snapshot is still converted from
// it, which is O(n)), local edits do string-slice-and-concat, and the
// full-replay fallback reuses the rope-backed checkout engine.
type TextDocument struct {
	Doc  *Document[rune]
	text string
}

// CreateTextDocument returns an empty TextDocument.
func CreateTextDocument() *TextDocument {
	return &TextDocument{Doc: CreateDocument[rune]()}
}

// OpenTextDocument builds a TextDocument from ol via a full checkout.
func OpenTextDocument(ol *oplog.OpLog[rune]) (*TextDocument, error) {
	text, err := branch.CheckoutSimpleString(ol)
	if err != nil {
		return nil, errors.Wrap(err, "document: open text document")
	}
	return &TextDocument{
		Doc:  &Document[rune]{OpLog: ol, Branch: &branch.Branch[rune]{Snapshot: []rune(text), Version: ol.GetLatestVersion()}},
		text: text,
	}, nil
}

// RestoreTextDocument reattaches ol to a string snapshot/version already
// known to be consistent with it.
func RestoreTextDocument(ol *oplog.OpLog[rune], text string, version []causalgraph.LV) *TextDocument {
	return &TextDocument{
		Doc:  RestoreDocument(ol, []rune(text), version),
		text: text,
	}
}

// TextDocInsert inserts s at pos (rune offset) and updates the string
// cache by slice-and-concat.
func TextDocInsert(doc *TextDocument, agent causalgraph.AgentID, pos int, s string) error {
	runes := []rune(s)
	if err := DocInsert(doc.Doc, agent, pos, runes...); err != nil {
		return err
	}
	r := []rune(doc.text)
	doc.text = string(r[:pos]) + s + string(r[pos:])
	return nil
}

// TextDocDelete removes length runes starting at pos.
func TextDocDelete(doc *TextDocument, agent causalgraph.AgentID, pos int, length int) error {
	if err := DocDelete(doc.Doc, agent, pos, length); err != nil {
		return err
	}
	r := []rune(doc.text)
	doc.text = string(r[:pos]) + string(r[pos+length:])
	return nil
}

// MergeTextRemote merges remote into doc the same way MergeRemote does,
// then refreshes the string cache — either by diff-applying (fast
// path) or by re-running the rope-backed checkout (full-replay
// fallback).
func MergeTextRemote(doc *TextDocument, remote *oplog.OpLog[rune]) error {
	prevVersion := doc.Doc.Branch.Version

	if err := oplog.MergeOplogInto(doc.Doc.OpLog, remote); err != nil {
		return errors.Wrap(err, "document: merge text remote")
	}
	heads := doc.Doc.OpLog.GetLatestVersion()

	ok, err := CanFastForward(&doc.Doc.OpLog.CG, prevVersion, heads)
	if err != nil {
		return errors.Wrap(err, "document: merge text remote: can-fast-forward")
	}
	if ok {
		_, bOnly, err := causalgraph.Diff(&doc.Doc.OpLog.CG, prevVersion, heads)
		if err != nil {
			return errors.Wrap(err, "document: merge text remote: diff")
		}
		r := []rune(doc.text)
		for _, rg := range bOnly {
			for lv := rg.Start; lv < rg.End; lv++ {
				op := doc.Doc.OpLog.Ops[lv]
				switch op.Type {
				case oplog.Insert:
					r = append(r[:op.Pos], append([]rune{op.Content}, r[op.Pos:]...)...)
				case oplog.Delete:
					r = append(r[:op.Pos], r[op.Pos+1:]...)
				}
			}
		}
		doc.text = string(r)
		doc.Doc.Branch.Snapshot = r
		doc.Doc.Branch.Version = heads
		return nil
	}

	text, err := branch.CheckoutSimpleString(doc.Doc.OpLog)
	if err != nil {
		return errors.Wrap(err, "document: merge text remote: full replay")
	}
	doc.text = text
	doc.Doc.Branch.Snapshot = []rune(text)
	doc.Doc.Branch.Version = heads
	return nil
}

// GetTextDocText returns the cached string snapshot.
func GetTextDocText(doc *TextDocument) string { return doc.text }

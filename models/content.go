package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rohanthewiz/serr"
	"github.com/vmihailenco/msgpack/v5"
)

// ContentTreeVersion is the current schema version of the content tree
// payload. Version 1 is the legacy flat-rows form (see legacy.go);
// version 2 is the row/column/block tree below.
const ContentTreeVersion = 2

// BlockType identifies what a content block holds.
type BlockType string

const (
	BlockText    BlockType = "text"
	BlockHeading BlockType = "heading"
	BlockList    BlockType = "list"
	BlockImage   BlockType = "image"
	BlockCode    BlockType = "code"
)

// Block is a single typed unit of page content.
type Block struct {
	ID    string            `json:"id" msgpack:"id"`
	Type  BlockType         `json:"type" msgpack:"type"`
	Text  string            `json:"text" msgpack:"text"`
	Attrs map[string]string `json:"attrs,omitempty" msgpack:"attrs,omitempty"`
}

// Column holds an ordered list of blocks. A column is never empty except
// transiently while a drag operation is in flight; Normalize prunes them.
type Column struct {
	ID     string   `json:"id" msgpack:"id"`
	Blocks []*Block `json:"blocks" msgpack:"blocks"`
}

// Row holds ordered columns.
type Row struct {
	ID      string    `json:"id" msgpack:"id"`
	Columns []*Column `json:"columns" msgpack:"columns"`
}

// ContentTree is a page body: root -> ordered rows -> columns -> blocks.
// Rows, columns and blocks are held by pointer so that copy-on-write
// edits can share unchanged subtrees between versions of the tree.
type ContentTree struct {
	Version int    `json:"version" msgpack:"version"`
	Rows    []*Row `json:"rows" msgpack:"rows"`
}

// NewContentTree returns an empty content tree at the current version.
func NewContentTree() *ContentTree {
	return &ContentTree{Version: ContentTreeVersion}
}

func (c *Column) empty() bool {
	return len(c.Blocks) == 0
}

// Normalize returns a tree with empty columns removed and rows with zero
// non-empty columns pruned. Untouched rows are shared with the receiver,
// not copied. Normalizing an already-normal tree returns an equal tree,
// so Normalize(Normalize(t)) == Normalize(t).
func (t *ContentTree) Normalize() *ContentTree {
	if t == nil {
		return NewContentTree()
	}
	out := &ContentTree{Version: ContentTreeVersion}
	for _, row := range t.Rows {
		clean := true
		for _, col := range row.Columns {
			if col.empty() {
				clean = false
				break
			}
		}
		if clean && len(row.Columns) > 0 {
			out.Rows = append(out.Rows, row)
			continue
		}
		kept := make([]*Column, 0, len(row.Columns))
		for _, col := range row.Columns {
			if !col.empty() {
				kept = append(kept, col)
			}
		}
		if len(kept) == 0 {
			continue // row has no content left, prune it
		}
		out.Rows = append(out.Rows, &Row{ID: row.ID, Columns: kept})
	}
	return out
}

// WithBlock returns a new tree in which fn has been applied to the block
// at (rowID, colID, blockID). Only the row, column and block on the edit
// path are copied; all sibling rows, columns and blocks are shared by
// reference with the receiver. Returns the receiver unchanged when the
// path does not exist.
func (t *ContentTree) WithBlock(rowID, colID, blockID string, fn func(Block) Block) *ContentTree {
	for ri, row := range t.Rows {
		if row.ID != rowID {
			continue
		}
		for ci, col := range row.Columns {
			if col.ID != colID {
				continue
			}
			for bi, blk := range col.Blocks {
				if blk.ID != blockID {
					continue
				}
				edited := fn(*blk)
				edited.ID = blk.ID // identity is immutable

				newBlocks := make([]*Block, len(col.Blocks))
				copy(newBlocks, col.Blocks)
				newBlocks[bi] = &edited

				newCols := make([]*Column, len(row.Columns))
				copy(newCols, row.Columns)
				newCols[ci] = &Column{ID: col.ID, Blocks: newBlocks}

				newRows := make([]*Row, len(t.Rows))
				copy(newRows, t.Rows)
				newRows[ri] = &Row{ID: row.ID, Columns: newCols}

				return &ContentTree{Version: t.Version, Rows: newRows}
			}
		}
	}
	return t
}

// AppendBlock returns a new tree with blk appended to (rowID, colID),
// copying only the edit path. Returns the receiver when the column does
// not exist.
func (t *ContentTree) AppendBlock(rowID, colID string, blk *Block) *ContentTree {
	for ri, row := range t.Rows {
		if row.ID != rowID {
			continue
		}
		for ci, col := range row.Columns {
			if col.ID != colID {
				continue
			}
			newBlocks := make([]*Block, len(col.Blocks)+1)
			copy(newBlocks, col.Blocks)
			newBlocks[len(col.Blocks)] = blk

			newCols := make([]*Column, len(row.Columns))
			copy(newCols, row.Columns)
			newCols[ci] = &Column{ID: col.ID, Blocks: newBlocks}

			newRows := make([]*Row, len(t.Rows))
			copy(newRows, t.Rows)
			newRows[ri] = &Row{ID: row.ID, Columns: newCols}

			return &ContentTree{Version: t.Version, Rows: newRows}
		}
	}
	return t
}

// IsEmpty reports whether the tree holds no blocks at all.
func (t *ContentTree) IsEmpty() bool {
	if t == nil {
		return true
	}
	for _, row := range t.Rows {
		for _, col := range row.Columns {
			if len(col.Blocks) > 0 {
				return false
			}
		}
	}
	return true
}

// EncodePayload serializes the tree to the msgpack wire form pushed to
// the remote store. Encoding is deterministic for a given tree, which
// makes the digest below usable as a change detector.
func (t *ContentTree) EncodePayload() ([]byte, error) {
	data, err := msgpack.Marshal(t.Normalize())
	if err != nil {
		return nil, serr.Wrap(err, "failed to encode content payload")
	}
	return data, nil
}

// DecodePayload parses a msgpack content payload back into a tree.
func DecodePayload(data []byte) (*ContentTree, error) {
	var t ContentTree
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return nil, serr.Wrap(err, "failed to decode content payload")
	}
	return &t, nil
}

// Digest returns a hex sha256 of the encoded payload. The content
// synchronizer compares digests to skip uploads for unchanged pages.
func (t *ContentTree) Digest() (string, error) {
	data, err := t.EncodePayload()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalJSON renders the normalized tree as compact JSON. This is the
// text form diffed by the page revision journal.
func (t *ContentTree) CanonicalJSON() (string, error) {
	data, err := json.Marshal(t.Normalize())
	if err != nil {
		return "", serr.Wrap(err, "failed to render content tree as JSON")
	}
	return string(data), nil
}

package models

import "fmt"

// Legacy page representation: schema version 1 stored a page as a flat
// list of rows, each row carrying its blocks directly with a numeric
// column index instead of nested column objects. Remote stores written
// by old clients still hold this form, so both directions of the
// conversion are kept.

// LegacyPage is the version-1 page body.
type LegacyPage struct {
	SchemaVersion int         `json:"schemaVersion" msgpack:"schemaVersion"`
	Rows          []LegacyRow `json:"rows" msgpack:"rows"`
}

// LegacyRow holds blocks tagged with the column slot they occupy.
type LegacyRow struct {
	ID     string        `json:"id" msgpack:"id"`
	Blocks []LegacyBlock `json:"blocks" msgpack:"blocks"`
}

// LegacyBlock mirrors Block plus the flat column index.
type LegacyBlock struct {
	ID     string            `json:"id" msgpack:"id"`
	Type   string            `json:"type" msgpack:"type"`
	Text   string            `json:"text" msgpack:"text"`
	Attrs  map[string]string `json:"attrs,omitempty" msgpack:"attrs,omitempty"`
	Column int               `json:"column" msgpack:"column"`
}

// TreeFromLegacy converts a version-1 flat-rows page into a content
// tree. The conversion is total and deterministic: blocks are grouped by
// their column index (negative indexes are clamped to zero), groups are
// ordered by index with gaps collapsed, column IDs derive from the row
// ID and the final column position, and the result is normalized. Every
// legacy shape maps to exactly one tree shape.
func TreeFromLegacy(lp LegacyPage) *ContentTree {
	t := NewContentTree()
	for _, lr := range lp.Rows {
		// Collect the distinct column indexes in ascending order.
		seen := map[int]bool{}
		var indexes []int
		for _, lb := range lr.Blocks {
			idx := lb.Column
			if idx < 0 {
				idx = 0
			}
			if !seen[idx] {
				seen[idx] = true
				indexes = append(indexes, idx)
			}
		}
		sortInts(indexes)

		row := &Row{ID: lr.ID}
		for pos, idx := range indexes {
			col := &Column{ID: fmt.Sprintf("%s-c%d", lr.ID, pos)}
			for _, lb := range lr.Blocks {
				bidx := lb.Column
				if bidx < 0 {
					bidx = 0
				}
				if bidx != idx {
					continue
				}
				col.Blocks = append(col.Blocks, &Block{
					ID:    lb.ID,
					Type:  BlockType(lb.Type),
					Text:  lb.Text,
					Attrs: lb.Attrs,
				})
			}
			row.Columns = append(row.Columns, col)
		}
		t.Rows = append(t.Rows, row)
	}
	return t.Normalize()
}

// LegacyFromTree converts a content tree back to the version-1 form.
// Column indexes are the column positions after normalization, so for
// any tree produced by TreeFromLegacy the round trip is lossless:
// TreeFromLegacy(LegacyFromTree(TreeFromLegacy(x))) equals
// TreeFromLegacy(x).
func LegacyFromTree(t *ContentTree) LegacyPage {
	lp := LegacyPage{SchemaVersion: 1}
	for _, row := range t.Normalize().Rows {
		lr := LegacyRow{ID: row.ID}
		for ci, col := range row.Columns {
			for _, blk := range col.Blocks {
				lr.Blocks = append(lr.Blocks, LegacyBlock{
					ID:     blk.ID,
					Type:   string(blk.Type),
					Text:   blk.Text,
					Attrs:  blk.Attrs,
					Column: ci,
				})
			}
		}
		lp.Rows = append(lp.Rows, lr)
	}
	return lp
}

// sortInts is a small insertion sort; rows rarely have more than a
// handful of columns.
func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j] < a[j-1]; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}

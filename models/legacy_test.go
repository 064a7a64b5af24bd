package models_test

import (
	"testing"

	"binder/models"
)

func TestTreeFromLegacyGroupsByColumn(t *testing.T) {
	lp := models.LegacyPage{
		SchemaVersion: 1,
		Rows: []models.LegacyRow{
			{
				ID: "r1",
				Blocks: []models.LegacyBlock{
					{ID: "b1", Type: "text", Text: "left", Column: 0},
					{ID: "b2", Type: "text", Text: "right", Column: 1},
					{ID: "b3", Type: "text", Text: "left too", Column: 0},
				},
			},
		},
	}

	tree := models.TreeFromLegacy(lp)

	if len(tree.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(tree.Rows))
	}
	cols := tree.Rows[0].Columns
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(cols))
	}
	if len(cols[0].Blocks) != 2 || cols[0].Blocks[0].ID != "b1" || cols[0].Blocks[1].ID != "b3" {
		t.Error("column 0 should hold b1 and b3 in order")
	}
	if len(cols[1].Blocks) != 1 || cols[1].Blocks[0].ID != "b2" {
		t.Error("column 1 should hold b2")
	}
}

func TestTreeFromLegacyClampsAndCollapses(t *testing.T) {
	lp := models.LegacyPage{
		SchemaVersion: 1,
		Rows: []models.LegacyRow{
			{
				ID: "r1",
				Blocks: []models.LegacyBlock{
					{ID: "b1", Type: "text", Text: "negative", Column: -3},
					{ID: "b2", Type: "text", Text: "gap", Column: 7},
				},
			},
		},
	}

	tree := models.TreeFromLegacy(lp)

	cols := tree.Rows[0].Columns
	if len(cols) != 2 {
		t.Fatalf("expected gaps collapsed to 2 columns, got %d", len(cols))
	}
	if cols[0].Blocks[0].ID != "b1" {
		t.Error("negative index should clamp to the first column")
	}
	if cols[1].Blocks[0].ID != "b2" {
		t.Error("sparse index should collapse to the second column")
	}
}

func TestLegacyRoundTrip(t *testing.T) {
	lp := models.LegacyPage{
		SchemaVersion: 1,
		Rows: []models.LegacyRow{
			{
				ID: "r1",
				Blocks: []models.LegacyBlock{
					{ID: "b1", Type: "heading", Text: "h", Column: 0},
					{ID: "b2", Type: "text", Text: "a", Column: 2},
					{ID: "b3", Type: "text", Text: "b", Column: 2},
				},
			},
			{
				ID: "r2",
				Blocks: []models.LegacyBlock{
					{ID: "b4", Type: "code", Text: "c", Column: 0},
				},
			},
		},
	}

	once := models.TreeFromLegacy(lp)
	again := models.TreeFromLegacy(models.LegacyFromTree(once))

	want, err := once.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	got, err := again.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	if want != got {
		t.Errorf("round trip diverged:\n want %s\n got  %s", want, got)
	}
}

func TestLegacyFromTreeUsesPositions(t *testing.T) {
	tree := &models.ContentTree{
		Version: models.ContentTreeVersion,
		Rows: []*models.Row{
			{
				ID: "r1",
				Columns: []*models.Column{
					{ID: "c1", Blocks: []*models.Block{{ID: "b1", Type: models.BlockText, Text: "x"}}},
					{ID: "c2"}, // pruned by normalize
					{ID: "c3", Blocks: []*models.Block{{ID: "b2", Type: models.BlockText, Text: "y"}}},
				},
			},
		},
	}

	lp := models.LegacyFromTree(tree)

	if len(lp.Rows) != 1 || len(lp.Rows[0].Blocks) != 2 {
		t.Fatalf("unexpected legacy shape: %+v", lp)
	}
	// After the empty column is pruned, b2 sits at position 1, not 2.
	for _, blk := range lp.Rows[0].Blocks {
		switch blk.ID {
		case "b1":
			if blk.Column != 0 {
				t.Errorf("b1 column = %d, want 0", blk.Column)
			}
		case "b2":
			if blk.Column != 1 {
				t.Errorf("b2 column = %d, want 1", blk.Column)
			}
		}
	}
}

package models_test

import (
	"testing"

	"binder/models"
)

func buildTree() *models.ContentTree {
	return &models.ContentTree{
		Version: models.ContentTreeVersion,
		Rows: []*models.Row{
			{
				ID: "r1",
				Columns: []*models.Column{
					{ID: "c1", Blocks: []*models.Block{
						{ID: "b1", Type: models.BlockText, Text: "hello"},
						{ID: "b2", Type: models.BlockHeading, Text: "title"},
					}},
					{ID: "c2", Blocks: []*models.Block{
						{ID: "b3", Type: models.BlockCode, Text: "x := 1"},
					}},
				},
			},
			{
				ID: "r2",
				Columns: []*models.Column{
					{ID: "c3", Blocks: []*models.Block{
						{ID: "b4", Type: models.BlockList, Text: "item"},
					}},
				},
			},
		},
	}
}

func TestNormalizePrunesEmpties(t *testing.T) {
	tree := buildTree()
	// Add an empty column and a row whose columns are all empty.
	tree.Rows[0].Columns = append(tree.Rows[0].Columns, &models.Column{ID: "c-empty"})
	tree.Rows = append(tree.Rows, &models.Row{
		ID:      "r-empty",
		Columns: []*models.Column{{ID: "c-also-empty"}},
	})

	norm := tree.Normalize()

	if len(norm.Rows) != 2 {
		t.Fatalf("expected 2 rows after normalize, got %d", len(norm.Rows))
	}
	if len(norm.Rows[0].Columns) != 2 {
		t.Errorf("expected empty column pruned, got %d columns", len(norm.Rows[0].Columns))
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once := buildTree().Normalize()
	twice := once.Normalize()

	j1, err := once.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	j2, err := twice.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	if j1 != j2 {
		t.Error("normalize is not idempotent")
	}
}

func TestNormalizeSharesCleanRows(t *testing.T) {
	tree := buildTree()
	norm := tree.Normalize()

	// Rows with nothing to prune should be the same pointers, not copies.
	if norm.Rows[0] != tree.Rows[0] || norm.Rows[1] != tree.Rows[1] {
		t.Error("expected untouched rows shared by reference")
	}
}

func TestWithBlockCopiesOnlyEditPath(t *testing.T) {
	tree := buildTree()
	edited := tree.WithBlock("r1", "c1", "b1", func(b models.Block) models.Block {
		b.Text = "changed"
		return b
	})

	if edited == tree {
		t.Fatal("expected a new tree")
	}
	if tree.Rows[0].Columns[0].Blocks[0].Text != "hello" {
		t.Error("original tree was mutated")
	}
	if edited.Rows[0].Columns[0].Blocks[0].Text != "changed" {
		t.Error("edit not applied")
	}

	// Off-path structures are shared, on-path structures are copied.
	if edited.Rows[1] != tree.Rows[1] {
		t.Error("sibling row should be shared")
	}
	if edited.Rows[0].Columns[1] != tree.Rows[0].Columns[1] {
		t.Error("sibling column should be shared")
	}
	if edited.Rows[0].Columns[0].Blocks[1] != tree.Rows[0].Columns[0].Blocks[1] {
		t.Error("sibling block should be shared")
	}
	if edited.Rows[0] == tree.Rows[0] {
		t.Error("edited row should be a copy")
	}
}

func TestWithBlockIdentityImmutable(t *testing.T) {
	tree := buildTree()
	edited := tree.WithBlock("r1", "c1", "b1", func(b models.Block) models.Block {
		b.ID = "hijacked"
		b.Text = "changed"
		return b
	})

	if edited.Rows[0].Columns[0].Blocks[0].ID != "b1" {
		t.Error("block id must survive the edit function")
	}
}

func TestWithBlockMissingPathReturnsReceiver(t *testing.T) {
	tree := buildTree()
	if got := tree.WithBlock("nope", "c1", "b1", func(b models.Block) models.Block { return b }); got != tree {
		t.Error("missing path should return the receiver unchanged")
	}
}

func TestAppendBlock(t *testing.T) {
	tree := buildTree()
	blk := &models.Block{ID: "b9", Type: models.BlockText, Text: "appended"}
	edited := tree.AppendBlock("r2", "c3", blk)

	if len(tree.Rows[1].Columns[0].Blocks) != 1 {
		t.Error("original column was mutated")
	}
	got := edited.Rows[1].Columns[0].Blocks
	if len(got) != 2 || got[1].ID != "b9" {
		t.Errorf("expected appended block, got %d blocks", len(got))
	}
	if edited.Rows[0] != tree.Rows[0] {
		t.Error("untouched row should be shared")
	}
}

func TestDigestDetectsChange(t *testing.T) {
	tree := buildTree()
	d1, err := tree.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}

	same, err := buildTree().Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if d1 != same {
		t.Error("equal trees should produce equal digests")
	}

	edited := tree.WithBlock("r1", "c1", "b1", func(b models.Block) models.Block {
		b.Text = "different"
		return b
	})
	d2, err := edited.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if d1 == d2 {
		t.Error("changed tree should produce a different digest")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	tree := buildTree()
	data, err := tree.EncodePayload()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := models.DecodePayload(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want, _ := tree.CanonicalJSON()
	got, _ := decoded.CanonicalJSON()
	if want != got {
		t.Error("payload round trip changed the tree")
	}
}

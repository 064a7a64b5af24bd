package models

import (
	"path/filepath"
	"testing"
)

func TestLoadTreeDropsOrphanChains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orphans.ddb")
	if err := InitTestDB(path); err != nil {
		t.Fatalf("init db: %v", err)
	}
	defer CloseDB()

	tree := NewTree()
	nb, err := tree.CreateNode(KindNotebook, "Doomed", "")
	if err != nil {
		t.Fatalf("create notebook: %v", err)
	}
	sec, err := tree.CreateNode(KindSection, "Child", nb.LocalID)
	if err != nil {
		t.Fatalf("create section: %v", err)
	}
	page, err := tree.CreateNode(KindPage, "Grandchild", sec.LocalID)
	if err != nil {
		t.Fatalf("create page: %v", err)
	}
	keep, err := tree.CreateNode(KindNotebook, "Kept", "")
	if err != nil {
		t.Fatalf("create second notebook: %v", err)
	}
	if err = SaveTree(tree); err != nil {
		t.Fatalf("save tree: %v", err)
	}

	// Corrupt the cache: the notebook row vanishes but its whole chain
	// survives, leaving the page two hops from any live ancestor.
	if _, err = db.Exec("DELETE FROM nodes WHERE local_id = ?", nb.LocalID); err != nil {
		t.Fatalf("drop notebook row: %v", err)
	}

	loaded, err := LoadTree()
	if err != nil {
		t.Fatalf("load tree: %v", err)
	}

	if loaded.GetNode(sec.LocalID) != nil {
		t.Error("orphaned section should be dropped")
	}
	if loaded.GetNode(page.LocalID) != nil {
		t.Error("grandchild of a dropped row must not survive with a dangling parent")
	}
	if loaded.GetNode(keep.LocalID) == nil {
		t.Fatal("unrelated notebook should survive")
	}
	if loaded.NodeCount() != 1 {
		t.Errorf("node count = %d, want 1", loaded.NodeCount())
	}

	// Child listings must not reference dropped ids.
	if kids := loaded.ChildrenOf(keep.LocalID); len(kids) != 0 {
		t.Errorf("kept notebook should have no children, got %d", len(kids))
	}
	for _, root := range loaded.Notebooks() {
		if root.LocalID == nb.LocalID {
			t.Error("dropped notebook must not appear among roots")
		}
	}
}

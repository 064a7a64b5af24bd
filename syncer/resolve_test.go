package syncer_test

import (
	"context"
	"testing"

	"binder/remote"
	"binder/syncer"
)

func TestResolveChildCreatesOnce(t *testing.T) {
	store := remote.NewMemStore(nil)
	r := syncer.NewResolver(store)
	ctx := context.Background()

	props := map[string]string{syncer.PropUID: "uid-1", syncer.PropKind: "notebook"}

	id1, err := r.ResolveChild(ctx, "", remote.RootID, "Work", remote.KindFolder, props)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	id2, err := r.ResolveChild(ctx, "", remote.RootID, "Work", remote.KindFolder, props)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if id1 != id2 {
		t.Errorf("resolving twice created two objects: %s vs %s", id1, id2)
	}
	if store.OpCount("create") != 1 {
		t.Errorf("expected 1 create, got %d", store.OpCount("create"))
	}

	obj, _ := store.GetObject(ctx, id1)
	if obj.Properties[syncer.PropUID] != "uid-1" {
		t.Error("new object should carry the uid tag")
	}
}

func TestResolveChildReusesKnownID(t *testing.T) {
	store := remote.NewMemStore(nil)
	r := syncer.NewResolver(store)
	ctx := context.Background()

	id, err := r.ResolveChild(ctx, "", remote.RootID, "Old Name", remote.KindFolder, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Known id short-circuits lookup and heals name drift.
	got, err := r.ResolveChild(ctx, id, remote.RootID, "New Name", remote.KindFolder, nil)
	if err != nil {
		t.Fatalf("resolve with known id: %v", err)
	}
	if got != id {
		t.Errorf("expected the same object, got %s", got)
	}

	obj, _ := store.GetObject(ctx, id)
	if obj.Name != "New Name" {
		t.Errorf("name = %q, want New Name", obj.Name)
	}
	if store.OpCount("list") != 1 {
		// One list from the initial resolve; the known-id path must not list.
		t.Errorf("expected 1 list, got %d", store.OpCount("list"))
	}
}

func TestResolveChildMovesMisparented(t *testing.T) {
	store := remote.NewMemStore(nil)
	r := syncer.NewResolver(store)
	ctx := context.Background()

	folderA, _ := store.CreateObject(ctx, remote.RootID, "A", remote.KindFolder)
	folderB, _ := store.CreateObject(ctx, remote.RootID, "B", remote.KindFolder)
	child, _ := store.CreateObject(ctx, folderA, "page", remote.KindFile)

	got, err := r.ResolveChild(ctx, child, folderB, "page", remote.KindFile, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != child {
		t.Errorf("expected the same object, got %s", got)
	}

	obj, _ := store.GetObject(ctx, child)
	if obj.ParentID() != folderB {
		t.Errorf("parent = %s, want %s", obj.ParentID(), folderB)
	}
}

func TestResolveChildStaleIDFallsBack(t *testing.T) {
	store := remote.NewMemStore(nil)
	r := syncer.NewResolver(store)
	ctx := context.Background()

	existing, _ := store.CreateObject(ctx, remote.RootID, "Work", remote.KindFolder)

	// A stale cached id is not an error; the name lookup finds the real
	// object instead of creating a duplicate.
	got, err := r.ResolveChild(ctx, "gone-id", remote.RootID, "Work", remote.KindFolder, nil)
	if err != nil {
		t.Fatalf("resolve with stale id: %v", err)
	}
	if got != existing {
		t.Errorf("expected existing object %s, got %s", existing, got)
	}
	if store.OpCount("create") != 1 {
		t.Errorf("expected no extra create, got %d", store.OpCount("create"))
	}
}

func TestResolveChildTrashedIDFallsBack(t *testing.T) {
	store := remote.NewMemStore(nil)
	r := syncer.NewResolver(store)
	ctx := context.Background()

	old, _ := store.CreateObject(ctx, remote.RootID, "Work", remote.KindFolder)
	store.Trash(ctx, old)

	got, err := r.ResolveChild(ctx, old, remote.RootID, "Work", remote.KindFolder, nil)
	if err != nil {
		t.Fatalf("resolve with trashed id: %v", err)
	}
	if got == old {
		t.Error("trashed object should not be reused")
	}
}

func TestResolveChildDuplicatesFirstMatchWins(t *testing.T) {
	store := remote.NewMemStore(nil)
	r := syncer.NewResolver(store)
	ctx := context.Background()

	// An external actor created two same-named folders.
	first, _ := store.CreateObject(ctx, remote.RootID, "Dup", remote.KindFolder)
	store.CreateObject(ctx, remote.RootID, "Dup", remote.KindFolder)

	got1, err := r.ResolveChild(ctx, "", remote.RootID, "Dup", remote.KindFolder, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got2, err := r.ResolveChild(ctx, "", remote.RootID, "Dup", remote.KindFolder, nil)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}

	if got1 != first || got2 != first {
		t.Errorf("first match should win deterministically: %s, %s, want %s", got1, got2, first)
	}
}

func TestResolveChildQuietWhenConsistent(t *testing.T) {
	store := remote.NewMemStore(nil)
	r := syncer.NewResolver(store)
	ctx := context.Background()

	props := map[string]string{syncer.PropUID: "uid-1"}
	id, err := r.ResolveChild(ctx, "", remote.RootID, "Work", remote.KindFolder, props)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	before := store.OpCount("props")
	if _, err = r.ResolveChild(ctx, id, remote.RootID, "Work", remote.KindFolder, props); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if store.OpCount("props") != before {
		t.Error("consistent object should not be re-tagged")
	}
}

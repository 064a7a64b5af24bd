package syncer_test

import (
	"context"
	"testing"
	"time"

	"binder/models"
	"binder/remote"
	"binder/syncer"
)

func editPage(t *testing.T, tree *models.Tree, pageID, text string) {
	t.Helper()

	content := models.NewContentTree()
	content.Rows = []*models.Row{{
		ID: "r1",
		Columns: []*models.Column{{
			ID:     "c1",
			Blocks: []*models.Block{{ID: "b1", Type: models.BlockText, Text: text}},
		}},
	}}
	if err := tree.SetPageContent(pageID, content); err != nil {
		t.Fatalf("set content: %v", err)
	}
}

func TestContentBatchPushesDirtyPages(t *testing.T) {
	tree, store, cleanup := setupSync(t)
	defer cleanup()

	_, _, page := seedTree(t, tree)
	ctx := context.Background()

	ss := syncer.NewStructureSync(tree, store, 10*time.Millisecond)
	if err := ss.SyncNow(ctx); err != nil {
		t.Fatalf("structure pass: %v", err)
	}

	editPage(t, tree, page.LocalID, "hello world")

	cs := syncer.NewContentSync(tree, store)
	if err := cs.SyncNow(ctx); err != nil {
		t.Fatalf("content batch: %v", err)
	}

	fresh := tree.GetNode(page.LocalID)
	if fresh.Dirty {
		t.Error("pushed page should not stay dirty")
	}
	if fresh.PushedDigest == "" {
		t.Error("pushed digest should be recorded")
	}

	data, err := store.ReadContent(ctx, fresh.RemoteID)
	if err != nil {
		t.Fatalf("read remote content: %v", err)
	}
	decoded, err := models.DecodePayload(data)
	if err != nil {
		t.Fatalf("decode remote content: %v", err)
	}
	if decoded.Rows[0].Columns[0].Blocks[0].Text != "hello world" {
		t.Error("remote payload does not match the edit")
	}

	// The push also journals a revision.
	revs, err := models.ListPageRevisions(page.LocalID, 0)
	if err != nil {
		t.Fatalf("list revisions: %v", err)
	}
	if len(revs) != 1 {
		t.Errorf("expected 1 revision, got %d", len(revs))
	}
}

func TestContentSkipsUnchangedDigest(t *testing.T) {
	tree, store, cleanup := setupSync(t)
	defer cleanup()

	_, _, page := seedTree(t, tree)
	ctx := context.Background()

	ss := syncer.NewStructureSync(tree, store, 10*time.Millisecond)
	if err := ss.SyncNow(ctx); err != nil {
		t.Fatalf("structure pass: %v", err)
	}

	editPage(t, tree, page.LocalID, "same text")
	cs := syncer.NewContentSync(tree, store)
	if err := cs.SyncNow(ctx); err != nil {
		t.Fatalf("first batch: %v", err)
	}

	writes := store.OpCount("write")

	// Re-dirty with identical content; the digest check skips the upload.
	editPage(t, tree, page.LocalID, "same text")
	if err := cs.SyncNow(ctx); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	if store.OpCount("write") != writes {
		t.Errorf("unchanged content should not re-upload: %d -> %d", writes, store.OpCount("write"))
	}
	if tree.GetNode(page.LocalID).Dirty {
		t.Error("dirty flag should clear even when nothing uploads")
	}
}

func TestContentDefersUntilStructure(t *testing.T) {
	tree, store, cleanup := setupSync(t)
	defer cleanup()

	_, _, page := seedTree(t, tree)
	ctx := context.Background()

	// No structure pass yet: the page has no remote object.
	editPage(t, tree, page.LocalID, "too early")

	cs := syncer.NewContentSync(tree, store)
	if err := cs.SyncNow(ctx); err != nil {
		t.Fatalf("content batch: %v", err)
	}

	if store.OpCount("write") != 0 {
		t.Fatal("content must not be written before structure resolves the page")
	}
	if !tree.GetNode(page.LocalID).Dirty {
		t.Fatal("deferred page should stay dirty")
	}

	// After a structure pass, the retry hook pushes the deferred page.
	ss := syncer.NewStructureSync(tree, store, 10*time.Millisecond)
	if err := ss.SyncNow(ctx); err != nil {
		t.Fatalf("structure pass: %v", err)
	}

	batchDone := make(chan struct{}, 1)
	cs.OnBatchDone(func(pushed int, err error) {
		if pushed > 0 {
			batchDone <- struct{}{}
		}
	})
	cs.RetryAfterStructure(ctx)

	select {
	case <-batchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred page was not pushed after structure sync")
	}
	if tree.GetNode(page.LocalID).Dirty {
		t.Error("page should be clean after the retry batch")
	}
}

// midPassStore runs a hook before the first GetObject, which lands in
// the middle of a structure pass resolving the root by known id.
type midPassStore struct {
	remote.Store
	during func()
}

func (s *midPassStore) GetObject(ctx context.Context, id string) (*remote.Object, error) {
	if s.during != nil {
		d := s.during
		s.during = nil
		d()
	}
	return s.Store.GetObject(ctx, id)
}

func TestContentYieldsToStructurePass(t *testing.T) {
	tree, store, cleanup := setupSync(t)
	defer cleanup()

	_, _, page := seedTree(t, tree)
	ctx := context.Background()

	wrapped := &midPassStore{Store: store}
	ss := syncer.NewStructureSync(tree, wrapped, 10*time.Millisecond)
	if err := ss.SyncNow(ctx); err != nil {
		t.Fatalf("structure pass: %v", err)
	}

	editPage(t, tree, page.LocalID, "mid-pass edit")

	cs := syncer.NewContentSync(tree, store)
	cs.DeferToStructure(ss.IsRunning)

	// A batch starting while the pass holds its slot must not upload.
	writes := store.OpCount("write")
	wrapped.during = func() {
		if err := cs.SyncNow(ctx); err != nil {
			t.Errorf("yielding batch should not error: %v", err)
		}
		if store.OpCount("write") != writes {
			t.Error("content must not upload while a structure pass is in flight")
		}
	}
	if err := ss.SyncNow(ctx); err != nil {
		t.Fatalf("second structure pass: %v", err)
	}

	if !tree.GetNode(page.LocalID).Dirty {
		t.Fatal("yielded page should stay dirty")
	}

	// The yield armed the retry hook; once the pass is done it pushes.
	batchDone := make(chan struct{}, 1)
	cs.OnBatchDone(func(pushed int, err error) {
		if pushed > 0 {
			batchDone <- struct{}{}
		}
	})
	cs.RetryAfterStructure(ctx)

	select {
	case <-batchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("yielded page was not pushed after the structure pass")
	}
	if tree.GetNode(page.LocalID).Dirty {
		t.Error("page should be clean after the retry batch")
	}
}

func TestContentRetryHookIsOneShot(t *testing.T) {
	tree, store, cleanup := setupSync(t)
	defer cleanup()

	seedTree(t, tree)
	ctx := context.Background()

	cs := syncer.NewContentSync(tree, store)
	// No deferral recorded: the retry hook must not start a batch.
	fired := make(chan struct{}, 1)
	cs.OnBatchDone(func(int, error) { fired <- struct{}{} })
	cs.RetryAfterStructure(ctx)

	select {
	case <-fired:
		t.Fatal("retry without a prior deferral should not run a batch")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestContentFailureIsolatesPages(t *testing.T) {
	tree, store, cleanup := setupSync(t)
	defer cleanup()

	nb, _ := tree.CreateNode(models.KindNotebook, "NB", "")
	sec, _ := tree.CreateNode(models.KindSection, "S", nb.LocalID)
	pageA, _ := tree.CreateNode(models.KindPage, "A", sec.LocalID)
	pageB, _ := tree.CreateNode(models.KindPage, "B", sec.LocalID)

	ctx := context.Background()
	ss := syncer.NewStructureSync(tree, store, 10*time.Millisecond)
	if err := ss.SyncNow(ctx); err != nil {
		t.Fatalf("structure pass: %v", err)
	}

	editPage(t, tree, pageA.LocalID, "first")
	editPage(t, tree, pageB.LocalID, "second")

	// Fail exactly one write; pages sort by local id, so one of the two
	// uploads fails and the other succeeds.
	store.FailNext(1, remote.ErrTransient)

	cs := syncer.NewContentSync(tree, store)
	if err := cs.SyncNow(ctx); err != nil {
		t.Fatalf("batch: %v", err)
	}

	dirty := tree.DirtyPages()
	if len(dirty) != 1 {
		t.Fatalf("expected exactly one page still dirty, got %d", len(dirty))
	}
	if len(tree.AttentionNodes()) != 1 {
		t.Errorf("failed page should carry an attention marker")
	}

	// Clean retry pushes the remaining page and clears the marker.
	if err := cs.SyncNow(ctx); err != nil {
		t.Fatalf("retry batch: %v", err)
	}
	if len(tree.DirtyPages()) != 0 {
		t.Error("all pages should be clean after the retry")
	}
	if len(tree.AttentionNodes()) != 0 {
		t.Error("attention should clear after a successful push")
	}
}

package syncer

import (
	"context"
	"errors"
	"sync"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"binder/models"
	"binder/remote"
)

// ContentSync pushes dirty page bodies to the remote store. Like the
// structure synchronizer it is single-flight with a coalesced trailing
// re-run, but it never mutates structure: a dirty page whose remote
// object does not exist yet is deferred until after the next structure
// pass instead of creating the object itself.
type ContentSync struct {
	tree  *models.Tree
	store remote.Store

	mu      sync.Mutex
	running bool
	pending bool

	// retryAfterStructure is set when a batch found pages it could not
	// push for lack of a remote object, or yielded to a structure pass
	// in flight. The engine calls RetryAfterStructure from the structure
	// pass-done hook.
	retryAfterStructure bool

	// structureBusy reports whether a structure pass holds its
	// single-flight slot. A batch that starts while it does aborts
	// without pushing anything.
	structureBusy func() bool

	onBatchDone func(pushed int, err error)
}

// NewContentSync wires a content synchronizer over the tree and store.
func NewContentSync(tree *models.Tree, store remote.Store) *ContentSync {
	return &ContentSync{tree: tree, store: store}
}

// OnBatchDone registers the batch-completion hook. Must be set before
// the first trigger.
func (c *ContentSync) OnBatchDone(fn func(pushed int, err error)) {
	c.onBatchDone = fn
}

// DeferToStructure registers the structure synchronizer's busy check.
// Must be set before the first trigger.
func (c *ContentSync) DeferToStructure(busy func() bool) {
	c.structureBusy = busy
}

// TriggerSync requests a content batch, coalescing with any batch in
// flight.
func (c *ContentSync) TriggerSync(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.pending = true
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.runLoop(ctx)
}

// SyncNow runs a batch synchronously.
func (c *ContentSync) SyncNow(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.pending = true
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	pushed, err := c.batch(ctx)
	c.finish(ctx, pushed, err)
	return err
}

// RetryAfterStructure re-triggers a batch if the last one deferred any
// pages waiting on structure sync. Called by the engine whenever a
// structure pass completes.
func (c *ContentSync) RetryAfterStructure(ctx context.Context) {
	c.mu.Lock()
	retry := c.retryAfterStructure
	c.retryAfterStructure = false
	c.mu.Unlock()
	if retry {
		c.TriggerSync(ctx)
	}
}

func (c *ContentSync) runLoop(ctx context.Context) {
	pushed, err := c.batch(ctx)
	c.finish(ctx, pushed, err)
}

func (c *ContentSync) finish(ctx context.Context, pushed int, err error) {
	if c.onBatchDone != nil {
		c.onBatchDone(pushed, err)
	}

	c.mu.Lock()
	rerun := c.pending
	c.pending = false
	if !rerun {
		c.running = false
	}
	c.mu.Unlock()

	if rerun {
		go c.runLoop(ctx)
	}
}

// batch pushes every dirty page once. Pages fail independently: an
// upload error marks that page for attention and leaves it dirty, while
// the rest of the batch proceeds. Credential failures abort the batch.
func (c *ContentSync) batch(ctx context.Context) (int, error) {
	if c.structureBusy != nil && c.structureBusy() {
		// A structure pass is rearranging remote objects right now.
		// Pushing into a moving hierarchy risks writing to an object
		// about to be replaced; back off and retry once the pass is done.
		c.mu.Lock()
		c.retryAfterStructure = true
		c.mu.Unlock()
		logger.Debug("Content batch deferred, structure pass in flight")
		return 0, nil
	}

	pages := c.tree.DirtyPages()
	if len(pages) == 0 {
		return 0, nil
	}

	pushed := 0
	deferred := 0
	for _, page := range pages {
		switch err := c.pushPage(ctx, page); {
		case err == nil:
			pushed++
		case errors.Is(err, errAwaitStructure):
			deferred++
		case remote.IsAuthExpired(err):
			return pushed, serr.Wrap(err, "credential failure during content batch")
		default:
			c.tree.SetAttention(page.LocalID, err.Error())
			logger.LogErr(err, "Page content push failed",
				"local_id", page.LocalID, "name", page.Name)
		}
	}

	if deferred > 0 {
		c.mu.Lock()
		c.retryAfterStructure = true
		c.mu.Unlock()
		logger.Debug("Content pages deferred until structure sync", "count", deferred)
	}
	return pushed, nil
}

// errAwaitStructure marks a page skipped because its remote object is
// not resolved yet.
var errAwaitStructure = errors.New("page awaits structure sync")

// pushPage uploads one page body if its digest differs from the last
// pushed digest, then records a revision and clears the dirty flag.
func (c *ContentSync) pushPage(ctx context.Context, page *models.Node) error {
	if page.RemoteID == "" {
		return errAwaitStructure
	}

	digest, err := page.Content.Digest()
	if err != nil {
		return err
	}
	if digest == page.PushedDigest {
		// Dirty flag without a content change (e.g. an edit that
		// normalized away). Nothing to upload.
		c.tree.ClearDirty(page.LocalID, digest)
		return nil
	}

	payload, err := page.Content.EncodePayload()
	if err != nil {
		return err
	}
	if err = c.store.WriteContent(ctx, page.RemoteID, payload); err != nil {
		if remote.IsNotFound(err) {
			// Remote object vanished out-of-band. Defer; the next
			// structure pass re-creates it.
			return errAwaitStructure
		}
		return serr.Wrap(err, "failed to write page content")
	}

	snapshot, err := page.Content.CanonicalJSON()
	if err == nil {
		err = models.RecordPageRevision(page.LocalID, snapshot)
	}
	if err != nil {
		// The push itself succeeded; a journal failure must not leave
		// the page permanently dirty.
		logger.LogErr(err, "Failed to record page revision", "local_id", page.LocalID)
	}

	c.tree.ClearDirty(page.LocalID, digest)
	if page.Attention != "" {
		c.tree.SetAttention(page.LocalID, "")
	}
	return nil
}

package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"binder/models"
	"binder/remote"
)

// StructureSync mirrors the local hierarchy onto the remote store:
// notebooks and sections become folders, pages become files. Exactly
// one pass runs at a time; triggers arriving mid-pass coalesce into a
// single trailing re-run after a short backoff.
type StructureSync struct {
	tree     *models.Tree
	store    remote.Store
	resolver *Resolver
	backoff  time.Duration

	mu      sync.Mutex
	running bool
	pending bool
	rootID  string

	// epoch increments at the start of every pass. The reconciliation
	// sweep snapshots it before enumerating and drops its planned
	// repairs if a pass started underneath it.
	epoch atomic.Int64

	// onPassDone fires after every completed pass (even a failed one),
	// outside the single-flight lock. The engine hooks persistence,
	// status publication and the content retry here.
	onPassDone func(err error)
}

// NewStructureSync wires a structure synchronizer over the tree and
// store. backoff spaces a trailing re-run from the pass before it.
func NewStructureSync(tree *models.Tree, store remote.Store, backoff time.Duration) *StructureSync {
	return &StructureSync{
		tree:     tree,
		store:    store,
		resolver: NewResolver(store),
		backoff:  backoff,
	}
}

// OnPassDone registers the pass-completion hook. Must be set before the
// first trigger.
func (s *StructureSync) OnPassDone(fn func(err error)) {
	s.onPassDone = fn
}

// Epoch returns the current sync epoch.
func (s *StructureSync) Epoch() int64 {
	return s.epoch.Load()
}

// IsRunning reports whether a pass currently holds the single-flight
// slot. The content synchronizer checks it to avoid uploading while
// structure is being rearranged underneath it.
func (s *StructureSync) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RootRemoteID returns the resolved remote id of the root container, or
// empty before the first successful pass.
func (s *StructureSync) RootRemoteID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootID
}

// SetRootRemoteID seeds the root container id, used when adopting a
// manifest that already knows it.
func (s *StructureSync) SetRootRemoteID(id string) {
	s.mu.Lock()
	s.rootID = id
	s.mu.Unlock()
}

// TriggerSync requests a structure pass. If one is already in flight
// the request is remembered and exactly one more pass runs after it,
// regardless of how many triggers arrive in between.
func (s *StructureSync) TriggerSync(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.runLoop(ctx)
}

// SyncNow runs a pass synchronously, for callers that need the result
// before proceeding (startup, tests). It still participates in the
// single-flight protocol.
func (s *StructureSync) SyncNow(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.pending = true
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	err := s.pass(ctx)
	s.finish(ctx, err)
	return err
}

func (s *StructureSync) runLoop(ctx context.Context) {
	err := s.pass(ctx)
	s.finish(ctx, err)
}

// finish releases the single-flight slot and, when a trigger arrived
// mid-pass, schedules the one trailing re-run.
func (s *StructureSync) finish(ctx context.Context, err error) {
	if s.onPassDone != nil {
		s.onPassDone(err)
	}

	s.mu.Lock()
	rerun := s.pending
	s.pending = false
	if !rerun {
		s.running = false
	}
	s.mu.Unlock()

	if rerun {
		go func() {
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				s.mu.Lock()
				s.running = false
				s.mu.Unlock()
				return
			}
			s.runLoop(ctx)
		}()
	}
}

// pass is one full structure synchronization: resolve the root
// container, drain the trash queue, then walk the hierarchy top-down
// resolving every node. Per-node failures mark the node for attention
// and skip its subtree; only root resolution and credential failures
// abort the pass.
func (s *StructureSync) pass(ctx context.Context) error {
	s.epoch.Add(1)
	started := time.Now()

	rootID, err := s.resolver.ResolveChild(ctx, s.RootRemoteID(), remote.RootID, RootFolderName, remote.KindFolder, nil)
	if err != nil {
		return serr.Wrap(err, "failed to resolve root container")
	}
	s.SetRootRemoteID(rootID)

	s.drainTrash(ctx)

	var synced, failed int
	for _, nb := range s.tree.Notebooks() {
		if err := s.syncSubtree(ctx, nb, rootID, &synced, &failed); err != nil {
			return err
		}
	}

	if err := models.SaveManifest(s.tree.ManifestSnapshot()); err != nil {
		return serr.Wrap(err, "failed to save sync manifest")
	}

	logger.Debug("Structure pass complete",
		"synced", synced, "failed", failed, "elapsed", time.Since(started).String())
	return nil
}

// drainTrash trashes every queued remote object. Already-gone objects
// are fine; objects that fail for other reasons go back on the queue
// for the next pass.
func (s *StructureSync) drainTrash(ctx context.Context) {
	queue := s.tree.DrainTrashQueue()
	var requeue []string
	for _, remoteID := range queue {
		err := s.store.Trash(ctx, remoteID)
		if err == nil || remote.IsNotFound(err) {
			continue
		}
		logger.LogErr(err, "Failed to trash remote object, will retry", "remote_id", remoteID)
		requeue = append(requeue, remoteID)
	}
	s.tree.RequeueTrash(requeue)
}

// syncSubtree resolves one node and, on success, recurses into its
// children. Returns an error only for pass-fatal conditions.
func (s *StructureSync) syncSubtree(ctx context.Context, n *models.Node, parentRemoteID string, synced, failed *int) error {
	kind := remote.KindFolder
	if n.Kind == models.KindPage {
		kind = remote.KindFile
	}

	props := map[string]string{
		PropUID:  n.LocalID,
		PropKind: string(n.Kind),
	}
	if n.Color != "" {
		props[PropColor] = n.Color
	}

	remoteID, err := s.resolver.ResolveChild(ctx, n.RemoteID, parentRemoteID, n.Name, kind, props)
	if err != nil {
		if remote.IsAuthExpired(err) {
			return serr.Wrap(err, "credential failure during structure pass")
		}
		// Isolated failure: mark the node, skip its descendants, keep
		// going with the rest of the tree.
		*failed++
		s.tree.SetAttention(n.LocalID, err.Error())
		logger.LogErr(err, "Node failed structure sync, skipping subtree",
			"local_id", n.LocalID, "name", n.Name)
		return nil
	}

	if remoteID != n.RemoteID {
		s.tree.SetRemoteID(n.LocalID, remoteID)
	}
	if n.Attention != "" {
		s.tree.SetAttention(n.LocalID, "")
	}
	*synced++

	for _, child := range s.tree.ChildrenOf(n.LocalID) {
		if err := s.syncSubtree(ctx, child, remoteID, synced, failed); err != nil {
			return err
		}
	}
	return nil
}

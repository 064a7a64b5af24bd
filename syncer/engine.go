package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"binder/models"
	"binder/remote"
)

// Engine owns the background synchronization lifecycle: it listens to
// tree mutations, debounces them into structure passes, runs content
// batches on an interval, persists the tree cache, and schedules the
// reconciliation sweep. The UI talks to the tree; the engine makes the
// remote store follow.
type Engine struct {
	cfg   *Config
	tree  *models.Tree
	store remote.Store

	Structure *StructureSync
	Content   *ContentSync
	Status    *StatusPublisher
	sweep     *Sweep

	structureTask *Task
	persistTask   *Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	lastSweep  *SweepReport
	lastBridge *BridgeReport
}

// NewEngine wires an engine over the tree and store. Start must be
// called before any synchronization happens.
func NewEngine(cfg *Config, tree *models.Tree, store remote.Store) *Engine {
	e := &Engine{
		cfg:    cfg,
		tree:   tree,
		store:  store,
		Status: NewStatusPublisher(),
	}
	e.Structure = NewStructureSync(tree, store, cfg.StructureBackoff)
	e.Content = NewContentSync(tree, store)
	e.sweep = NewSweep(store, e.Structure)

	e.structureTask = NewTask(cfg.StructureDebounce, e.kickStructure)
	e.persistTask = NewTask(cfg.PersistDebounce, e.persist)

	e.Structure.OnPassDone(e.structureDone)
	e.Content.OnBatchDone(e.contentDone)
	e.Content.DeferToStructure(e.Structure.IsRunning)

	tree.OnStructureChange(func() {
		e.structureTask.Schedule()
		e.persistTask.Schedule()
	})
	tree.OnPageDirty(func(string) {
		e.persistTask.Schedule()
	})

	return e
}

// Start brings the engine online: adopt any pre-existing remote layout,
// run the initial structure pass, then start the content and sweep
// loops. Blocks until the initial pass completes so callers see a
// consistent root container.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.adoptExisting(e.ctx); err != nil {
		return err
	}

	e.Status.SetSyncing()
	if err := e.Structure.SyncNow(e.ctx); err != nil {
		// The engine still comes up; edits queue locally and the next
		// trigger retries.
		logger.LogErr(err, "Initial structure pass failed, continuing offline")
	}

	e.wg.Add(2)
	go e.contentLoop()
	go e.sweepLoop()

	logger.Info("Sync engine started", "nodes", e.tree.NodeCount())
	return nil
}

// Stop shuts the engine down and flushes the tree cache.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.structureTask.Stop()
	e.persistTask.Stop()
	e.wg.Wait()
	e.persist()
	logger.Info("Sync engine stopped")
}

// LastSweep returns the most recent sweep report, or nil before the
// first sweep.
func (e *Engine) LastSweep() *SweepReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSweep
}

// LastBridge returns the legacy adoption report, or nil when no
// adoption ran.
func (e *Engine) LastBridge() *BridgeReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBridge
}

// SweepNow runs one reconciliation sweep on demand.
func (e *Engine) SweepNow(ctx context.Context) (*SweepReport, error) {
	report, err := e.sweep.Run(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.lastSweep = report
	e.mu.Unlock()
	return report, nil
}

// adoptExisting restores identity from the saved manifest, or bridges
// an untagged legacy layout when this installation has never synced.
func (e *Engine) adoptExisting(ctx context.Context) error {
	manifest, err := models.LoadManifest()
	if err != nil {
		return serr.Wrap(err, "failed to load sync manifest at startup")
	}
	if manifest != nil {
		return nil
	}

	bridge := NewLegacyBridge(e.store)
	report, err := bridge.Run(ctx, e.tree)
	if err != nil {
		return serr.Wrap(err, "legacy layout adoption failed")
	}
	if report.Ran {
		e.mu.Lock()
		e.lastBridge = report
		e.mu.Unlock()
	}
	return nil
}

// kickStructure is the debounced structure trigger.
func (e *Engine) kickStructure() {
	if e.ctx == nil || e.ctx.Err() != nil {
		return
	}
	e.Status.SetSyncing()
	e.Structure.TriggerSync(e.ctx)
}

func (e *Engine) structureDone(err error) {
	if err != nil {
		e.Status.SetError(err.Error())
		logger.LogErr(err, "Structure pass failed")
	} else {
		e.Status.SetIdle()
	}
	e.persistTask.Schedule()
	if e.ctx != nil {
		e.Content.RetryAfterStructure(e.ctx)
	}
}

func (e *Engine) contentDone(pushed int, err error) {
	if err != nil {
		e.Status.SetError(err.Error())
		logger.LogErr(err, "Content batch failed")
		return
	}
	if pushed > 0 {
		e.Status.SetIdle()
		e.persistTask.Schedule()
		logger.Debug("Content batch pushed", "pages", pushed)
	}
}

// persist flushes the tree and trash queue to the durable cache.
func (e *Engine) persist() {
	if err := models.SaveTree(e.tree); err != nil {
		logger.LogErr(err, "Failed to persist tree cache")
	}
	if err := models.SaveTrashQueue(e.tree); err != nil {
		logger.LogErr(err, "Failed to persist trash queue")
	}
}

func (e *Engine) contentLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.ContentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.Content.TriggerSync(e.ctx)
		}
	}
}

func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	select {
	case <-e.ctx.Done():
		return
	case <-time.After(e.cfg.SweepStartupDelay):
	}

	for {
		if report, err := e.SweepNow(e.ctx); err != nil {
			logger.LogErr(err, "Reconciliation sweep failed")
		} else if report.Misplaced+report.Orphans+report.Trashed > 0 {
			logger.Info("Reconciliation sweep repaired drift",
				"misplaced", report.Misplaced, "orphans", report.Orphans, "trashed", report.Trashed)
		}

		select {
		case <-e.ctx.Done():
			return
		case <-time.After(e.cfg.SweepInterval):
		}
	}
}

package syncer

import (
	"context"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"binder/models"
	"binder/remote"
)

// Sweep is the periodic reconciliation pass. It compares the durable
// sync manifest against the set of tagged remote objects and repairs
// drift caused by out-of-band changes. The manifest is its only source
// of truth about local state — the sweep never reads the live tree, so
// it cannot be confused by mutations racing with it. Instead, it
// snapshots the sync epoch before enumerating and throws its plan away
// if a structure pass started underneath it.
type Sweep struct {
	store     remote.Store
	structure *StructureSync
	resolver  *Resolver
}

// NewSweep wires a sweep over the store and structure synchronizer.
func NewSweep(store remote.Store, structure *StructureSync) *Sweep {
	return &Sweep{
		store:     store,
		structure: structure,
		resolver:  NewResolver(store),
	}
}

// SweepReport summarizes what one sweep found and did.
type SweepReport struct {
	Enumerated   int  `json:"enumerated"`    // tagged objects found remotely
	Missing      int  `json:"missing"`       // manifest entries with no live remote object
	Misplaced    int  `json:"misplaced"`     // objects moved back under their expected parent
	Orphans      int  `json:"orphans"`       // unknown tagged objects moved to quarantine
	Trashed      int  `json:"trashed"`       // objects for locally-deleted nodes trashed
	RepairErrors int  `json:"repair_errors"` // repairs that failed (retried next sweep)
	DroppedStale bool `json:"dropped_stale"` // plan discarded, structure pass intervened
}

// sweepAction is one planned repair.
type sweepAction struct {
	kind      string // "move", "quarantine", "trash"
	objectID  string
	oldParent string
	newParent string
}

// Run executes one sweep. Enumeration is all-or-nothing: if listing the
// tagged objects fails, the sweep aborts without touching anything.
// Individual repair failures are counted and retried on the next sweep.
func (s *Sweep) Run(ctx context.Context) (*SweepReport, error) {
	manifest, err := models.LoadManifest()
	if err != nil {
		return nil, serr.Wrap(err, "failed to load sync manifest for sweep")
	}
	if manifest == nil {
		// Nothing has ever been synced; there is nothing to reconcile.
		return &SweepReport{}, nil
	}

	rootID := s.structure.RootRemoteID()
	if rootID == "" {
		// No structure pass has resolved the root container yet.
		return &SweepReport{}, nil
	}

	epoch := s.structure.Epoch()

	objects, err := s.store.SearchByProperty(ctx, PropUID, "")
	if err != nil {
		return nil, serr.Wrap(err, "failed to enumerate tagged remote objects")
	}

	// The quarantine folder is looked up, never created here; it exists
	// only once a previous sweep parked something. Without it no object
	// can already be parked, so classification treats every unknown as
	// new.
	quarantineID, err := s.quarantineFolderID(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Enumerated: len(objects)}
	plan := s.classify(manifest, objects, rootID, quarantineID, report)

	// A structure pass racing the enumeration may have already acted on
	// everything this plan would touch. Stale plans are dropped whole.
	if s.structure.Epoch() != epoch {
		report.DroppedStale = true
		report.Misplaced, report.Orphans, report.Trashed = 0, 0, 0
		logger.Info("Sweep plan dropped, structure pass intervened", "planned", len(plan))
		return report, nil
	}

	s.apply(ctx, plan, quarantineID, report)
	return report, nil
}

// quarantineFolderID finds the quarantine folder under the store root,
// or returns empty when no sweep has ever created it. A listing failure
// aborts the sweep like any enumeration failure would.
func (s *Sweep) quarantineFolderID(ctx context.Context) (string, error) {
	matches, err := s.store.ListChildren(ctx, remote.RootID,
		&remote.ChildFilter{Name: QuarantineFolderName, Kind: remote.KindFolder})
	if err != nil {
		return "", serr.Wrap(err, "failed to look for quarantine folder")
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0].ID, nil
}

// classify builds the repair plan from the manifest and the enumerated
// objects, updating the report counters as it goes.
func (s *Sweep) classify(manifest *models.Manifest, objects []remote.Object, rootID, quarantineID string, report *SweepReport) []sweepAction {
	byUID := make(map[string]*remote.Object, len(objects))
	for i := range objects {
		obj := &objects[i]
		byUID[obj.Properties[PropUID]] = obj
	}

	// Tagged objects already inside the quarantine subtree were parked
	// by an earlier sweep (or a human); re-moving them every sweep would
	// make repairs non-idempotent. The set is closed over parentage so
	// children of a parked folder count as parked too.
	inQuarantine := make(map[string]bool)
	if quarantineID != "" {
		inQuarantine[quarantineID] = true
		for changed := true; changed; {
			changed = false
			for i := range objects {
				obj := &objects[i]
				if !inQuarantine[obj.ID] && inQuarantine[obj.ParentID()] {
					inQuarantine[obj.ID] = true
					changed = true
				}
			}
		}
	}

	var plan []sweepAction

	// Manifest side: every entry should have a live tagged object in
	// the right place.
	for uid := range manifest.Entries {
		obj, ok := byUID[uid]
		if !ok {
			// Object gone (or tag stripped) out-of-band. The sweep does
			// not create objects; the next structure pass rebuilds it
			// from the live tree.
			report.Missing++
			continue
		}
		expected := manifest.ExpectedParentRemoteID(uid, rootID)
		if expected == "" || obj.ParentID() == expected {
			continue
		}
		report.Misplaced++
		plan = append(plan, sweepAction{
			kind:      "move",
			objectID:  obj.ID,
			oldParent: obj.ParentID(),
			newParent: expected,
		})
	}

	// Remote side: tagged objects the manifest does not know about.
	for uid, obj := range byUID {
		if uid == "" {
			continue
		}
		if _, known := manifest.Entries[uid]; known {
			continue
		}
		if manifest.IsQuarantined(uid) {
			// The node was deleted locally; its object should be gone.
			report.Trashed++
			plan = append(plan, sweepAction{kind: "trash", objectID: obj.ID})
			continue
		}
		if inQuarantine[obj.ID] {
			// Already parked; nothing left to do.
			continue
		}
		// Unknown provenance. Never destroy it; park it where a human
		// can look at it.
		report.Orphans++
		plan = append(plan, sweepAction{
			kind:      "quarantine",
			objectID:  obj.ID,
			oldParent: obj.ParentID(),
		})
	}

	return plan
}

// apply executes the plan. Each action fails independently. The
// quarantine folder is created on first use when no sweep has needed it
// before.
func (s *Sweep) apply(ctx context.Context, plan []sweepAction, quarantineID string, report *SweepReport) {
	for _, act := range plan {
		var err error
		switch act.kind {
		case "move":
			err = s.store.Move(ctx, act.objectID, act.newParent, act.oldParent)
		case "trash":
			err = s.store.Trash(ctx, act.objectID)
		case "quarantine":
			if quarantineID == "" {
				quarantineID, err = s.resolver.ResolveChild(
					ctx, "", remote.RootID, QuarantineFolderName, remote.KindFolder, nil)
				if err != nil {
					break
				}
			}
			err = s.store.Move(ctx, act.objectID, quarantineID, act.oldParent)
		}
		if err != nil && !remote.IsNotFound(err) {
			report.RepairErrors++
			logger.LogErr(err, "Sweep repair failed",
				"action", act.kind, "object_id", act.objectID)
		}
	}
}

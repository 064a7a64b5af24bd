// Package syncer maps the in-memory notebook hierarchy onto the remote
// store's primitive folder/file operations and keeps the two consistent
// despite mutation bursts, concurrent background passes and out-of-band
// remote changes.
package syncer

import (
	"context"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"binder/remote"
)

// Tagged property keys written onto remote objects. PropUID carries the
// stable cross-reference UID (the node's local id) and is the primary
// reconciliation key; name-based lookup is only the bootstrap path
// before a UID exists.
const (
	PropUID   = "binderUid"
	PropKind  = "binderKind"
	PropColor = "binderColor"
	PropIcon  = "binderIcon"
)

// Remote container names.
const (
	RootFolderName       = "Binder"
	QuarantineFolderName = "Binder Quarantine"
)

// Resolver implements idempotent get-or-create of a named child under a
// named parent. Calling it twice with the same arguments yields the
// same remote object — never two objects with the same name under the
// same parent.
type Resolver struct {
	store remote.Store
}

// NewResolver returns a resolver over the given store.
func NewResolver(store remote.Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveChild finds or creates the remote object for (parentRemoteID,
// name, kind), short-circuiting on first success:
//
//  1. A supplied knownRemoteID is reused if the object still exists and
//     is not trashed — renamed and re-parented to match if needed.
//  2. Otherwise the parent's children are listed by exact name and
//     kind; the first match (stable order) wins.
//  3. Otherwise a new object is created and tagged.
//
// A stale knownRemoteID is not an error: it falls through to lookup.
// Any other remote failure is returned as-is; the operation is safe to
// retry because every step is idempotent.
func (r *Resolver) ResolveChild(ctx context.Context, knownRemoteID, parentRemoteID, name string, kind remote.Kind, props map[string]string) (string, error) {
	// Step 1: reuse the cached id when the object is still live.
	if knownRemoteID != "" {
		obj, err := r.store.GetObject(ctx, knownRemoteID)
		switch {
		case err == nil && !obj.Trashed:
			if obj.Name != name {
				if err = r.store.Rename(ctx, obj.ID, name); err != nil {
					return "", serr.Wrap(err, "failed to rename remote object")
				}
			}
			if obj.ParentID() != parentRemoteID {
				if err = r.store.Move(ctx, obj.ID, parentRemoteID, obj.ParentID()); err != nil {
					return "", serr.Wrap(err, "failed to move remote object")
				}
			}
			if err = r.ensureProps(ctx, obj, props); err != nil {
				return "", err
			}
			return obj.ID, nil
		case err == nil && obj.Trashed:
			// Trashed out-of-band; treat like a stale reference.
		case remote.IsNotFound(err):
			// Stale reference, fall through to lookup by name.
		default:
			return "", serr.Wrap(err, "failed to check cached remote id")
		}
	}

	// Step 2: look up by exact name and kind under the parent.
	children, err := r.store.ListChildren(ctx, parentRemoteID, &remote.ChildFilter{Name: name, Kind: kind})
	if err != nil {
		return "", serr.Wrap(err, "failed to list remote children")
	}
	if len(children) > 0 {
		if len(children) > 1 {
			// Structural conflict from an external actor. First match
			// wins deterministically; never a crash.
			logger.Info("Duplicate remote objects for name, using first",
				"name", name, "parent", parentRemoteID, "count", len(children))
		}
		obj := children[0]
		if err = r.ensureProps(ctx, &obj, props); err != nil {
			return "", err
		}
		return obj.ID, nil
	}

	// Step 3: create.
	id, err := r.store.CreateObject(ctx, parentRemoteID, name, kind)
	if err != nil {
		return "", serr.Wrap(err, "failed to create remote object")
	}
	if len(props) > 0 {
		if err = r.store.UpdateProperties(ctx, id, props); err != nil {
			// The object exists but is untagged; a retry re-finds it by
			// name in step 2 and tags it then.
			return "", serr.Wrap(err, "failed to tag new remote object")
		}
	}
	return id, nil
}

// WriteProperties merges a property bag onto a remote object without
// clobbering keys it does not know about.
func (r *Resolver) WriteProperties(ctx context.Context, remoteID string, props map[string]string) error {
	if err := r.store.UpdateProperties(ctx, remoteID, props); err != nil {
		return serr.Wrap(err, "failed to write remote properties")
	}
	return nil
}

// ensureProps writes props only when some key is missing or different,
// keeping resolution passes quiet on an already-consistent store.
func (r *Resolver) ensureProps(ctx context.Context, obj *remote.Object, props map[string]string) error {
	if len(props) == 0 {
		return nil
	}
	stale := false
	for k, v := range props {
		if obj.Properties[k] != v {
			stale = true
			break
		}
	}
	if !stale {
		return nil
	}
	if err := r.store.UpdateProperties(ctx, obj.ID, props); err != nil {
		return serr.Wrap(err, "failed to update remote properties")
	}
	return nil
}

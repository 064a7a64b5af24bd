package syncer

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"binder/models"
	"binder/remote"
)

// LegacyIndexName is the catalog file old clients kept at the root of
// the remote layout. The bridge renames it aside so old clients stop
// writing to a layout this engine now owns.
const LegacyIndexName = "index.json"

// LegacyBridge adopts a remote layout written before objects carried
// UID tags. It runs at most once, on first startup against an existing
// layout, and only when no sync manifest has ever been saved. The
// untagged layout is classified purely by position: folders directly
// under the root container are notebooks, folders one level deeper are
// sections, and files under those are pages.
type LegacyBridge struct {
	store    remote.Store
	resolver *Resolver
}

// NewLegacyBridge wires a bridge over the store.
func NewLegacyBridge(store remote.Store) *LegacyBridge {
	return &LegacyBridge{store: store, resolver: NewResolver(store)}
}

// BridgeReport summarizes an adoption run.
type BridgeReport struct {
	Ran           bool `json:"ran"`
	Notebooks     int  `json:"notebooks"`
	Sections      int  `json:"sections"`
	Pages         int  `json:"pages"`
	IndexRetired  bool `json:"index_retired"`
	ContentErrors int  `json:"content_errors"`
}

// Run performs the adoption: discover the legacy root, walk it, tag
// everything, load page bodies, and populate the tree. The caller is
// responsible for saving the manifest afterwards (normally by running a
// structure pass). Returns a zero report when there is nothing to
// bridge.
func (b *LegacyBridge) Run(ctx context.Context, tree *models.Tree) (*BridgeReport, error) {
	report := &BridgeReport{}

	hasManifest, err := models.HasManifest()
	if err != nil {
		return nil, err
	}
	if hasManifest {
		// This installation has synced before; nothing legacy remains.
		return report, nil
	}

	// Look for the root container without creating it. A fresh account
	// has no legacy layout to adopt.
	candidates, err := b.store.ListChildren(ctx, remote.RootID,
		&remote.ChildFilter{Name: RootFolderName, Kind: remote.KindFolder})
	if err != nil {
		return nil, serr.Wrap(err, "failed to look for legacy root container")
	}
	if len(candidates) == 0 {
		return report, nil
	}
	rootID := candidates[0].ID
	report.Ran = true

	if err = b.adoptChildren(ctx, tree, rootID, "", models.KindNotebook, report); err != nil {
		return nil, err
	}
	if err = b.retireIndex(ctx, rootID); err != nil {
		logger.LogErr(err, "Failed to retire legacy index file")
	} else {
		report.IndexRetired = true
	}

	logger.Info("Adopted legacy remote layout",
		"notebooks", report.Notebooks, "sections", report.Sections, "pages", report.Pages)
	return report, nil
}

// childKind maps a hierarchy level to the level below it.
var childKind = map[models.Kind]models.Kind{
	models.KindNotebook: models.KindSection,
	models.KindSection:  models.KindPage,
}

// adoptChildren classifies the children of one remote folder at the
// given hierarchy level, tags them, adds them to the tree and recurses.
func (b *LegacyBridge) adoptChildren(ctx context.Context, tree *models.Tree, parentRemoteID, parentLocalID string, kind models.Kind, report *BridgeReport) error {
	wantKind := remote.KindFolder
	if kind == models.KindPage {
		wantKind = remote.KindFile
	}

	children, err := b.store.ListChildren(ctx, parentRemoteID, &remote.ChildFilter{Kind: wantKind})
	if err != nil {
		return serr.Wrap(err, "failed to list legacy children")
	}

	for _, obj := range children {
		if kind == models.KindPage && obj.Name == LegacyIndexName {
			continue
		}

		// An object already carrying a UID belongs to another
		// installation syncing the same account; keep its id.
		localID := obj.Properties[PropUID]
		if localID == "" {
			localID = uuid.New().String()
		}

		n := &models.Node{
			LocalID:       localID,
			Kind:          kind,
			Name:          obj.Name,
			ParentLocalID: parentLocalID,
			RemoteID:      obj.ID,
		}
		if kind == models.KindPage {
			content, cerr := b.loadPageContent(ctx, obj.ID)
			if cerr != nil {
				logger.LogErr(cerr, "Unreadable legacy page body, starting empty",
					"remote_id", obj.ID, "name", obj.Name)
				report.ContentErrors++
				content = models.NewContentTree()
			}
			n.Content = content
		}
		if err = tree.AdoptNode(n); err != nil {
			return serr.Wrap(err, "failed to adopt legacy node")
		}

		if err = b.resolver.WriteProperties(ctx, obj.ID, map[string]string{
			PropUID:  localID,
			PropKind: string(kind),
		}); err != nil {
			return err
		}

		switch kind {
		case models.KindNotebook:
			report.Notebooks++
		case models.KindSection:
			report.Sections++
		case models.KindPage:
			report.Pages++
		}

		if next, ok := childKind[kind]; ok {
			if err = b.adoptChildren(ctx, tree, obj.ID, localID, next, report); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadPageContent reads a legacy page body. Old clients wrote the
// flat-rows JSON form; newer untagged files may already hold the
// msgpack tree. Both decode to the current content tree.
func (b *LegacyBridge) loadPageContent(ctx context.Context, remoteID string) (*models.ContentTree, error) {
	data, err := b.store.ReadContent(ctx, remoteID)
	if err != nil {
		return nil, serr.Wrap(err, "failed to read legacy page body")
	}
	if len(data) == 0 {
		return models.NewContentTree(), nil
	}

	var lp models.LegacyPage
	if jerr := json.Unmarshal(data, &lp); jerr == nil && lp.SchemaVersion == 1 {
		return models.TreeFromLegacy(lp), nil
	}

	tree, err := models.DecodePayload(data)
	if err != nil {
		return nil, err
	}
	return tree.Normalize(), nil
}

// retireIndex renames the legacy catalog file so old clients cannot
// keep rewriting it. Absence is fine.
func (b *LegacyBridge) retireIndex(ctx context.Context, rootID string) error {
	matches, err := b.store.ListChildren(ctx, rootID,
		&remote.ChildFilter{Name: LegacyIndexName, Kind: remote.KindFile})
	if err != nil {
		return serr.Wrap(err, "failed to look for legacy index file")
	}
	if len(matches) == 0 {
		return nil
	}
	if err = b.store.Rename(ctx, matches[0].ID, LegacyIndexName+".bak"); err != nil {
		return serr.Wrap(err, "failed to rename legacy index file")
	}
	return nil
}

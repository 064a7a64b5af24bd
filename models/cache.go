package models

import (
	"database/sql"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// Durable cache of the full tree, so startup renders the hierarchy
// instantly and never depends on remote reachability. Saved on a short
// debounce after local edits (the engine owns the debounce).

const DDLCreateNodesTable = `
CREATE TABLE IF NOT EXISTS nodes (
    local_id         VARCHAR PRIMARY KEY,
    kind             VARCHAR NOT NULL,
    name             VARCHAR NOT NULL,
    parent_local_id  VARCHAR,
    remote_id        VARCHAR,
    ord              INTEGER DEFAULT 0,
    color            VARCHAR,
    dirty            BOOLEAN DEFAULT false,
    pushed_digest    VARCHAR,
    content          BLOB,
    created_at       TIMESTAMP,
    updated_at       TIMESTAMP
);
`

const DDLCreateTrashQueueTable = `
CREATE TABLE IF NOT EXISTS trash_queue (
    remote_id VARCHAR PRIMARY KEY
);
`

// SaveTree writes the full tree through to the durable cache.
func SaveTree(t *Tree) error {
	t.mu.RLock()
	nodes := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		c := *n
		nodes = append(nodes, &c)
	}
	t.mu.RUnlock()

	dbMu.Lock()
	defer dbMu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return serr.Wrap(err, "failed to begin tree cache transaction")
	}
	defer tx.Rollback()

	// DuckDB's ART index rejects re-inserting a key deleted in the same
	// transaction, so saves upsert rows and delete stale keys instead of
	// rewriting the table.
	keep := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		keep[n.LocalID] = true
		var content []byte
		if n.Kind == KindPage && n.Content != nil {
			content, err = n.Content.EncodePayload()
			if err != nil {
				logger.LogErr(err, "failed to encode page content for cache", "local_id", n.LocalID)
				content = nil
			}
		}
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO nodes (local_id, kind, name, parent_local_id, remote_id, ord,
			                    color, dirty, pushed_digest, content, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.LocalID, string(n.Kind), n.Name, n.ParentLocalID, n.RemoteID, n.Order,
			n.Color, n.Dirty, n.PushedDigest, content, n.CreatedAt, n.UpdatedAt,
		)
		if err != nil {
			return serr.Wrap(err, "failed to upsert cached node")
		}
	}

	stale, err := staleKeys(tx, "SELECT local_id FROM nodes", keep)
	if err != nil {
		return serr.Wrap(err, "failed to scan tree cache for stale rows")
	}
	for _, id := range stale {
		if _, err = tx.Exec("DELETE FROM nodes WHERE local_id = ?", id); err != nil {
			return serr.Wrap(err, "failed to drop stale cached node")
		}
	}

	if err = tx.Commit(); err != nil {
		return serr.Wrap(err, "failed to commit tree cache")
	}
	return nil
}

// staleKeys returns the keys present in the table but absent from keep.
// Keys never re-inserted in the same transaction are safe to delete.
func staleKeys(tx *sql.Tx, query string, keep map[string]bool) ([]string, error) {
	rows, err := tx.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			return nil, err
		}
		if !keep[k] {
			out = append(out, k)
		}
	}
	return out, rows.Err()
}

// LoadTree rebuilds a tree from the durable cache. Returns an empty
// tree when the cache holds nothing.
func LoadTree() (*Tree, error) {
	rows, err := db.Query(
		`SELECT local_id, kind, name, parent_local_id, remote_id, ord,
		        color, dirty, pushed_digest, content, created_at, updated_at
		 FROM nodes ORDER BY ord`)
	if err != nil {
		return nil, serr.Wrap(err, "failed to read tree cache")
	}
	defer rows.Close()

	t := NewTree()
	for rows.Next() {
		n := &Node{}
		var kind string
		var parent, remote, color, digest sql.NullString
		var content []byte
		var created, updated sql.NullTime
		err = rows.Scan(&n.LocalID, &kind, &n.Name, &parent, &remote, &n.Order,
			&color, &n.Dirty, &digest, &content, &created, &updated)
		if err != nil {
			return nil, serr.Wrap(err, "failed to scan cached node")
		}
		n.Kind = Kind(kind)
		n.ParentLocalID = parent.String
		n.RemoteID = remote.String
		n.Color = color.String
		n.PushedDigest = digest.String
		n.CreatedAt = created.Time
		n.UpdatedAt = updated.Time
		if n.Kind == KindPage {
			if len(content) > 0 {
				tree, derr := DecodePayload(content)
				if derr != nil {
					logger.LogErr(derr, "corrupt cached page content, starting empty", "local_id", n.LocalID)
					tree = NewContentTree()
				}
				n.Content = tree
			} else {
				n.Content = NewContentTree()
			}
		}

		t.nodes[n.LocalID] = n
		t.children[n.ParentLocalID] = append(t.children[n.ParentLocalID], n.LocalID)
		if n.Kind == KindNotebook {
			t.roots = append(t.roots, n.LocalID)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, serr.Wrap(err, "failed reading tree cache")
	}

	// Orphaned rows (parent missing from the cache) cannot be synced and
	// would corrupt the walk; drop their whole chains. Iterated to a
	// fixed point so a grandchild never survives its dropped parent.
	dropped := 0
	for {
		removed := false
		for id, n := range t.nodes {
			if n.ParentLocalID == "" {
				continue
			}
			if _, ok := t.nodes[n.ParentLocalID]; !ok {
				delete(t.nodes, id)
				dropped++
				removed = true
			}
		}
		if !removed {
			break
		}
	}
	if dropped > 0 {
		for parent, ids := range t.children {
			kept := ids[:0]
			for _, id := range ids {
				if _, ok := t.nodes[id]; ok {
					kept = append(kept, id)
				}
			}
			if len(kept) == 0 {
				delete(t.children, parent)
				continue
			}
			t.children[parent] = kept
		}
		logger.Info("Dropped orphaned cached nodes", "count", dropped)
	}

	// Restore any remote trash still pending from the previous session.
	trows, err := db.Query("SELECT remote_id FROM trash_queue")
	if err == nil {
		defer trows.Close()
		for trows.Next() {
			var id string
			if trows.Scan(&id) == nil {
				t.trashQueue = append(t.trashQueue, id)
			}
		}
	}

	return t, nil
}

// SaveTrashQueue persists the remote ids still awaiting trash so a
// crash between delete and sync cannot silently leak remote objects.
func SaveTrashQueue(t *Tree) error {
	t.mu.RLock()
	queue := make([]string, len(t.trashQueue))
	copy(queue, t.trashQueue)
	t.mu.RUnlock()

	dbMu.Lock()
	defer dbMu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return serr.Wrap(err, "failed to begin trash queue transaction")
	}
	defer tx.Rollback()

	keep := make(map[string]bool, len(queue))
	for _, id := range queue {
		keep[id] = true
		if _, err = tx.Exec("INSERT OR IGNORE INTO trash_queue (remote_id) VALUES (?)", id); err != nil {
			return serr.Wrap(err, "failed to insert trash queue entry")
		}
	}
	stale, err := staleKeys(tx, "SELECT remote_id FROM trash_queue", keep)
	if err != nil {
		return serr.Wrap(err, "failed to scan trash queue for stale rows")
	}
	for _, id := range stale {
		if _, err = tx.Exec("DELETE FROM trash_queue WHERE remote_id = ?", id); err != nil {
			return serr.Wrap(err, "failed to drop stale trash queue entry")
		}
	}
	if err = tx.Commit(); err != nil {
		return serr.Wrap(err, "failed to commit trash queue")
	}
	return nil
}

// CacheSavedAt is a convenience for the status page.
func CacheSavedAt() time.Time {
	var saved sql.NullTime
	_ = db.QueryRow("SELECT MAX(updated_at) FROM nodes").Scan(&saved)
	return saved.Time
}

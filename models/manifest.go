package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rohanthewiz/serr"
)

// The sync manifest is the durable snapshot of node identity to remote
// identity. It is written only by the structure synchronizer, after a
// pass, and is the only input the reconciliation sweep trusts — the
// sweep never reads the live in-memory tree.

const DDLCreateManifestMetaTable = `
CREATE TABLE IF NOT EXISTS manifest_meta (
    id        INTEGER PRIMARY KEY,
    saved_at  TIMESTAMP NOT NULL
);
`

const DDLCreateManifestEntriesTable = `
CREATE TABLE IF NOT EXISTS manifest_entries (
    local_id         VARCHAR PRIMARY KEY,
    kind             VARCHAR NOT NULL,
    name             VARCHAR NOT NULL,
    parent_local_id  VARCHAR,
    remote_id        VARCHAR,
    props            VARCHAR  -- JSON object of tagged properties
);
`

const DDLCreateQuarantineTable = `
CREATE TABLE IF NOT EXISTS manifest_quarantine (
    local_id       VARCHAR PRIMARY KEY,
    quarantined_at TIMESTAMP NOT NULL
);
`

// ManifestEntry is the durable record for one node.
type ManifestEntry struct {
	LocalID       string            `json:"local_id"`
	Kind          Kind              `json:"kind"`
	Name          string            `json:"name"`
	ParentLocalID string            `json:"parent_local_id,omitempty"`
	RemoteID      string            `json:"remote_id,omitempty"`
	Props         map[string]string `json:"props,omitempty"`
}

// Manifest is the full durable snapshot plus the quarantine list of
// local ids considered deleted.
type Manifest struct {
	Entries     map[string]ManifestEntry `json:"entries"`
	Quarantined []string                 `json:"quarantined"`
	SavedAt     time.Time                `json:"saved_at"`
}

// ManifestSnapshot builds a manifest from the tree's current state.
func (t *Tree) ManifestSnapshot() *Manifest {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := &Manifest{
		Entries: make(map[string]ManifestEntry, len(t.nodes)),
		SavedAt: time.Now(),
	}
	for id, n := range t.nodes {
		m.Entries[id] = ManifestEntry{
			LocalID:       n.LocalID,
			Kind:          n.Kind,
			Name:          n.Name,
			ParentLocalID: n.ParentLocalID,
			RemoteID:      n.RemoteID,
			Props: map[string]string{
				"kind": string(n.Kind),
			},
		}
	}
	for id := range t.quarantined {
		m.Quarantined = append(m.Quarantined, id)
	}
	return m
}

// SaveManifest replaces the durable manifest with m, atomically.
func SaveManifest(m *Manifest) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return serr.Wrap(err, "failed to begin manifest transaction")
	}
	defer tx.Rollback()

	// DuckDB's ART index rejects re-inserting a key deleted in the same
	// transaction, so saves upsert rows and delete stale keys instead of
	// rewriting the tables.
	keep := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		keep[e.LocalID] = true
		props := ""
		if len(e.Props) > 0 {
			data, jerr := json.Marshal(e.Props)
			if jerr != nil {
				return serr.Wrap(jerr, "failed to encode manifest props")
			}
			props = string(data)
		}
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO manifest_entries (local_id, kind, name, parent_local_id, remote_id, props)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.LocalID, string(e.Kind), e.Name, e.ParentLocalID, e.RemoteID, props,
		)
		if err != nil {
			return serr.Wrap(err, "failed to upsert manifest entry")
		}
	}
	stale, err := staleKeys(tx, "SELECT local_id FROM manifest_entries", keep)
	if err != nil {
		return serr.Wrap(err, "failed to scan manifest entries for stale rows")
	}
	for _, id := range stale {
		if _, err = tx.Exec("DELETE FROM manifest_entries WHERE local_id = ?", id); err != nil {
			return serr.Wrap(err, "failed to drop stale manifest entry")
		}
	}

	// OR IGNORE keeps the original quarantined_at across saves.
	now := time.Now()
	keepQ := make(map[string]bool, len(m.Quarantined))
	for _, id := range m.Quarantined {
		keepQ[id] = true
		if _, err = tx.Exec(
			`INSERT OR IGNORE INTO manifest_quarantine (local_id, quarantined_at) VALUES (?, ?)`,
			id, now,
		); err != nil {
			return serr.Wrap(err, "failed to insert quarantine entry")
		}
	}
	staleQ, err := staleKeys(tx, "SELECT local_id FROM manifest_quarantine", keepQ)
	if err != nil {
		return serr.Wrap(err, "failed to scan manifest quarantine for stale rows")
	}
	for _, id := range staleQ {
		if _, err = tx.Exec("DELETE FROM manifest_quarantine WHERE local_id = ?", id); err != nil {
			return serr.Wrap(err, "failed to drop stale quarantine entry")
		}
	}

	if _, err = tx.Exec("INSERT OR REPLACE INTO manifest_meta (id, saved_at) VALUES (1, ?)", m.SavedAt); err != nil {
		return serr.Wrap(err, "failed to record manifest save time")
	}

	if err = tx.Commit(); err != nil {
		return serr.Wrap(err, "failed to commit manifest")
	}
	return nil
}

// LoadManifest reads the durable manifest. Returns nil (no error) when
// no manifest has ever been saved — that is the signal the legacy
// bridge keys on.
func LoadManifest() (*Manifest, error) {
	m := &Manifest{Entries: make(map[string]ManifestEntry)}

	err := db.QueryRow("SELECT saved_at FROM manifest_meta WHERE id = 1").Scan(&m.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, serr.Wrap(err, "failed to read manifest meta")
	}

	rows, err := db.Query(
		"SELECT local_id, kind, name, parent_local_id, remote_id, props FROM manifest_entries")
	if err != nil {
		return nil, serr.Wrap(err, "failed to read manifest entries")
	}
	defer rows.Close()

	for rows.Next() {
		var e ManifestEntry
		var kind, parent, remote, props sql.NullString
		if err = rows.Scan(&e.LocalID, &kind, &e.Name, &parent, &remote, &props); err != nil {
			return nil, serr.Wrap(err, "failed to scan manifest entry")
		}
		e.Kind = Kind(kind.String)
		e.ParentLocalID = parent.String
		e.RemoteID = remote.String
		if props.Valid && props.String != "" {
			if jerr := json.Unmarshal([]byte(props.String), &e.Props); jerr != nil {
				return nil, serr.Wrap(jerr, "failed to decode manifest props")
			}
		}
		m.Entries[e.LocalID] = e
	}
	if err = rows.Err(); err != nil {
		return nil, serr.Wrap(err, "failed reading manifest entries")
	}

	qrows, err := db.Query("SELECT local_id FROM manifest_quarantine")
	if err != nil {
		return nil, serr.Wrap(err, "failed to read manifest quarantine")
	}
	defer qrows.Close()
	for qrows.Next() {
		var id string
		if err = qrows.Scan(&id); err != nil {
			return nil, serr.Wrap(err, "failed to scan quarantine entry")
		}
		m.Quarantined = append(m.Quarantined, id)
	}
	if err = qrows.Err(); err != nil {
		return nil, serr.Wrap(err, "failed reading manifest quarantine")
	}

	return m, nil
}

// HasManifest reports whether a manifest has ever been saved.
func HasManifest() (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM manifest_meta").Scan(&count)
	if err != nil {
		return false, serr.Wrap(err, "failed to check for manifest")
	}
	return count > 0, nil
}

// IsQuarantined reports whether the manifest considers the id deleted.
func (m *Manifest) IsQuarantined(localID string) bool {
	for _, id := range m.Quarantined {
		if id == localID {
			return true
		}
	}
	return false
}

// ExpectedParentRemoteID walks the manifest's own parent chain (never
// the live tree) to find the remote id a node should sit under. The
// rootRemoteID is the container notebooks live in. Returns empty when
// the chain is broken or the parent is not yet resolved.
func (m *Manifest) ExpectedParentRemoteID(localID, rootRemoteID string) string {
	e, ok := m.Entries[localID]
	if !ok {
		return ""
	}
	if e.Kind == KindNotebook {
		return rootRemoteID
	}
	parent, ok := m.Entries[e.ParentLocalID]
	if !ok {
		return ""
	}
	return parent.RemoteID
}

package models

import (
	"database/sql"
	"time"

	"github.com/rohanthewiz/serr"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Page revision journal. Every successful content push records the
// canonical JSON of the page plus a patch from the previous revision,
// giving a recoverable history without storing full copies of large
// pages more than once per change.

const DDLCreateRevisionsSequence = `
CREATE SEQUENCE IF NOT EXISTS page_revisions_id_seq START 1;
`

const DDLCreateRevisionsTable = `
CREATE TABLE IF NOT EXISTS page_revisions (
    id             BIGINT PRIMARY KEY DEFAULT nextval('page_revisions_id_seq'),
    page_local_id  VARCHAR NOT NULL,
    snapshot       VARCHAR NOT NULL,
    patch          VARCHAR,
    created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Revision is one entry in a page's history.
type Revision struct {
	ID          int64     `json:"id"`
	PageLocalID string    `json:"page_local_id"`
	Snapshot    string    `json:"snapshot"`
	Patch       string    `json:"patch,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordPageRevision appends a revision for the page. The patch is the
// diff from the previous snapshot; the first revision carries no patch.
// Recording an unchanged snapshot is a no-op.
func RecordPageRevision(pageLocalID, snapshot string) error {
	prev, err := latestSnapshot(pageLocalID)
	if err != nil {
		return err
	}
	if prev == snapshot {
		return nil
	}

	patch := ""
	if prev != "" {
		dmp := diffmatchpatch.New()
		patches := dmp.PatchMake(prev, snapshot)
		patch = dmp.PatchToText(patches)
	}

	dbMu.Lock()
	defer dbMu.Unlock()
	_, err = db.Exec(
		`INSERT INTO page_revisions (page_local_id, snapshot, patch, created_at)
		 VALUES (?, ?, ?, ?)`,
		pageLocalID, snapshot, patch, time.Now(),
	)
	if err != nil {
		return serr.Wrap(err, "failed to insert page revision")
	}
	return nil
}

func latestSnapshot(pageLocalID string) (string, error) {
	var snapshot string
	err := db.QueryRow(
		`SELECT snapshot FROM page_revisions WHERE page_local_id = ?
		 ORDER BY id DESC LIMIT 1`, pageLocalID,
	).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", serr.Wrap(err, "failed to read latest revision")
	}
	return snapshot, nil
}

// ListPageRevisions returns a page's history, newest first.
func ListPageRevisions(pageLocalID string, limit int) ([]Revision, error) {
	query := `SELECT id, page_local_id, snapshot, patch, created_at
	          FROM page_revisions WHERE page_local_id = ? ORDER BY id DESC`
	args := []interface{}{pageLocalID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, serr.Wrap(err, "failed to list page revisions")
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var r Revision
		var patch sql.NullString
		if err = rows.Scan(&r.ID, &r.PageLocalID, &r.Snapshot, &patch, &r.CreatedAt); err != nil {
			return nil, serr.Wrap(err, "failed to scan page revision")
		}
		r.Patch = patch.String
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		return nil, serr.Wrap(err, "failed reading page revisions")
	}
	return out, nil
}

// ApplyPatch replays a stored patch onto a prior snapshot. Used by
// history tooling to verify a revision chain.
func ApplyPatch(base, patchText string) (string, error) {
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return "", serr.Wrap(err, "failed to parse revision patch")
	}
	result, applied := dmp.PatchApply(patches, base)
	for _, ok := range applied {
		if !ok {
			return "", serr.New("revision patch did not apply cleanly")
		}
	}
	return result, nil
}

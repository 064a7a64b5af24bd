// Package remote defines the capability surface of the remote storage
// backend: primitive folder/file operations, property tagging and a
// trash. There is no transactional API — the sync engine layers its
// consistency guarantees on top of these primitives.
package remote

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes folder-like from file-like remote objects.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// RootID addresses the top-level container of the remote store.
const RootID = "root"

// Error taxonomy. Callers classify failures with errors.Is; everything
// not matching one of these is treated as transient and retryable.
var (
	// ErrNotFound means the referenced object does not exist. During
	// resolution this is not a failure — a stale cached id falls back
	// to lookup by name.
	ErrNotFound = errors.New("remote: object not found")

	// ErrAuthExpired means the credential was rejected. Surfaced as a
	// distinct kind so callers can refresh and retry instead of
	// treating it as a generic failure.
	ErrAuthExpired = errors.New("remote: authentication expired")

	// ErrTransient covers network and rate-limit failures. Safe to
	// retry because all engine operations are idempotent.
	ErrTransient = errors.New("remote: transient failure")
)

// IsNotFound reports whether err is a stale-reference miss.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAuthExpired reports whether err is a credential failure.
func IsAuthExpired(err error) bool { return errors.Is(err, ErrAuthExpired) }

// Object is one folder- or file-like item in the remote store.
type Object struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Kind       Kind              `json:"kind"`
	Parents    []string          `json:"parents"`
	Properties map[string]string `json:"properties,omitempty"`
	Trashed    bool              `json:"trashed"`
	ModifiedAt time.Time         `json:"modified_at"`
}

// ParentID returns the object's primary parent, or empty for roots.
func (o *Object) ParentID() string {
	if len(o.Parents) == 0 {
		return ""
	}
	return o.Parents[0]
}

// ChildFilter narrows a ListChildren call. Zero values match anything.
type ChildFilter struct {
	Name string
	Kind Kind
}

// Store is the remote storage collaborator. Implementations must treat
// ids as opaque and stable, never hard-delete on Trash, and merge (not
// replace) property bags on UpdateProperties.
type Store interface {
	CreateObject(ctx context.Context, parentID, name string, kind Kind) (string, error)
	ListChildren(ctx context.Context, parentID string, filter *ChildFilter) ([]Object, error)
	GetObject(ctx context.Context, id string) (*Object, error)
	UpdateProperties(ctx context.Context, id string, props map[string]string) error
	Rename(ctx context.Context, id, name string) error
	Move(ctx context.Context, id, newParentID, oldParentID string) error
	Trash(ctx context.Context, id string) error
	ReadContent(ctx context.Context, id string) ([]byte, error)
	WriteContent(ctx context.Context, id string, data []byte) error

	// SearchByProperty returns every non-trashed object whose property
	// bag holds key with the given value. An empty value matches any
	// object carrying the key at all — that is how the reconciliation
	// sweep enumerates all tagged objects regardless of location.
	SearchByProperty(ctx context.Context, key, value string) ([]Object, error)
}

package models

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rohanthewiz/serr"
)

// Kind is the level a node occupies in the hierarchy.
type Kind string

const (
	KindNotebook Kind = "notebook"
	KindSection  Kind = "section"
	KindPage     Kind = "page"
)

// parentKind maps each kind to the kind its parent must have.
// Notebooks are roots and have no parent.
var parentKind = map[Kind]Kind{
	KindSection: KindNotebook,
	KindPage:    KindSection,
}

// Node is one addressable unit of the local hierarchy.
//
// LocalID is assigned once at creation and never reused. RemoteID is a
// weak reference into the remote store: empty means the node has not
// been synchronized yet, and a non-empty value may go stale if the
// remote object is removed out-of-band — the resolver tolerates that.
type Node struct {
	LocalID       string       `json:"local_id"`
	Kind          Kind         `json:"kind"`
	Name          string       `json:"name"`
	ParentLocalID string       `json:"parent_local_id,omitempty"`
	RemoteID      string       `json:"remote_id,omitempty"`
	Order         int          `json:"order"`
	Color         string       `json:"color,omitempty"` // sections only
	Content       *ContentTree `json:"content,omitempty"`
	Dirty         bool         `json:"dirty,omitempty"`         // page content awaiting push
	PushedDigest  string       `json:"pushed_digest,omitempty"` // digest of last uploaded payload
	Attention     string       `json:"attention,omitempty"`     // last per-node sync failure
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Tree is the in-memory store for the full notebook hierarchy plus the
// bookkeeping the sync engine needs: the quarantine list of deleted
// local ids and the queue of remote objects awaiting trash.
//
// All access is guarded by one RWMutex; mutation notifications fire
// after the lock is released so listeners can call back into the tree.
type Tree struct {
	mu          sync.RWMutex
	nodes       map[string]*Node
	children    map[string][]string
	roots       []string
	quarantined map[string]time.Time
	trashQueue  []string

	onStructure []func()
	onDirty     []func(pageLocalID string)
}

// NewTree returns an empty tree store.
func NewTree() *Tree {
	return &Tree{
		nodes:       make(map[string]*Node),
		children:    make(map[string][]string),
		quarantined: make(map[string]time.Time),
	}
}

// OnStructureChange registers a listener fired after any create, rename,
// move or delete. The engine debounces these into structure sync runs.
func (t *Tree) OnStructureChange(fn func()) {
	t.mu.Lock()
	t.onStructure = append(t.onStructure, fn)
	t.mu.Unlock()
}

// OnPageDirty registers a listener fired when page content changes.
func (t *Tree) OnPageDirty(fn func(pageLocalID string)) {
	t.mu.Lock()
	t.onDirty = append(t.onDirty, fn)
	t.mu.Unlock()
}

func (t *Tree) notifyStructure() {
	t.mu.RLock()
	listeners := make([]func(), len(t.onStructure))
	copy(listeners, t.onStructure)
	t.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

func (t *Tree) notifyDirty(pageID string) {
	t.mu.RLock()
	listeners := make([]func(string), len(t.onDirty))
	copy(listeners, t.onDirty)
	t.mu.RUnlock()
	for _, fn := range listeners {
		fn(pageID)
	}
}

// CreateNode creates a node of the given kind under the given parent and
// returns a copy of it. Notebooks take an empty parentLocalID; sections
// and pages require a parent of the right kind.
func (t *Tree) CreateNode(kind Kind, name, parentLocalID string) (*Node, error) {
	if name == "" {
		return nil, serr.New("node name is required")
	}

	t.mu.Lock()
	if kind == KindNotebook {
		if parentLocalID != "" {
			t.mu.Unlock()
			return nil, serr.New("notebooks cannot have a parent")
		}
	} else {
		want, ok := parentKind[kind]
		if !ok {
			t.mu.Unlock()
			return nil, serr.New("unknown node kind: " + string(kind))
		}
		parent, exists := t.nodes[parentLocalID]
		if !exists {
			t.mu.Unlock()
			return nil, serr.New("parent node not found: " + parentLocalID)
		}
		if parent.Kind != want {
			t.mu.Unlock()
			return nil, serr.New("a " + string(kind) + " must live under a " + string(want))
		}
	}

	now := time.Now()
	n := &Node{
		LocalID:       uuid.New().String(),
		Kind:          kind,
		Name:          name,
		ParentLocalID: parentLocalID,
		Order:         len(t.children[parentLocalID]),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if kind == KindPage {
		n.Content = NewContentTree()
	}
	t.nodes[n.LocalID] = n
	t.children[parentLocalID] = append(t.children[parentLocalID], n.LocalID)
	if kind == KindNotebook {
		t.roots = append(t.roots, n.LocalID)
	}
	out := *n
	t.mu.Unlock()

	t.notifyStructure()
	return &out, nil
}

// Rename changes a node's display name.
func (t *Tree) Rename(localID, name string) error {
	if name == "" {
		return serr.New("node name is required")
	}
	t.mu.Lock()
	n, ok := t.nodes[localID]
	if !ok {
		t.mu.Unlock()
		return serr.New("node not found: " + localID)
	}
	n.Name = name
	n.UpdatedAt = time.Now()
	t.mu.Unlock()

	t.notifyStructure()
	return nil
}

// Move reparents a node. The new parent must have the kind the node's
// level requires; notebooks cannot be moved.
func (t *Tree) Move(localID, newParentLocalID string) error {
	t.mu.Lock()
	n, ok := t.nodes[localID]
	if !ok {
		t.mu.Unlock()
		return serr.New("node not found: " + localID)
	}
	if n.Kind == KindNotebook {
		t.mu.Unlock()
		return serr.New("notebooks cannot be moved")
	}
	parent, ok := t.nodes[newParentLocalID]
	if !ok {
		t.mu.Unlock()
		return serr.New("target parent not found: " + newParentLocalID)
	}
	if parent.Kind != parentKind[n.Kind] {
		t.mu.Unlock()
		return serr.New("a " + string(n.Kind) + " must live under a " + string(parentKind[n.Kind]))
	}

	t.children[n.ParentLocalID] = removeID(t.children[n.ParentLocalID], localID)
	n.ParentLocalID = newParentLocalID
	n.Order = len(t.children[newParentLocalID])
	n.UpdatedAt = time.Now()
	t.children[newParentLocalID] = append(t.children[newParentLocalID], localID)
	t.mu.Unlock()

	t.notifyStructure()
	return nil
}

// Delete removes a node and its whole subtree from the hierarchy. Every
// removed local id joins the quarantine list, and every removed node
// that had a remote object gets that object queued for trashing on the
// next structure pass. Remote objects are never hard-deleted.
func (t *Tree) Delete(localID string) error {
	t.mu.Lock()
	n, ok := t.nodes[localID]
	if !ok {
		t.mu.Unlock()
		return serr.New("node not found: " + localID)
	}

	var doomed []string
	t.collect(localID, &doomed)

	now := time.Now()
	for _, id := range doomed {
		d := t.nodes[id]
		if d.RemoteID != "" {
			t.trashQueue = append(t.trashQueue, d.RemoteID)
		}
		t.quarantined[id] = now
		delete(t.nodes, id)
		delete(t.children, id)
	}
	t.children[n.ParentLocalID] = removeID(t.children[n.ParentLocalID], localID)
	if n.Kind == KindNotebook {
		t.roots = removeID(t.roots, localID)
	}
	t.mu.Unlock()

	t.notifyStructure()
	return nil
}

// collect gathers localID and all its descendants depth-first.
func (t *Tree) collect(localID string, out *[]string) {
	for _, child := range t.children[localID] {
		t.collect(child, out)
	}
	*out = append(*out, localID)
}

// AdoptNode inserts a fully-formed node, preserving its LocalID and
// RemoteID. Used when rebuilding a tree from an existing remote layout;
// regular editing goes through CreateNode. No notification fires — the
// adopter triggers one sync pass when the whole batch is in.
func (t *Tree) AdoptNode(n *Node) error {
	if n.LocalID == "" || n.Name == "" {
		return serr.New("adopted node needs a local id and name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[n.LocalID]; exists {
		return serr.New("node already exists: " + n.LocalID)
	}
	if n.Kind != KindNotebook {
		parent, ok := t.nodes[n.ParentLocalID]
		if !ok {
			return serr.New("parent node not found: " + n.ParentLocalID)
		}
		if parent.Kind != parentKind[n.Kind] {
			return serr.New("a " + string(n.Kind) + " must live under a " + string(parentKind[n.Kind]))
		}
	}

	c := *n
	if c.Kind == KindPage && c.Content == nil {
		c.Content = NewContentTree()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	c.Order = len(t.children[c.ParentLocalID])
	t.nodes[c.LocalID] = &c
	t.children[c.ParentLocalID] = append(t.children[c.ParentLocalID], c.LocalID)
	if c.Kind == KindNotebook {
		t.roots = append(t.roots, c.LocalID)
	}
	return nil
}

// GetNode returns a copy of the node, or nil when it does not exist.
func (t *Tree) GetNode(localID string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[localID]
	if !ok {
		return nil
	}
	out := *n
	return &out
}

// Notebooks returns copies of all root notebooks in order.
func (t *Tree) Notebooks() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.roots))
	for _, id := range t.roots {
		n := *t.nodes[id]
		out = append(out, &n)
	}
	return out
}

// ChildrenOf returns copies of a node's children in order.
func (t *Tree) ChildrenOf(localID string) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.children[localID]
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		n := *t.nodes[id]
		out = append(out, &n)
	}
	return out
}

// SetRemoteID records the remote object resolved for a node. Called by
// the structure synchronizer when a pass completes resolution.
func (t *Tree) SetRemoteID(localID, remoteID string) {
	t.mu.Lock()
	if n, ok := t.nodes[localID]; ok {
		n.RemoteID = remoteID
	}
	t.mu.Unlock()
}

// SetPageContent replaces a page's content tree (normalized) and marks
// the page dirty for the content synchronizer.
func (t *Tree) SetPageContent(localID string, content *ContentTree) error {
	t.mu.Lock()
	n, ok := t.nodes[localID]
	if !ok {
		t.mu.Unlock()
		return serr.New("node not found: " + localID)
	}
	if n.Kind != KindPage {
		t.mu.Unlock()
		return serr.New("only pages carry content: " + localID)
	}
	n.Content = content.Normalize()
	n.Dirty = true
	n.UpdatedAt = time.Now()
	t.mu.Unlock()

	t.notifyDirty(localID)
	return nil
}

// MarkPageDirty flags a page for the next content sync batch.
func (t *Tree) MarkPageDirty(localID string) {
	t.mu.Lock()
	n, ok := t.nodes[localID]
	if ok && n.Kind == KindPage {
		n.Dirty = true
	}
	t.mu.Unlock()
	if ok {
		t.notifyDirty(localID)
	}
}

// DirtyPages returns copies of all pages flagged for content push.
func (t *Tree) DirtyPages() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Node
	for _, n := range t.nodes {
		if n.Kind == KindPage && n.Dirty {
			c := *n
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out
}

// ClearDirty records a successful content push for a page.
func (t *Tree) ClearDirty(localID, pushedDigest string) {
	t.mu.Lock()
	if n, ok := t.nodes[localID]; ok {
		n.Dirty = false
		n.PushedDigest = pushedDigest
	}
	t.mu.Unlock()
}

// SetAttention records a per-node sync failure surfaced to the UI as a
// needs-attention marker. An empty message clears the marker.
func (t *Tree) SetAttention(localID, msg string) {
	t.mu.Lock()
	if n, ok := t.nodes[localID]; ok {
		n.Attention = msg
	}
	t.mu.Unlock()
}

// AttentionNodes returns copies of all nodes carrying a failure marker.
func (t *Tree) AttentionNodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Node
	for _, n := range t.nodes {
		if n.Attention != "" {
			c := *n
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out
}

// QuarantinedIDs returns the local ids considered deleted.
func (t *Tree) QuarantinedIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.quarantined))
	for id := range t.quarantined {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DrainTrashQueue removes and returns all remote ids awaiting trash.
// Callers that fail to trash an id hand it back via RequeueTrash.
func (t *Tree) DrainTrashQueue() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.trashQueue
	t.trashQueue = nil
	return out
}

// RequeueTrash returns failed trash candidates to the queue.
func (t *Tree) RequeueTrash(remoteIDs []string) {
	if len(remoteIDs) == 0 {
		return
	}
	t.mu.Lock()
	t.trashQueue = append(t.trashQueue, remoteIDs...)
	t.mu.Unlock()
}

// NodeCount returns the number of live nodes.
func (t *Tree) NodeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

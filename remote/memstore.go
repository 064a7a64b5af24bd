package remote

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rohanthewiz/serr"
)

// MemStore is an in-memory Store. It backs offline operation and the
// engine's tests, and honors the full contract: opaque stable ids,
// soft trash, merged property bags, and property search across the
// whole store. Fault injection hooks let tests exercise the error
// taxonomy without a network.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]*Object
	content map[string][]byte
	nextID  int

	creds CredentialSource

	skipNext int   // let this many calls through first
	failNext int   // then fail this many calls
	failWith error // with this error

	// Ops counts remote calls by operation name, for tests asserting
	// that a second pass performs no extra work.
	ops map[string]int
}

// NewMemStore returns an empty store with the given credential source.
// A nil source disables credential checks.
func NewMemStore(creds CredentialSource) *MemStore {
	return &MemStore{
		objects: make(map[string]*Object),
		content: make(map[string][]byte),
		creds:   creds,
		ops:     make(map[string]int),
	}
}

// FailNext makes the next n calls fail with err.
func (s *MemStore) FailNext(n int, err error) {
	s.FailAfter(0, n, err)
}

// FailAfter lets skip calls through, then fails the n after that.
func (s *MemStore) FailAfter(skip, n int, err error) {
	s.mu.Lock()
	s.skipNext = skip
	s.failNext = n
	s.failWith = err
	s.mu.Unlock()
}

// OpCount returns how many times the named operation ran.
func (s *MemStore) OpCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops[op]
}

// ObjectCount returns the number of non-trashed objects.
func (s *MemStore) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.objects {
		if !o.Trashed {
			n++
		}
	}
	return n
}

// enter runs the per-call preamble: credential check, fault injection,
// op accounting. Callers hold no lock.
func (s *MemStore) enter(ctx context.Context, op string) error {
	if s.creds != nil {
		if err := s.creds.EnsureValid(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op]++
	if s.skipNext > 0 {
		s.skipNext--
		return nil
	}
	if s.failNext > 0 {
		s.failNext--
		return s.failWith
	}
	return nil
}

func (s *MemStore) CreateObject(ctx context.Context, parentID, name string, kind Kind) (string, error) {
	if err := s.enter(ctx, "create"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID != RootID {
		parent, ok := s.objects[parentID]
		if !ok || parent.Trashed {
			return "", serr.Wrap(ErrNotFound, "parent does not exist: "+parentID)
		}
		if parent.Kind != KindFolder {
			return "", serr.New("parent is not a folder: " + parentID)
		}
	}

	s.nextID++
	id := "obj-" + strconv.Itoa(s.nextID)
	s.objects[id] = &Object{
		ID:         id,
		Name:       name,
		Kind:       kind,
		Parents:    []string{parentID},
		Properties: make(map[string]string),
		ModifiedAt: time.Now(),
	}
	return id, nil
}

func (s *MemStore) ListChildren(ctx context.Context, parentID string, filter *ChildFilter) ([]Object, error) {
	if err := s.enter(ctx, "list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Object
	for _, o := range s.objects {
		if o.Trashed || o.ParentID() != parentID {
			continue
		}
		if filter != nil {
			if filter.Name != "" && o.Name != filter.Name {
				continue
			}
			if filter.Kind != "" && o.Kind != filter.Kind {
				continue
			}
		}
		out = append(out, *copyObject(o))
	}
	// Deterministic order so "first match wins" is stable across runs.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetObject(ctx context.Context, id string) (*Object, error) {
	if err := s.enter(ctx, "get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return nil, serr.Wrap(ErrNotFound, "no such object: "+id)
	}
	return copyObject(o), nil
}

func (s *MemStore) UpdateProperties(ctx context.Context, id string, props map[string]string) error {
	if err := s.enter(ctx, "props"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return serr.Wrap(ErrNotFound, "no such object: "+id)
	}
	// Merge — properties the caller does not know about are preserved.
	for k, v := range props {
		o.Properties[k] = v
	}
	o.ModifiedAt = time.Now()
	return nil
}

func (s *MemStore) Rename(ctx context.Context, id, name string) error {
	if err := s.enter(ctx, "rename"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return serr.Wrap(ErrNotFound, "no such object: "+id)
	}
	o.Name = name
	o.ModifiedAt = time.Now()
	return nil
}

func (s *MemStore) Move(ctx context.Context, id, newParentID, oldParentID string) error {
	if err := s.enter(ctx, "move"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return serr.Wrap(ErrNotFound, "no such object: "+id)
	}
	if newParentID != RootID {
		parent, ok := s.objects[newParentID]
		if !ok || parent.Trashed {
			return serr.Wrap(ErrNotFound, "target parent does not exist: "+newParentID)
		}
	}
	parents := removeString(o.Parents, oldParentID)
	o.Parents = append([]string{newParentID}, parents...)
	o.ModifiedAt = time.Now()
	return nil
}

func (s *MemStore) Trash(ctx context.Context, id string) error {
	if err := s.enter(ctx, "trash"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return serr.Wrap(ErrNotFound, "no such object: "+id)
	}
	o.Trashed = true
	o.ModifiedAt = time.Now()
	return nil
}

func (s *MemStore) ReadContent(ctx context.Context, id string) ([]byte, error) {
	if err := s.enter(ctx, "read"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[id]; !ok {
		return nil, serr.Wrap(ErrNotFound, "no such object: "+id)
	}
	data := make([]byte, len(s.content[id]))
	copy(data, s.content[id])
	return data, nil
}

func (s *MemStore) WriteContent(ctx context.Context, id string, data []byte) error {
	if err := s.enter(ctx, "write"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return serr.Wrap(ErrNotFound, "no such object: "+id)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.content[id] = buf
	o.ModifiedAt = time.Now()
	return nil
}

func (s *MemStore) SearchByProperty(ctx context.Context, key, value string) ([]Object, error) {
	if err := s.enter(ctx, "search"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Object
	for _, o := range s.objects {
		if o.Trashed {
			continue
		}
		v, ok := o.Properties[key]
		if !ok {
			continue
		}
		if value != "" && v != value {
			continue
		}
		out = append(out, *copyObject(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyObject(o *Object) *Object {
	c := *o
	c.Parents = append([]string(nil), o.Parents...)
	c.Properties = make(map[string]string, len(o.Properties))
	for k, v := range o.Properties {
		c.Properties[k] = v
	}
	return &c
}

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

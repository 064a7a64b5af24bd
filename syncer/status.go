package syncer

import (
	"sync"
	"time"
)

// SyncState is the coarse engine state surfaced to the UI.
type SyncState string

const (
	StateIdle    SyncState = "idle"
	StateSyncing SyncState = "syncing"
	StateError   SyncState = "error"
)

// Status is one published engine snapshot.
type Status struct {
	State      SyncState `json:"state"`
	Message    string    `json:"message,omitempty"`
	LastSyncAt time.Time `json:"last_sync_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// StatusPublisher fans engine state out to subscribers. Publishing
// never blocks: a subscriber that is not draining its channel misses
// intermediate states but always sees the latest one eventually.
type StatusPublisher struct {
	mu      sync.Mutex
	current Status
	subs    []chan Status
}

// NewStatusPublisher starts in the idle state.
func NewStatusPublisher() *StatusPublisher {
	return &StatusPublisher{current: Status{State: StateIdle}}
}

// Subscribe returns a channel receiving every state change published
// after the call, primed with the current state.
func (p *StatusPublisher) Subscribe() <-chan Status {
	ch := make(chan Status, 8)
	p.mu.Lock()
	ch <- p.current
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Current returns the latest published status.
func (p *StatusPublisher) Current() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *StatusPublisher) publish(s Status) {
	p.mu.Lock()
	p.current = s
	for _, ch := range p.subs {
		select {
		case ch <- s:
		default: // slow subscriber, drop the intermediate state
		}
	}
	p.mu.Unlock()
}

// SetSyncing marks the engine busy.
func (p *StatusPublisher) SetSyncing() {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	cur.State = StateSyncing
	cur.Message = ""
	p.publish(cur)
}

// SetIdle marks a successful pass.
func (p *StatusPublisher) SetIdle() {
	p.publish(Status{State: StateIdle, LastSyncAt: time.Now()})
}

// SetError records a failed pass. The last sync time is preserved.
func (p *StatusPublisher) SetError(msg string) {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	cur.State = StateError
	cur.LastError = msg
	p.publish(cur)
}

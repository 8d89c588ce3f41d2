package chat

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotTracked means no persistence was ever started for the turn,
	// e.g. because the user is logged out or the turn is synthetic.
	ErrNotTracked = errors.New("chat: turn is not tracked for persistence")
	// ErrSessionClosed is recorded for persistence that finished after Close.
	ErrSessionClosed = errors.New("chat: session closed")
)

type pending struct {
	done     chan struct{}
	closed   bool
	serverID string
	err      error
}

// Correlator bridges client-side turn ids to the ids the server assigns
// when it persists them. Each tracked turn moves from pending to either
// resolved (server id known) or failed. Entries live for the whole
// session.
type Correlator struct {
	mu      sync.Mutex
	entries map[string]*pending
}

func NewCorrelator() *Correlator {
	return &Correlator{entries: make(map[string]*pending)}
}

// Begin marks localID as being persisted. Awaiters block until Resolve or
// Fail.
func (c *Correlator) Begin(localID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.entries[localID]; ok && !p.closed {
		return
	}
	c.entries[localID] = &pending{done: make(chan struct{})}
}

// Resolve records the server id for localID. Recording again overwrites
// the previous id.
func (c *Correlator) Resolve(localID, serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.entryLocked(localID)
	p.serverID = serverID
	p.err = nil
	p.finishLocked()
}

// Fail completes a pending entry without an id. An entry that already
// has an outcome is left alone.
func (c *Correlator) Fail(localID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.entryLocked(localID)
	if p.closed {
		return
	}
	p.err = err
	p.finishLocked()
}

func (c *Correlator) entryLocked(localID string) *pending {
	p, ok := c.entries[localID]
	if !ok {
		p = &pending{done: make(chan struct{})}
		c.entries[localID] = p
	}
	return p
}

func (p *pending) finishLocked() {
	if !p.closed {
		p.closed = true
		close(p.done)
	}
}

// Lookup reports the server id without blocking.
func (c *Correlator) Lookup(localID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[localID]
	if !ok || !p.closed || p.err != nil || p.serverID == "" {
		return "", false
	}
	return p.serverID, true
}

// Await blocks until localID is resolved or failed, or ctx is done.
func (c *Correlator) Await(ctx context.Context, localID string) (string, error) {
	c.mu.Lock()
	p, ok := c.entries[localID]
	c.mu.Unlock()
	if !ok {
		return "", ErrNotTracked
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return p.serverID, p.err
}

// Len is the number of tracked turns.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

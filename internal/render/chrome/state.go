package chrome

import (
	"context"
	"sync"
)

// pageState collects what the event listener learns about navigations, keyed by loader ID.
// Events for a navigation can arrive before page.Navigate returns its loader ID.
type pageState struct {
	mu        sync.Mutex
	statuses  map[string]int
	lifecycle map[string]map[string]struct{}
	changed   chan struct{} // closed and replaced on every lifecycle event
}

func newPageState() *pageState {
	return &pageState{
		statuses:  make(map[string]int),
		lifecycle: make(map[string]map[string]struct{}),
		changed:   make(chan struct{}),
	}
}

// reset forgets previous navigations
func (ps *pageState) reset() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	clear(ps.statuses)
	clear(ps.lifecycle)
}

func (ps *pageState) recordStatus(loaderID string, status int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.statuses[loaderID] = status
}

func (ps *pageState) status(loaderID string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.statuses[loaderID]
}

func (ps *pageState) recordLifecycle(loaderID, name string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	events, ok := ps.lifecycle[loaderID]
	if !ok {
		events = make(map[string]struct{})
		ps.lifecycle[loaderID] = events
	}
	events[name] = struct{}{}

	close(ps.changed)
	ps.changed = make(chan struct{})
}

func (ps *pageState) seen(loaderID, name string) (bool, <-chan struct{}) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	_, ok := ps.lifecycle[loaderID][name]
	return ok, ps.changed
}

// wait blocks until the named lifecycle event was recorded for loaderID or ctx is done
func (ps *pageState) wait(ctx context.Context, loaderID, name string) error {
	for {
		ok, changed := ps.seen(loaderID, name)
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

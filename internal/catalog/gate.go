package catalog

import (
	"fmt"
	"sync"
)

// LeaderGate guards every catalog call behind leader authority. Acquisition
// never blocks on readiness: while the catalog is loading or the process is
// not the elected authority, TryAcquire fails with ErrNotReady and the caller
// is expected to retry later.
type LeaderGate struct {
	rw     sync.RWMutex
	ready  bool
	loaded bool
}

// Authority is a live, shared leader-authority token. It must be released at
// scope exit; holding it guarantees the gate stays open for the duration.
type Authority struct {
	g        *LeaderGate
	released bool
}

// Release returns the token. Safe to call once per token.
func (a *Authority) Release() {
	if a == nil || a.released {
		return
	}
	a.released = true
	a.g.rw.RUnlock()
}

// TryAcquire returns a shared authority token, or ErrNotReady when the
// catalog has not finished loading or leadership is lost.
func (g *LeaderGate) TryAcquire() (*Authority, error) {
	g.rw.RLock()
	if !g.ready || !g.loaded {
		g.rw.RUnlock()
		return nil, fmt.Errorf("%w: loaded=%v leader=%v", ErrNotReady, g.loaded, g.ready)
	}
	return &Authority{g: g}, nil
}

// SetLoaded marks the catalog as fully loaded from persistent storage.
func (g *LeaderGate) SetLoaded() {
	g.rw.Lock()
	g.loaded = true
	g.rw.Unlock()
}

// SetLeader opens or closes the gate for leadership. Closing waits for
// outstanding authority tokens to be released.
func (g *LeaderGate) SetLeader(leader bool) {
	g.rw.Lock()
	g.ready = leader
	g.rw.Unlock()
}

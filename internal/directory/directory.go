// Package directory tracks the tablet servers known to the master. Entries
// are created on first registration, refreshed on every heartbeat, marked
// stale after missed heartbeats, and never deleted for mere staleness.
package directory

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/huandu/skiplist"
)

// Registration is the connectivity block a tablet server sends when it
// (re)registers.
type Registration struct {
	RPCAddresses    []string
	HTTPAddresses   []string
	HTTPSEnabled    bool
	SoftwareVersion string
	StartTime       time.Time
}

// Descriptor is the master's view of one tablet server.
type Descriptor struct {
	UUID          string
	Seqno         int64
	Registration  Registration
	LastHeartbeat time.Time
	Live          bool
}

// ErrWildcardAddress rejects registrations advertising 0.0.0.0; peers could
// never reach such an address.
var ErrWildcardAddress = errors.New("directory: registration contains a wildcard address")

// ErrStaleSeqno rejects a registration whose sequence number is behind the
// recorded one; a restarted server always registers with a higher seqno.
var ErrStaleSeqno = errors.New("directory: registration sequence number is stale")

type hbKey struct {
	at   int64
	uuid string
}

func compareHBKeys(l, r interface{}) int {
	a, b := l.(hbKey), r.(hbKey)
	switch {
	case a.at < b.at:
		return -1
	case a.at > b.at:
		return 1
	default:
		return strings.Compare(a.uuid, b.uuid)
	}
}

// Directory is safe for concurrent use by RPC handlers.
type Directory struct {
	mu         sync.RWMutex
	servers    map[string]*Descriptor
	byLastSeen *skiplist.SkipList // hbKey -> uuid, oldest first
	staleAfter time.Duration
}

func New(staleAfter time.Duration) *Directory {
	return &Directory{
		servers:    make(map[string]*Descriptor),
		byLastSeen: skiplist.New(skiplist.GreaterThanFunc(compareHBKeys)),
		staleAfter: staleAfter,
	}
}

// Register creates or replaces the descriptor for uuid. A lower seqno than
// the recorded one is rejected; an equal or higher one supersedes the old
// registration.
func (d *Directory) Register(uuid string, seqno int64, reg Registration, now time.Time) error {
	if uuid == "" {
		return fmt.Errorf("directory: empty tablet server uuid")
	}
	for _, addr := range append(append([]string(nil), reg.RPCAddresses...), reg.HTTPAddresses...) {
		if strings.HasPrefix(addr, "0.0.0.0") {
			return fmt.Errorf("%w: %s", ErrWildcardAddress, addr)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.servers[uuid]; ok {
		if seqno < existing.Seqno {
			return fmt.Errorf("%w: got %d, have %d", ErrStaleSeqno, seqno, existing.Seqno)
		}
		d.byLastSeen.Remove(hbKey{at: existing.LastHeartbeat.UnixNano(), uuid: uuid})
	}
	d.servers[uuid] = &Descriptor{
		UUID:          uuid,
		Seqno:         seqno,
		Registration:  reg,
		LastHeartbeat: now,
		Live:          true,
	}
	d.byLastSeen.Set(hbKey{at: now.UnixNano(), uuid: uuid}, uuid)
	return nil
}

// Refresh records a heartbeat from uuid. It reports false when the server is
// unknown, signalling the sender to re-register.
func (d *Directory) Refresh(uuid string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, ok := d.servers[uuid]
	if !ok {
		return false
	}
	d.byLastSeen.Remove(hbKey{at: desc.LastHeartbeat.UnixNano(), uuid: uuid})
	desc.LastHeartbeat = now
	desc.Live = true
	d.byLastSeen.Set(hbKey{at: now.UnixNano(), uuid: uuid}, uuid)
	return true
}

// MarkStale flips liveness off for every server whose last heartbeat is
// older than the staleness threshold. Descriptors are kept; a later
// heartbeat fully restores them.
func (d *Directory) MarkStale(now time.Time) int {
	cutoff := now.Add(-d.staleAfter).UnixNano()

	d.mu.Lock()
	defer d.mu.Unlock()
	marked := 0
	for elem := d.byLastSeen.Front(); elem != nil; elem = elem.Next() {
		key := elem.Key().(hbKey)
		if key.at >= cutoff {
			break
		}
		if desc := d.servers[key.uuid]; desc != nil && desc.Live {
			desc.Live = false
			marked++
		}
	}
	return marked
}

// Get returns a copy of the descriptor for uuid.
func (d *Directory) Get(uuid string) (Descriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	desc, ok := d.servers[uuid]
	if !ok {
		return Descriptor{}, false
	}
	return *desc, true
}

// List returns descriptor copies ordered from least to most recently seen.
func (d *Directory) List() []Descriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Descriptor, 0, len(d.servers))
	for elem := d.byLastSeen.Front(); elem != nil; elem = elem.Next() {
		if desc := d.servers[elem.Value.(string)]; desc != nil {
			out = append(out, *desc)
		}
	}
	return out
}

// Count returns the number of known servers and how many are live.
func (d *Directory) Count() (total, live int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total = len(d.servers)
	for _, desc := range d.servers {
		if desc.Live {
			live++
		}
	}
	return total, live
}

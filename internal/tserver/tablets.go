// Package tserver implements the tablet-server side of the control plane:
// local replica bookkeeping and the heartbeat loop reporting it to the
// master.
package tserver

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	api "stratadb/pkg/api"
)

// LocalReplica is this server's view of one hosted tablet replica.
type LocalReplica struct {
	TabletID string          `json:"tabletId"`
	TableID  string          `json:"tableId"`
	Term     uint64          `json:"term"`
	Role     api.ReplicaRole `json:"role"`
	State    api.TabletState `json:"state"`

	lastChange uint64
}

const replicaKeyPrefix = "replica/"

// TabletManager owns the replica state shared between the serving path and
// the heartbeat loop, under one local lock. State is persisted so terms
// survive restarts; every replica's term advances on open, the local stand-in
// for the consensus round a restarted replica runs to rejoin.
type TabletManager struct {
	mu       sync.Mutex
	db       *pebble.DB
	replicas map[string]*LocalReplica
	seq      uint64
}

func OpenTabletManager(dir string) (*TabletManager, error) {
	if dir == "" {
		return nil, fmt.Errorf("tablet directory is empty")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open tablet metadata: %w", err)
	}
	m := &TabletManager{
		db:       db,
		replicas: make(map[string]*LocalReplica),
	}
	if err := m.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *TabletManager) load() error {
	iter, err := m.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		var rep LocalReplica
		if err := json.Unmarshal(iter.Value(), &rep); err != nil {
			return fmt.Errorf("replica row %s: %w", iter.Key(), err)
		}
		rep.Term++
		m.seq++
		rep.lastChange = m.seq
		m.replicas[rep.TabletID] = &rep
	}
	if err := iter.Error(); err != nil {
		return err
	}
	// Persist the bumped terms so a crash before the next report does not
	// regress them.
	for _, rep := range m.replicas {
		if err := m.persistLocked(rep); err != nil {
			return err
		}
	}
	return nil
}

func (m *TabletManager) persistLocked(rep *LocalReplica) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	return m.db.Set([]byte(replicaKeyPrefix+rep.TabletID), data, pebble.Sync)
}

// AddReplica registers a hosted replica, as placed by the master or a
// bootstrap tool.
func (m *TabletManager) AddReplica(tabletID, tableID string, role api.ReplicaRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.replicas[tabletID]; ok {
		return fmt.Errorf("replica %s already hosted", tabletID)
	}
	m.seq++
	rep := &LocalReplica{
		TabletID:   tabletID,
		TableID:    tableID,
		Term:       1,
		Role:       role,
		State:      api.TabletStateRunning,
		lastChange: m.seq,
	}
	if err := m.persistLocked(rep); err != nil {
		return err
	}
	m.replicas[tabletID] = rep
	return nil
}

// SetTerm records a consensus term change for a hosted replica.
func (m *TabletManager) SetTerm(tabletID string, term uint64, role api.ReplicaRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rep, ok := m.replicas[tabletID]
	if !ok {
		return fmt.Errorf("replica %s not hosted", tabletID)
	}
	if term < rep.Term {
		return fmt.Errorf("term %d behind local term %d for %s", term, rep.Term, tabletID)
	}
	if term == rep.Term && role == rep.Role {
		return nil
	}
	rep.Term = term
	rep.Role = role
	m.seq++
	rep.lastChange = m.seq
	return m.persistLocked(rep)
}

// Replicas returns a snapshot for the serving path.
func (m *TabletManager) Replicas() []LocalReplica {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LocalReplica, 0, len(m.replicas))
	for _, rep := range m.replicas {
		out = append(out, *rep)
	}
	return out
}

// BuildReport assembles a report. Full reports carry every replica;
// incremental ones only those changed since the last acknowledged report.
// The returned sequence must be passed to AckReport once the master accepted
// the heartbeat, so changes racing the RPC stay pending.
func (m *TabletManager) BuildReport(full bool) (*api.TabletReport, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report := &api.TabletReport{Full: full}
	for _, rep := range m.replicas {
		if !full && rep.lastChange == 0 {
			continue
		}
		report.Tablets = append(report.Tablets, &api.ReportedTablet{
			TabletID: rep.TabletID,
			TableID:  rep.TableID,
			Term:     rep.Term,
			Role:     rep.Role,
			State:    rep.State,
		})
	}
	return report, m.seq
}

// AckReport clears the pending mark on replicas unchanged since the report
// was built.
func (m *TabletManager) AckReport(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rep := range m.replicas {
		if rep.lastChange != 0 && rep.lastChange <= seq {
			rep.lastChange = 0
		}
	}
}

func (m *TabletManager) Close() error {
	return m.db.Close()
}

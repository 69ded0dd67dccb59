package catalog

import (
	"fmt"
)

// ReportedReplica is one entry of a tablet report: the sender's current
// consensus view of a replica it hosts.
type ReportedReplica struct {
	TabletID string
	TableID  string
	Term     uint64
	Role     ReplicaRole
	State    TabletState
}

// TabletReport is a tagged sequence of per-tablet status entries from one
// tablet server. A full report replaces the replica set attributed to that
// server; an incremental report only touches the tablets it names.
type TabletReport struct {
	Full    bool
	Tablets []ReportedReplica
}

// ReportResult summarizes what reconciliation did.
type ReportResult struct {
	// RowsWritten counts catalog rows actually rewritten by this report.
	RowsWritten int
	// StaleTablets were rejected for carrying a term lower than recorded.
	StaleTablets []string
	// IgnoredTablets were unknown to the catalog or belong to deleted
	// tables. Reconciliation never inserts rows for them.
	IgnoredTablets []string
}

// ApplyTabletReport merges one server's report into the catalog with minimal
// writes. Unchanged replicas cost zero writes, so a settled cluster
// re-heartbeating after a master restart leaves the catalog untouched.
// The merge is applied in a single transaction.
func (c *Catalog) ApplyTabletReport(tsUUID string, report TabletReport) (ReportResult, error) {
	var result ReportResult

	authority, err := c.gate.TryAcquire()
	if err != nil {
		return result, err
	}
	defer authority.Release()

	if tsUUID == "" {
		return result, fmt.Errorf("tablet server uuid is empty")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	reported := make(map[string]struct{}, len(report.Tablets))
	for _, entry := range report.Tablets {
		reported[entry.TabletID] = struct{}{}
	}

	changed := make(map[string]*TabletInfo)

	c.mu.RLock()
	// A full report withdraws replicas this server no longer claims.
	if report.Full {
		c.tablets.Ascend(func(t *TabletInfo) bool {
			if _, ok := reported[t.ID]; ok {
				return true
			}
			if replicaIndex(t.Replicas, tsUUID) >= 0 {
				clone := t.clone()
				clone.Replicas = removeReplica(clone.Replicas, tsUUID)
				changed[t.ID] = clone
			}
			return true
		})
	}

	for _, entry := range report.Tablets {
		tablet := changed[entry.TabletID]
		if tablet == nil {
			current, ok := c.tablets.Get(&TabletInfo{ID: entry.TabletID})
			if !ok {
				result.IgnoredTablets = append(result.IgnoredTablets, entry.TabletID)
				continue
			}
			tablet = current.clone()
		}
		table := c.tablesByID[tablet.TableID]
		if table == nil || table.State == TableDeleted {
			result.IgnoredTablets = append(result.IgnoredTablets, entry.TabletID)
			continue
		}

		idx := replicaIndex(tablet.Replicas, tsUUID)
		if idx >= 0 {
			existing := tablet.Replicas[idx]
			if entry.Term < existing.Term {
				result.StaleTablets = append(result.StaleTablets, entry.TabletID)
				continue
			}
			if entry.Term == existing.Term && entry.Role == existing.Role {
				// Nothing to merge; keep any pending full-report change.
				if _, pending := changed[tablet.ID]; !pending {
					continue
				}
			} else {
				tablet.Replicas[idx].Term = entry.Term
				tablet.Replicas[idx].Role = entry.Role
			}
		} else {
			tablet.Replicas = append(tablet.Replicas, ReplicaLocation{
				TSUUID: tsUUID,
				Role:   entry.Role,
				Term:   entry.Term,
			})
		}
		if tablet.State == TabletCreating {
			tablet.State = TabletRunning
		}
		changed[tablet.ID] = tablet
	}

	// A table under creation finishes once every tablet has a confirmed
	// replica. The transition is one-way.
	changedTables := make(map[string]*TableInfo)
	for _, tablet := range changed {
		table := c.tablesByID[tablet.TableID]
		if table == nil || table.State != TableCreating {
			continue
		}
		if _, done := changedTables[table.ID]; done {
			continue
		}
		allRunning := true
		for _, id := range table.TabletIDs {
			t := changed[id]
			if t == nil {
				t, _ = c.tablets.Get(&TabletInfo{ID: id})
			}
			if t == nil || t.State != TabletRunning || len(t.Replicas) == 0 {
				allRunning = false
				break
			}
		}
		if allRunning {
			clone := *table
			clone.State = TableRunning
			changedTables[table.ID] = &clone
		}
	}
	c.mu.RUnlock()

	if len(changed) == 0 && len(changedTables) == 0 {
		return result, nil
	}

	writes := make([]rowWrite, 0, len(changed)+len(changedTables))
	for _, tablet := range changed {
		writes = append(writes, tabletRowWrite(tablet))
	}
	for _, table := range changedTables {
		writes = append(writes, tableRowWrite(table))
	}
	outcomes, err := c.store.WriteBatch(writes)
	if err != nil {
		return result, fmt.Errorf("persist report from %s: %w", tsUUID, err)
	}
	for _, o := range outcomes {
		if o != WriteNone {
			result.RowsWritten++
		}
	}

	c.mu.Lock()
	for _, tablet := range changed {
		c.tablets.ReplaceOrInsert(tablet)
	}
	for _, table := range changedTables {
		c.tablesByID[table.ID] = table
	}
	c.mu.Unlock()
	return result, nil
}

func (t *TabletInfo) clone() *TabletInfo {
	c := *t
	c.Replicas = append([]ReplicaLocation(nil), t.Replicas...)
	return &c
}

func replicaIndex(replicas []ReplicaLocation, tsUUID string) int {
	for i := range replicas {
		if replicas[i].TSUUID == tsUUID {
			return i
		}
	}
	return -1
}

func removeReplica(replicas []ReplicaLocation, tsUUID string) []ReplicaLocation {
	out := replicas[:0]
	for _, r := range replicas {
		if r.TSUUID != tsUUID {
			out = append(out, r)
		}
	}
	return out
}

// Package catalog holds the master's persistent metadata: tables, tablets,
// and replica placements. Every call goes through the leader-authority gate;
// mutations are serialized and persisted to the system catalog before they
// become visible.
package catalog

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	art "github.com/plar/go-adaptive-radix-tree"
	"golang.org/x/exp/slices"

	"stratadb/internal/schema"
)

type TableState string

const (
	TableCreating TableState = "CREATING"
	TableRunning  TableState = "RUNNING"
	TableDeleted  TableState = "DELETED"
)

type TabletState string

const (
	TabletCreating TabletState = "CREATING"
	TabletRunning  TabletState = "RUNNING"
	TabletDeleted  TabletState = "DELETED"
)

type ReplicaRole string

const (
	RoleLeader   ReplicaRole = "LEADER"
	RoleFollower ReplicaRole = "FOLLOWER"
	RoleLearner  ReplicaRole = "LEARNER"
)

// ReplicaLocation records one tablet server hosting a replica. Term is
// monotone per (tablet, server); reports carrying a lower term are rejected.
type ReplicaLocation struct {
	TSUUID string      `json:"tsUuid"`
	Role   ReplicaRole `json:"role"`
	Term   uint64      `json:"term"`
}

type TableInfo struct {
	ID           string
	Name         string
	Schema       schema.Schema
	State        TableState
	ReplicaCount int
	TabletIDs    []string
}

type TabletInfo struct {
	ID       string
	TableID  string
	State    TabletState
	Replicas []ReplicaLocation
}

type tableMeta struct {
	Name         string        `json:"name"`
	Schema       schema.Schema `json:"schema"`
	State        TableState    `json:"state"`
	ReplicaCount int           `json:"replicaCount"`
	TabletIDs    []string      `json:"tabletIds"`
}

type tabletMeta struct {
	TableID  string            `json:"tableId"`
	State    TabletState       `json:"state"`
	Replicas []ReplicaLocation `json:"replicas"`
}

// Catalog is the in-memory view over the persisted system catalog. Tables
// are indexed by name on a radix tree, tablets by id on a btree.
type Catalog struct {
	gate  *LeaderGate
	store *sysStore

	mu         sync.RWMutex
	writeMu    sync.Mutex
	tablesByID map[string]*TableInfo
	tableNames art.Tree
	tablets    *btree.BTreeG[*TabletInfo]
}

func lessTablet(a, b *TabletInfo) bool { return a.ID < b.ID }

// Open loads the catalog from dir. A load failure is fatal: the master must
// refuse to serve rather than run with partial metadata.
func Open(dir string) (*Catalog, error) {
	store, err := openSysStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open system catalog: %w", err)
	}
	c := &Catalog{
		gate:       &LeaderGate{},
		store:      store,
		tablesByID: make(map[string]*TableInfo),
		tableNames: art.New(),
		tablets:    btree.NewG(8, lessTablet),
	}
	if err := c.load(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load system catalog: %w", err)
	}
	c.gate.SetLoaded()
	return c, nil
}

func (c *Catalog) load() error {
	if err := c.store.ForEach(tableBucketKey, func(row Row) error {
		var meta tableMeta
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return fmt.Errorf("table row %s: %w", row.ID, err)
		}
		info := &TableInfo{
			ID:           row.ID,
			Name:         meta.Name,
			Schema:       meta.Schema,
			State:        meta.State,
			ReplicaCount: meta.ReplicaCount,
			TabletIDs:    meta.TabletIDs,
		}
		c.tablesByID[info.ID] = info
		c.tableNames.Insert(art.Key(info.Name), info.ID)
		return nil
	}); err != nil {
		return err
	}
	return c.store.ForEach(tabletBucketKey, func(row Row) error {
		var meta tabletMeta
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return fmt.Errorf("tablet row %s: %w", row.ID, err)
		}
		c.tablets.ReplaceOrInsert(&TabletInfo{
			ID:       row.ID,
			TableID:  meta.TableID,
			State:    meta.State,
			Replicas: meta.Replicas,
		})
		return nil
	})
}

// AssumeLeadership opens the gate. In a multi-master deployment this is
// driven by the election; the single-master deployment calls it right after
// Open succeeds.
func (c *Catalog) AssumeLeadership() { c.gate.SetLeader(true) }

// Resign closes the gate; in-flight calls finish, new calls get ErrNotReady.
func (c *Catalog) Resign() { c.gate.SetLeader(false) }

func (c *Catalog) Close() error { return c.store.Close() }

// RowsInserted returns catalog rows inserted since this process opened it.
func (c *Catalog) RowsInserted() int64 { return c.store.RowsInserted() }

// RowsUpdated returns catalog rows rewritten since this process opened it.
func (c *Catalog) RowsUpdated() int64 { return c.store.RowsUpdated() }

// CreateTable validates the schema, assigns the initial placement, and
// persists one row for the table plus one per tablet. Completion is
// asynchronous: poll IsCreateTableDone.
func (c *Catalog) CreateTable(name string, sch schema.Schema, replicaCount, tabletCount int) (string, error) {
	authority, err := c.gate.TryAcquire()
	if err != nil {
		return "", err
	}
	defer authority.Release()

	if name == "" {
		return "", fmt.Errorf("%w: empty table name", schema.ErrInvalidSchema)
	}
	if err := sch.Validate(); err != nil {
		return "", err
	}
	if replicaCount <= 0 {
		replicaCount = 1
	}
	if tabletCount <= 0 {
		tabletCount = 1
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	_, exists := c.tableNames.Search(art.Key(name))
	c.mu.RUnlock()
	if exists {
		return "", fmt.Errorf("%w: %q", ErrTableExists, name)
	}

	table := &TableInfo{
		ID:           uuid.NewString(),
		Name:         name,
		Schema:       sch,
		State:        TableCreating,
		ReplicaCount: replicaCount,
	}
	tablets := make([]*TabletInfo, 0, tabletCount)
	for i := 0; i < tabletCount; i++ {
		t := &TabletInfo{
			ID:      uuid.NewString(),
			TableID: table.ID,
			State:   TabletCreating,
		}
		table.TabletIDs = append(table.TabletIDs, t.ID)
		tablets = append(tablets, t)
	}

	writes := []rowWrite{tableRowWrite(table)}
	for _, t := range tablets {
		writes = append(writes, tabletRowWrite(t))
	}
	if _, err := c.store.WriteBatch(writes); err != nil {
		return "", fmt.Errorf("persist table %q: %w", name, err)
	}

	c.mu.Lock()
	c.tablesByID[table.ID] = table
	c.tableNames.Insert(art.Key(table.Name), table.ID)
	for _, t := range tablets {
		c.tablets.ReplaceOrInsert(t)
	}
	c.mu.Unlock()
	return table.ID, nil
}

// IsCreateTableDone reports whether every tablet of the table has at least
// one confirmed replica. Once true it stays true.
func (c *Catalog) IsCreateTableDone(name string) (bool, error) {
	authority, err := c.gate.TryAcquire()
	if err != nil {
		return false, err
	}
	defer authority.Release()

	c.mu.RLock()
	defer c.mu.RUnlock()
	table, err := c.tableByNameLocked(name)
	if err != nil {
		return false, err
	}
	return table.State == TableRunning, nil
}

// GetTableSchema returns the schema plus the create-done flag.
func (c *Catalog) GetTableSchema(name string) (schema.Schema, bool, error) {
	authority, err := c.gate.TryAcquire()
	if err != nil {
		return schema.Schema{}, false, err
	}
	defer authority.Release()

	c.mu.RLock()
	defer c.mu.RUnlock()
	table, err := c.tableByNameLocked(name)
	if err != nil {
		return schema.Schema{}, false, err
	}
	return table.Schema, table.State == TableRunning, nil
}

// GetTabletLocations returns the replica set of a tablet, sorted by server
// uuid for stable output.
func (c *Catalog) GetTabletLocations(tabletID string) ([]ReplicaLocation, error) {
	authority, err := c.gate.TryAcquire()
	if err != nil {
		return nil, err
	}
	defer authority.Release()

	c.mu.RLock()
	defer c.mu.RUnlock()
	tablet, ok := c.tablets.Get(&TabletInfo{ID: tabletID})
	if !ok || tablet.State == TabletDeleted {
		return nil, fmt.Errorf("%w: %s", ErrTabletNotFound, tabletID)
	}
	out := append([]ReplicaLocation(nil), tablet.Replicas...)
	uuids := make([]string, 0, len(out))
	for _, r := range out {
		uuids = append(uuids, r.TSUUID)
	}
	slices.Sort(uuids)
	sorted := make([]ReplicaLocation, 0, len(out))
	for _, id := range uuids {
		for _, r := range out {
			if r.TSUUID == id {
				sorted = append(sorted, r)
				break
			}
		}
	}
	return sorted, nil
}

// TabletIDs returns the tablet ids of a table, for tools and tests.
func (c *Catalog) TabletIDs(name string) ([]string, error) {
	authority, err := c.gate.TryAcquire()
	if err != nil {
		return nil, err
	}
	defer authority.Release()

	c.mu.RLock()
	defer c.mu.RUnlock()
	table, err := c.tableByNameLocked(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), table.TabletIDs...), nil
}

func (c *Catalog) tableByNameLocked(name string) (*TableInfo, error) {
	value, ok := c.tableNames.Search(art.Key(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	table := c.tablesByID[value.(string)]
	if table == nil || table.State == TableDeleted {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return table, nil
}

func tableRowWrite(table *TableInfo) rowWrite {
	meta := tableMeta{
		Name:         table.Name,
		Schema:       table.Schema,
		State:        table.State,
		ReplicaCount: table.ReplicaCount,
		TabletIDs:    table.TabletIDs,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		// tableMeta contains only marshalable fields.
		panic(err)
	}
	return rowWrite{bucket: tableBucketKey, id: table.ID, metadata: data}
}

func tabletRowWrite(tablet *TabletInfo) rowWrite {
	replicas := append([]ReplicaLocation(nil), tablet.Replicas...)
	// Sorted so an unchanged replica set serializes identically and costs
	// zero writes.
	slices.SortFunc(replicas, func(a, b ReplicaLocation) int {
		switch {
		case a.TSUUID < b.TSUUID:
			return -1
		case a.TSUUID > b.TSUUID:
			return 1
		default:
			return 0
		}
	})
	meta := tabletMeta{
		TableID:  tablet.TableID,
		State:    tablet.State,
		Replicas: replicas,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		panic(err)
	}
	return rowWrite{bucket: tabletBucketKey, id: tablet.ID, metadata: data}
}

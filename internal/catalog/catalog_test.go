package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stratadb/internal/schema"
)

func testSchema() schema.Schema {
	return schema.Schema{
		Columns: []schema.Column{
			{Name: "key", Type: schema.TypeInt64},
			{Name: "val", Type: schema.TypeString, Nullable: true},
		},
		KeyColumns: 1,
	}
}

func openTestCatalog(t *testing.T, dir string) *Catalog {
	t.Helper()
	c, err := Open(dir)
	require.NoError(t, err)
	c.AssumeLeadership()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCreateTableWritesOneRowPerEntity(t *testing.T) {
	c := openTestCatalog(t, t.TempDir())

	_, err := c.CreateTable("t1", testSchema(), 1, 1)
	require.NoError(t, err)
	// One table row plus one tablet row.
	require.EqualValues(t, 2, c.RowsInserted())
	require.EqualValues(t, 0, c.RowsUpdated())

	_, err = c.CreateTable("t2", testSchema(), 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 4, c.RowsInserted())
	require.EqualValues(t, 0, c.RowsUpdated())

	_, err = c.CreateTable("t3", testSchema(), 3, 4)
	require.NoError(t, err)
	require.EqualValues(t, 9, c.RowsInserted())
}

func TestCreateTableRejectsDuplicatesAndBadSchemas(t *testing.T) {
	c := openTestCatalog(t, t.TempDir())

	_, err := c.CreateTable("t1", testSchema(), 1, 1)
	require.NoError(t, err)

	_, err = c.CreateTable("t1", testSchema(), 1, 1)
	if !IsTableExistsError(err) {
		t.Fatalf("expected table-exists, got %v", err)
	}

	bad := testSchema()
	bad.KeyColumns = 0
	_, err = c.CreateTable("t2", bad, 1, 1)
	require.Error(t, err)

	_, err = c.CreateTable("", testSchema(), 1, 1)
	require.Error(t, err)

	// Failed creates leave no rows behind.
	require.EqualValues(t, 2, c.RowsInserted())
}

func TestCatalogNotReadyBeforeLeadership(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.CreateTable("t1", testSchema(), 1, 1)
	if !IsNotReadyError(err) {
		t.Fatalf("expected not-ready, got %v", err)
	}
	_, err = c.IsCreateTableDone("t1")
	if !IsNotReadyError(err) {
		t.Fatalf("expected not-ready, got %v", err)
	}

	c.AssumeLeadership()
	_, err = c.CreateTable("t1", testSchema(), 1, 1)
	require.NoError(t, err)

	c.Resign()
	_, err = c.IsCreateTableDone("t1")
	if !IsNotReadyError(err) {
		t.Fatalf("expected not-ready after resign, got %v", err)
	}
}

func TestCatalogSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	c := openTestCatalog(t, dir)

	id, err := c.CreateTable("t1", testSchema(), 1, 2)
	require.NoError(t, err)
	tabletIDs, err := c.TabletIDs("t1")
	require.NoError(t, err)
	require.Len(t, tabletIDs, 2)
	require.NoError(t, c.Close())

	reopened := openTestCatalog(t, dir)
	sch, done, err := reopened.GetTableSchema("t1")
	require.NoError(t, err)
	require.False(t, done)
	require.True(t, sch.Equal(testSchema()))

	ids, err := reopened.TabletIDs("t1")
	require.NoError(t, err)
	require.Equal(t, tabletIDs, ids)

	// Creation state persisted as CREATING: a reload alone never promotes.
	done, err = reopened.IsCreateTableDone("t1")
	require.NoError(t, err)
	require.False(t, done)

	_, err = reopened.CreateTable("t1", testSchema(), 1, 1)
	if !IsTableExistsError(err) {
		t.Fatalf("reopen lost table %s: %v", id, err)
	}
}

func TestGetTableSchemaUnknownTable(t *testing.T) {
	c := openTestCatalog(t, t.TempDir())
	_, _, err := c.GetTableSchema("missing")
	if !IsNotFoundError(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	_, err = c.GetTabletLocations("missing-tablet")
	if !IsNotFoundError(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

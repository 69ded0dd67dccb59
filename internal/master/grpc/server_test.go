package mastergrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"stratadb/internal/catalog"
	"stratadb/internal/directory"
	"stratadb/internal/master"
	"stratadb/internal/security"
	api "stratadb/pkg/api"
)

func startTestMaster(t *testing.T) (*Client, *catalog.Catalog) {
	t.Helper()
	cat, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	cat.AssumeLeadership()
	t.Cleanup(func() { _ = cat.Close() })

	dir := directory.New(6 * time.Second)
	ca, err := security.NewCertAuthority("test")
	require.NoError(t, err)
	tsk, err := security.NewTokenSigner(time.Hour)
	require.NoError(t, err)
	service := master.NewHeartbeatService(cat, dir, ca, tsk, &api.ServerRegistration{})

	server := grpc.NewServer(grpc.ForceServerCodec(api.JSONCodec{}))
	Register(server, service, cat)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.GracefulStop)

	client, err := NewClient(context.Background(), lis.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, cat
}

func TestCreateTableRoundTrip(t *testing.T) {
	client, cat := startTestMaster(t)
	ctx := context.Background()

	resp, err := client.CreateTable(ctx, &api.CreateTableRequest{
		Name: "t1",
		Schema: &api.TableSchema{
			Columns: []*api.ColumnSchema{
				{Name: "id", Type: "INT64"},
				{Name: "val", Type: "STRING", Nullable: true},
			},
			KeyColumns: 1,
		},
		ReplicaCount: 1,
		TabletCount:  1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.TableID)

	done, err := client.IsCreateTableDone(ctx, "t1")
	require.NoError(t, err)
	require.False(t, done)

	// A duplicate maps onto AlreadyExists over the wire.
	_, err = client.CreateTable(ctx, &api.CreateTableRequest{
		Name: "t1",
		Schema: &api.TableSchema{
			Columns:    []*api.ColumnSchema{{Name: "id", Type: "INT64"}},
			KeyColumns: 1,
		},
	})
	if !catalog.IsTableExistsError(err) {
		t.Fatalf("expected table-exists status, got %v", err)
	}

	// A heartbeat report completes the creation.
	tabletIDs, err := cat.TabletIDs("t1")
	require.NoError(t, err)
	hbResp, err := client.Heartbeat(ctx, &api.HeartbeatRequest{
		TSUUID: "ts-1",
		Seqno:  1,
		Registration: &api.ServerRegistration{
			RPCAddresses: []api.HostPort{{Host: "127.0.0.1", Port: 7050}},
		},
		Report: &api.TabletReport{
			Full: true,
			Tablets: []*api.ReportedTablet{{
				TabletID: tabletIDs[0],
				TableID:  resp.TableID,
				Term:     1,
				Role:     api.RoleLeader,
				State:    api.TabletStateRunning,
			}},
		},
	})
	require.NoError(t, err)
	require.False(t, hbResp.NeedsReregister)
	require.NotEmpty(t, hbResp.TokenSigningKeys)

	done, err = client.IsCreateTableDone(ctx, "t1")
	require.NoError(t, err)
	require.True(t, done)

	schemaResp, err := client.GetTableSchema(ctx, "t1")
	require.NoError(t, err)
	require.True(t, schemaResp.CreateDone)
	require.Len(t, schemaResp.Schema.Columns, 2)

	locations, err := client.GetTabletLocations(ctx, tabletIDs[0])
	require.NoError(t, err)
	require.Len(t, locations.Replicas, 1)
	require.Equal(t, "ts-1", locations.Replicas[0].TSUUID)
	require.Equal(t, api.RoleLeader, locations.Replicas[0].Role)
}

func TestStatusMapping(t *testing.T) {
	client, cat := startTestMaster(t)
	ctx := context.Background()

	_, err := client.GetTableSchema(ctx, "missing")
	if !catalog.IsNotFoundError(err) {
		t.Fatalf("expected not-found status, got %v", err)
	}

	_, err = client.Heartbeat(ctx, &api.HeartbeatRequest{})
	require.Error(t, err, "missing uuid is invalid")

	cat.Resign()
	_, err = client.IsCreateTableDone(ctx, "t1")
	if !catalog.IsNotReadyError(err) {
		t.Fatalf("expected not-ready status, got %v", err)
	}
}

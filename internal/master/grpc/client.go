package mastergrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	api "stratadb/pkg/api"
)

const defaultCallTimeout = 5 * time.Second

// Client wraps the Master gRPC API for tablet servers and tools.
type Client struct {
	conn   *grpc.ClientConn
	client api.MasterClient
}

func NewClient(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.ForceCodec(api.JSONCodec{})))
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: api.NewMasterClient(conn)}, nil
}

// Heartbeat sends one heartbeat. The caller controls the deadline; the
// heartbeater always attaches one.
func (c *Client) Heartbeat(ctx context.Context, req *api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
	return c.client.Heartbeat(ctx, req)
}

func (c *Client) CreateTable(ctx context.Context, req *api.CreateTableRequest) (*api.CreateTableResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()
	return c.client.CreateTable(ctx, req)
}

func (c *Client) IsCreateTableDone(ctx context.Context, tableName string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()
	resp, err := c.client.IsCreateTableDone(ctx, &api.IsCreateTableDoneRequest{TableName: tableName})
	if err != nil {
		return false, err
	}
	return resp.Done, nil
}

func (c *Client) GetTableSchema(ctx context.Context, tableName string) (*api.GetTableSchemaResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()
	return c.client.GetTableSchema(ctx, &api.GetTableSchemaRequest{TableName: tableName})
}

func (c *Client) GetTabletLocations(ctx context.Context, tabletID string) (*api.GetTabletLocationsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()
	return c.client.GetTabletLocations(ctx, &api.GetTabletLocationsRequest{TabletID: tabletID})
}

func (c *Client) Close() error {
	return c.conn.Close()
}

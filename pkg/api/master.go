package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// --- Common descriptors ---

type HostPort struct {
	Host string
	Port int
}

func (hp HostPort) String() string {
	return fmt.Sprintf("%s:%d", hp.Host, hp.Port)
}

// ServerRegistration describes how a server can be reached, plus the
// software it runs. Sent by tablet servers on (re)registration and echoed by
// the master for its own descriptor.
type ServerRegistration struct {
	RPCAddresses    []HostPort
	HTTPAddresses   []HostPort
	HTTPSEnabled    bool
	SoftwareVersion string
	StartTimeUnix   int64
}

// --- Heartbeat ---

type ReplicaRole string

const (
	RoleLeader   ReplicaRole = "LEADER"
	RoleFollower ReplicaRole = "FOLLOWER"
	RoleLearner  ReplicaRole = "LEARNER"
)

type TabletState string

const (
	TabletStateCreating TabletState = "CREATING"
	TabletStateRunning  TabletState = "RUNNING"
	TabletStateDeleted  TabletState = "DELETED"
)

// ReportedTablet is one entry of a tablet report: the sender's current
// consensus view of a replica it hosts.
type ReportedTablet struct {
	TabletID string
	TableID  string
	Term     uint64
	Role     ReplicaRole
	State    TabletState
}

type TabletReport struct {
	Full    bool
	Tablets []*ReportedTablet
}

type TokenSigningKey struct {
	KeyID      int64
	PublicKey  []byte
	ExpireUnix int64
}

type HeartbeatRequest struct {
	TSUUID       string
	Seqno        int64
	Registration *ServerRegistration
	Report       *TabletReport
	// CSRPEM carries a PEM-encoded certificate signing request when the
	// sender holds no signed certificate yet.
	CSRPEM []byte
}

type HeartbeatResponse struct {
	NeedsReregister  bool
	NeedsFullReport  bool
	SignedCertPEM    []byte
	CACertPEM        []byte
	TokenSigningKeys []*TokenSigningKey
	// StaleTablets names reported tablets rejected for carrying a term lower
	// than the one already recorded; the sender must resend current state.
	StaleTablets []string
	Master       *ServerRegistration
}

// --- Catalog operations ---

type ColumnSchema struct {
	Name     string
	Type     string
	Nullable bool
}

type TableSchema struct {
	Columns    []*ColumnSchema
	KeyColumns int
}

type CreateTableRequest struct {
	Name         string
	Schema       *TableSchema
	ReplicaCount int
	TabletCount  int
}

type CreateTableResponse struct {
	TableID string
}

type IsCreateTableDoneRequest struct {
	TableName string
}

type IsCreateTableDoneResponse struct {
	Done bool
}

type GetTableSchemaRequest struct {
	TableName string
}

type GetTableSchemaResponse struct {
	Schema     *TableSchema
	CreateDone bool
}

type GetTabletLocationsRequest struct {
	TabletID string
}

type TabletReplica struct {
	TSUUID string
	Role   ReplicaRole
}

type GetTabletLocationsResponse struct {
	Replicas []*TabletReplica
}

// --- Service ---

type MasterServer interface {
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	CreateTable(context.Context, *CreateTableRequest) (*CreateTableResponse, error)
	IsCreateTableDone(context.Context, *IsCreateTableDoneRequest) (*IsCreateTableDoneResponse, error)
	GetTableSchema(context.Context, *GetTableSchemaRequest) (*GetTableSchemaResponse, error)
	GetTabletLocations(context.Context, *GetTabletLocationsRequest) (*GetTabletLocationsResponse, error)
}

type UnimplementedMasterServer struct{}

func (UnimplementedMasterServer) Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error) {
	return nil, fmt.Errorf("not implemented")
}
func (UnimplementedMasterServer) CreateTable(context.Context, *CreateTableRequest) (*CreateTableResponse, error) {
	return nil, fmt.Errorf("not implemented")
}
func (UnimplementedMasterServer) IsCreateTableDone(context.Context, *IsCreateTableDoneRequest) (*IsCreateTableDoneResponse, error) {
	return nil, fmt.Errorf("not implemented")
}
func (UnimplementedMasterServer) GetTableSchema(context.Context, *GetTableSchemaRequest) (*GetTableSchemaResponse, error) {
	return nil, fmt.Errorf("not implemented")
}
func (UnimplementedMasterServer) GetTabletLocations(context.Context, *GetTabletLocationsRequest) (*GetTabletLocationsResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

type masterServerWrapper interface {
	MasterServer
}

var masterServiceDesc = grpc.ServiceDesc{
	ServiceName: "stratadb.api.Master",
	HandlerType: (*masterServerWrapper)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Heartbeat", Handler: _Master_Heartbeat_Handler},
		{MethodName: "CreateTable", Handler: _Master_CreateTable_Handler},
		{MethodName: "IsCreateTableDone", Handler: _Master_IsCreateTableDone_Handler},
		{MethodName: "GetTableSchema", Handler: _Master_GetTableSchema_Handler},
		{MethodName: "GetTabletLocations", Handler: _Master_GetTabletLocations_Handler},
	},
}

func RegisterMasterServer(s *grpc.Server, srv MasterServer) {
	s.RegisterService(&masterServiceDesc, srv)
}

// --- Client ---

type MasterClient interface {
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
	CreateTable(ctx context.Context, in *CreateTableRequest, opts ...grpc.CallOption) (*CreateTableResponse, error)
	IsCreateTableDone(ctx context.Context, in *IsCreateTableDoneRequest, opts ...grpc.CallOption) (*IsCreateTableDoneResponse, error)
	GetTableSchema(ctx context.Context, in *GetTableSchemaRequest, opts ...grpc.CallOption) (*GetTableSchemaResponse, error)
	GetTabletLocations(ctx context.Context, in *GetTabletLocationsRequest, opts ...grpc.CallOption) (*GetTabletLocationsResponse, error)
}

type masterClient struct {
	cc grpc.ClientConnInterface
}

func NewMasterClient(cc grpc.ClientConnInterface) MasterClient {
	return &masterClient{cc: cc}
}

func (c *masterClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	if err := c.cc.Invoke(ctx, "/stratadb.api.Master/Heartbeat", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterClient) CreateTable(ctx context.Context, in *CreateTableRequest, opts ...grpc.CallOption) (*CreateTableResponse, error) {
	out := new(CreateTableResponse)
	if err := c.cc.Invoke(ctx, "/stratadb.api.Master/CreateTable", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterClient) IsCreateTableDone(ctx context.Context, in *IsCreateTableDoneRequest, opts ...grpc.CallOption) (*IsCreateTableDoneResponse, error) {
	out := new(IsCreateTableDoneResponse)
	if err := c.cc.Invoke(ctx, "/stratadb.api.Master/IsCreateTableDone", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterClient) GetTableSchema(ctx context.Context, in *GetTableSchemaRequest, opts ...grpc.CallOption) (*GetTableSchemaResponse, error) {
	out := new(GetTableSchemaResponse)
	if err := c.cc.Invoke(ctx, "/stratadb.api.Master/GetTableSchema", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *masterClient) GetTabletLocations(ctx context.Context, in *GetTabletLocationsRequest, opts ...grpc.CallOption) (*GetTabletLocationsResponse, error) {
	out := new(GetTabletLocationsResponse)
	if err := c.cc.Invoke(ctx, "/stratadb.api.Master/GetTabletLocations", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Handlers ---

func _Master_Heartbeat_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MasterServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stratadb.api.Master/Heartbeat"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MasterServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Master_CreateTable_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateTableRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MasterServer).CreateTable(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stratadb.api.Master/CreateTable"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MasterServer).CreateTable(ctx, req.(*CreateTableRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Master_IsCreateTableDone_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(IsCreateTableDoneRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MasterServer).IsCreateTableDone(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stratadb.api.Master/IsCreateTableDone"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MasterServer).IsCreateTableDone(ctx, req.(*IsCreateTableDoneRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Master_GetTableSchema_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetTableSchemaRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MasterServer).GetTableSchema(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stratadb.api.Master/GetTableSchema"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MasterServer).GetTableSchema(ctx, req.(*GetTableSchemaRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Master_GetTabletLocations_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetTabletLocationsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MasterServer).GetTabletLocations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/stratadb.api.Master/GetTabletLocations"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MasterServer).GetTabletLocations(ctx, req.(*GetTabletLocationsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

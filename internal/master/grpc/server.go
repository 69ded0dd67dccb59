// Package mastergrpc adapts the master service to the gRPC API.
package mastergrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"stratadb/internal/catalog"
	"stratadb/internal/directory"
	"stratadb/internal/master"
	"stratadb/internal/schema"
	api "stratadb/pkg/api"
)

type Server struct {
	api.UnimplementedMasterServer
	service *master.HeartbeatService
	catalog *catalog.Catalog
}

func NewServer(service *master.HeartbeatService, cat *catalog.Catalog) *Server {
	return &Server{service: service, catalog: cat}
}

func Register(server *grpc.Server, service *master.HeartbeatService, cat *catalog.Catalog) {
	api.RegisterMasterServer(server, NewServer(service, cat))
}

func (s *Server) Heartbeat(ctx context.Context, req *api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
	resp, err := s.service.ProcessHeartbeat(ctx, req)
	if err != nil {
		return nil, toStatusError(err)
	}
	return resp, nil
}

func (s *Server) CreateTable(ctx context.Context, req *api.CreateTableRequest) (*api.CreateTableResponse, error) {
	sch, err := master.SchemaFromAPI(req.Schema)
	if err != nil {
		return nil, toStatusError(err)
	}
	tableID, err := s.catalog.CreateTable(req.Name, sch, req.ReplicaCount, req.TabletCount)
	if err != nil {
		return nil, toStatusError(err)
	}
	return &api.CreateTableResponse{TableID: tableID}, nil
}

func (s *Server) IsCreateTableDone(ctx context.Context, req *api.IsCreateTableDoneRequest) (*api.IsCreateTableDoneResponse, error) {
	done, err := s.catalog.IsCreateTableDone(req.TableName)
	if err != nil {
		return nil, toStatusError(err)
	}
	return &api.IsCreateTableDoneResponse{Done: done}, nil
}

func (s *Server) GetTableSchema(ctx context.Context, req *api.GetTableSchemaRequest) (*api.GetTableSchemaResponse, error) {
	sch, done, err := s.catalog.GetTableSchema(req.TableName)
	if err != nil {
		return nil, toStatusError(err)
	}
	return &api.GetTableSchemaResponse{
		Schema:     master.SchemaToAPI(sch),
		CreateDone: done,
	}, nil
}

func (s *Server) GetTabletLocations(ctx context.Context, req *api.GetTabletLocationsRequest) (*api.GetTabletLocationsResponse, error) {
	replicas, err := s.catalog.GetTabletLocations(req.TabletID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return &api.GetTabletLocationsResponse{Replicas: master.ReplicasToAPI(replicas)}, nil
}

func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case catalog.IsNotReadyError(err):
		return status.Error(codes.Unavailable, err.Error())
	case catalog.IsTableExistsError(err):
		return status.Error(codes.AlreadyExists, err.Error())
	case catalog.IsNotFoundError(err):
		return status.Error(codes.NotFound, err.Error())
	case catalog.IsStaleTermError(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, schema.ErrInvalidSchema),
		errors.Is(err, master.ErrMissingUUID),
		errors.Is(err, directory.ErrWildcardAddress),
		errors.Is(err, directory.ErrStaleSeqno):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

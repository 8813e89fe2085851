package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/cabinetsync/internal/logging"
	"github.com/dmitrijs2005/cabinetsync/internal/payload"
	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
	"github.com/dmitrijs2005/cabinetsync/internal/server/services"
	"github.com/dmitrijs2005/cabinetsync/internal/syncapi"
	"google.golang.org/grpc"
)

// SyncWorkflows is the part of services.SyncService exposed over gRPC.
type SyncWorkflows interface {
	Share(ctx context.Context, req services.ShareRequest) (*services.ShareResult, error)
	Retrieve(ctx context.Context, id string) (payload.Payload, error)
	List(ctx context.Context) ([]*models.SyncPermission, error)
	Revoke(ctx context.Context, id string) error
}

type GRPCServer struct {
	address   string
	sync      SyncWorkflows
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, sync SyncWorkflows, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		sync:      sync,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	syncapi.RegisterSyncServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}

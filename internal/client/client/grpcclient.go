// Package client wraps the cabinetsync gRPC API for syncctl.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/payload"
	"github.com/dmitrijs2005/cabinetsync/internal/syncapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type syncAPI interface {
	Share(ctx context.Context, in *syncapi.ShareRequest, opts ...grpc.CallOption) (*syncapi.ShareResponse, error)
	Retrieve(ctx context.Context, in *syncapi.RetrieveRequest, opts ...grpc.CallOption) (*syncapi.RetrieveResponse, error)
	List(ctx context.Context, in *syncapi.ListRequest, opts ...grpc.CallOption) (*syncapi.ListResponse, error)
	Revoke(ctx context.Context, in *syncapi.RevokeRequest, opts ...grpc.CallOption) (*syncapi.RevokeResponse, error)
	Ping(ctx context.Context, in *syncapi.PingRequest, opts ...grpc.CallOption) (*syncapi.PingResponse, error)
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      syncAPI
	accessToken string
}

// ShareInput is what the caller supplies for one share.
type ShareInput struct {
	CabinetID      string
	TargetID       string
	PatientLocalID string
	Permission     string
	TTL            time.Duration
	IdempotencyKey string
	Payload        payload.Payload
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" && method != syncapi.MethodPing {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient connects lazily to endpointURL. extra dial options are
// appended after the defaults.
func NewGRPCClient(endpointURL, accessToken string, extra ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, extra...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = syncapi.NewSyncServiceClient(conn)
	return c, nil
}

func (s *GRPCClient) SetAccessToken(token string) {
	s.accessToken = token
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	resp, err := s.client.Ping(ctx, &syncapi.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.Status != "OK" {
		return ErrUnavailable
	}

	return nil

}

func (s *GRPCClient) Share(ctx context.Context, in ShareInput) (*syncapi.ShareResponse, error) {

	raw, err := payload.Marshal(in.Payload)
	if err != nil {
		return nil, err
	}

	req := &syncapi.ShareRequest{
		CabinetID:      in.CabinetID,
		TargetID:       in.TargetID,
		PatientLocalID: in.PatientLocalID,
		Permission:     in.Permission,
		TTLSeconds:     int64(in.TTL / time.Second),
		IdempotencyKey: in.IdempotencyKey,
		Payload:        raw,
	}

	resp, err := s.client.Share(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Retrieve(ctx context.Context, id string) (payload.Payload, error) {

	resp, err := s.client.Retrieve(ctx, &syncapi.RetrieveRequest{ID: id})
	if err != nil {
		return nil, s.mapError(err)
	}

	return payload.Unmarshal(resp.Payload)
}

func (s *GRPCClient) List(ctx context.Context) ([]syncapi.PackageInfo, error) {

	resp, err := s.client.List(ctx, &syncapi.ListRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Packages, nil
}

func (s *GRPCClient) Revoke(ctx context.Context, id string) error {

	if _, err := s.client.Revoke(ctx, &syncapi.RevokeRequest{ID: id}); err != nil {
		return s.mapError(err)
	}
	return nil
}

// mapError turns a gRPC status into one of the package sentinels, keeping
// the server's user-facing message.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var sentinel error
	switch st.Code() {
	case codes.Unauthenticated:
		sentinel = ErrUnauthenticated
	case codes.PermissionDenied:
		sentinel = ErrUnauthorized
	case codes.FailedPrecondition:
		sentinel = ErrExpired
	case codes.InvalidArgument:
		sentinel = ErrInvalid
	case codes.Unavailable, codes.DeadlineExceeded:
		sentinel = ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}

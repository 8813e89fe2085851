package grpc

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/payload"
	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
	"github.com/dmitrijs2005/cabinetsync/internal/server/services"
	"github.com/dmitrijs2005/cabinetsync/internal/syncapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps a workflow error to a gRPC status carrying the
// user-facing message only.
func toStatus(err error) error {
	msg := common.UserMessage(err)
	switch {
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.PermissionDenied, msg)
	case errors.Is(err, common.ErrExpired):
		return status.Error(codes.FailedPrecondition, msg)
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, msg)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, msg)
	case errors.Is(err, common.ErrTransport):
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

// maxTTLSeconds is the largest TTL that still fits in a time.Duration.
const maxTTLSeconds = int64(math.MaxInt64 / int64(time.Second))

func (s *GRPCServer) Share(ctx context.Context, req *syncapi.ShareRequest) (*syncapi.ShareResponse, error) {

	p, err := payload.Unmarshal(req.Payload)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, common.MessageValidation)
	}
	if req.TTLSeconds < 0 || req.TTLSeconds > maxTTLSeconds {
		return nil, status.Error(codes.InvalidArgument, common.MessageValidation)
	}

	res, err := s.sync.Share(ctx, services.ShareRequest{
		Payload:        p,
		TargetID:       req.TargetID,
		CabinetID:      req.CabinetID,
		PatientLocalID: req.PatientLocalID,
		Permission:     models.Permission(req.Permission),
		TTL:            time.Duration(req.TTLSeconds) * time.Second,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.logger.Error(ctx, "share failed", "cabinet_id", req.CabinetID, "target_id", req.TargetID, "error", err.Error())
		return nil, toStatus(err)
	}

	return &syncapi.ShareResponse{ID: res.ID, ExpiresAt: res.ExpiresAt, Reused: res.Reused}, nil
}

func (s *GRPCServer) Retrieve(ctx context.Context, req *syncapi.RetrieveRequest) (*syncapi.RetrieveResponse, error) {

	p, err := s.sync.Retrieve(ctx, req.ID)
	if err != nil {
		s.logger.Error(ctx, "retrieve failed", "sync_id", req.ID, "error", err.Error())
		return nil, toStatus(err)
	}

	raw, err := payload.Marshal(p)
	if err != nil {
		return nil, status.Error(codes.Internal, common.MessageGeneric)
	}

	return &syncapi.RetrieveResponse{SyncType: string(p.SyncType()), Payload: raw}, nil
}

func (s *GRPCServer) List(ctx context.Context, _ *syncapi.ListRequest) (*syncapi.ListResponse, error) {

	rows, err := s.sync.List(ctx)
	if err != nil {
		s.logger.Error(ctx, "list failed", "error", err.Error())
		return nil, toStatus(err)
	}

	out := &syncapi.ListResponse{Packages: make([]syncapi.PackageInfo, 0, len(rows))}
	for _, r := range rows {
		out.Packages = append(out.Packages, syncapi.PackageInfo{
			ID:                 r.ID,
			CabinetID:          r.CabinetID,
			OwnerID:            r.OwnerID,
			PatientFingerprint: r.PatientLocalHash,
			SyncType:           string(r.SyncType),
			Permission:         string(r.Permission),
			ExpiresAt:          r.ExpiresAt,
			LastSyncedAt:       r.LastSyncedAt,
			CreatedAt:          r.CreatedAt,
		})
	}
	return out, nil
}

func (s *GRPCServer) Revoke(ctx context.Context, req *syncapi.RevokeRequest) (*syncapi.RevokeResponse, error) {

	if err := s.sync.Revoke(ctx, req.ID); err != nil {
		s.logger.Error(ctx, "revoke failed", "sync_id", req.ID, "error", err.Error())
		return nil, toStatus(err)
	}

	return &syncapi.RevokeResponse{}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *syncapi.PingRequest) (*syncapi.PingResponse, error) {

	return &syncapi.PingResponse{Status: "OK"}, nil

}

package grpcserver

import (
	"context"
	"errors"

	"github.com/and161185/authgate/internal/authz"
	"github.com/and161185/authgate/internal/errs"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// bearerTokenFromMD extracts the token from "authorization: Bearer <JWT>".
func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		if t, ok := authz.BearerToken(v); ok {
			return t, nil
		}
	}
	return "", errors.New("no bearer token")
}

// toStatus maps service sentinels to gRPC codes. Messages are fixed per
// class so nothing internal leaks to the caller.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, "invalid argument")
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, errs.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	default:
		return status.Error(codes.Unavailable, "service unavailable")
	}
}

// Package grpcserver hosts the gRPC listener: interceptors that put every
// call through the authorization pipeline, and the health service.
package grpcserver

import (
	"github.com/and161185/authgate/internal/authz"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Policies lists the per-method policies of the services New registers.
// Methods not listed, unary or streaming, require an authenticated caller;
// that includes reflection when it is registered.
func Policies() map[string]authz.Policy {
	return map[string]authz.Policy{
		healthpb.Health_Check_FullMethodName: authz.Public(),
		healthpb.Health_Watch_FullMethodName: authz.Public(),
	}
}

// New builds a gRPC server with recover, logging and auth interceptors and
// registers the health service. The returned health server lets the caller
// flip serving status during shutdown.
func New(log *zap.Logger, p *authz.Pipeline, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	policies := Policies()
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
			AuthUnary(p, policies, authz.Authenticated()),
		),
		grpc.ChainStreamInterceptor(
			RecoverStream(log),
			AuthStream(p, policies, authz.Authenticated()),
		),
	)
	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

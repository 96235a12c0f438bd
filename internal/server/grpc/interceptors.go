package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/and161185/authgate/internal/authz"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, never payloads or tokens
		log.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// RecoverStream is RecoverUnary for streaming calls.
func RecoverStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(srv, ss)
	}
}

// AuthUnary runs the authorization pipeline before every call. The policy
// comes from policies keyed by FullMethod, falling back to def. On success
// the identity is available to handlers through authz.IdentityFromContext.
func AuthUnary(p *authz.Pipeline, policies map[string]authz.Policy, def authz.Policy) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		pol, ok := policies[info.FullMethod]
		if !ok {
			pol = def
		}
		ctx, err := authorize(ctx, p, pol)
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// AuthStream applies the same policy table to streaming calls.
func AuthStream(p *authz.Pipeline, policies map[string]authz.Policy, def authz.Policy) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		pol, ok := policies[info.FullMethod]
		if !ok {
			pol = def
		}
		ctx, err := authorize(ss.Context(), p, pol)
		if err != nil {
			return err
		}
		return next(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

func authorize(ctx context.Context, p *authz.Pipeline, pol authz.Policy) (context.Context, error) {
	tok, _ := bearerTokenFromMD(ctx)
	id, err := p.Authorize(tok, pol)
	if err != nil {
		return ctx, toStatus(err)
	}
	if !id.IsZero() {
		ctx = authz.WithIdentity(ctx, id)
	}
	return ctx, nil
}

// identityStream carries the authorized context into stream handlers.
type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

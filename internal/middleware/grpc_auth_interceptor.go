package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// SecretHeader carries the shared trigger secret over HTTP and gRPC metadata
const SecretHeader = "x-cron-secret"

// ValidSecret compares a presented secret against the configured one in
// constant time. An empty configured secret never matches.
func ValidSecret(presented, secret string) bool {
	if secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}

// GRPCAuthInterceptor guards trigger RPCs with the shared cron secret
type GRPCAuthInterceptor struct {
	logger *zap.Logger
	secret string
	// public methods skip authentication, e.g. the health service
	public map[string]bool
}

// NewGRPCAuthInterceptor creates a new gRPC auth interceptor
func NewGRPCAuthInterceptor(secret string, logger *zap.Logger, publicMethods ...string) *GRPCAuthInterceptor {
	public := make(map[string]bool, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = true
	}
	return &GRPCAuthInterceptor{
		logger: logger,
		secret: secret,
		public: public,
	}
}

// UnaryServerInterceptor returns a gRPC unary server interceptor for auth
func (i *GRPCAuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if i.public[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		if !i.authorized(md) {
			i.logger.Warn("unauthorized trigger call",
				zap.String("method", info.FullMethod))
			return nil, status.Error(codes.Unauthenticated, "invalid or missing secret")
		}

		return handler(ctx, req)
	}
}

func (i *GRPCAuthInterceptor) authorized(md metadata.MD) bool {
	for _, v := range md.Get(SecretHeader) {
		if ValidSecret(v, i.secret) {
			return true
		}
	}
	for _, v := range md.Get("authorization") {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok && ValidSecret(token, i.secret) {
			return true
		}
	}
	return false
}

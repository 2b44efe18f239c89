package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	oa "github.com/panyam/lmsauth"
)

// AuthPolicy decides, per full method name ("/package.Service/Method"),
// whether a caller must present a valid access token and which role it
// needs. By default every method requires a token.
type AuthPolicy struct {
	verifier TokenVerifier
	key      string
	optional bool
	public   map[string]bool
	minRole  map[string]oa.Role
}

type PolicyOption func(*AuthPolicy)

// WithPublicMethods lets the methods through without a token.
func WithPublicMethods(methods ...string) PolicyOption {
	return func(p *AuthPolicy) {
		for _, m := range methods {
			p.public[m] = true
		}
	}
}

// WithOptionalAuth lets callers without a valid token through anonymously.
// Methods with a minimum role still require one.
func WithOptionalAuth() PolicyOption {
	return func(p *AuthPolicy) { p.optional = true }
}

// WithMinRole requires a token carrying at least role for method.
func WithMinRole(method string, role oa.Role) PolicyOption {
	return func(p *AuthPolicy) { p.minRole[method] = role }
}

// WithMetadataKey reads the bearer token from key instead of AuthorizationKey.
func WithMetadataKey(key string) PolicyOption {
	return func(p *AuthPolicy) { p.key = key }
}

// NewAuthPolicy builds a policy verifying tokens with verifier. A nil
// verifier rejects every token.
func NewAuthPolicy(verifier TokenVerifier, opts ...PolicyOption) *AuthPolicy {
	p := &AuthPolicy{
		verifier: verifier,
		key:      AuthorizationKey,
		public:   map[string]bool{},
		minRole:  map[string]oa.Role{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *AuthPolicy) mustAuthenticate(method string) bool {
	if _, ok := p.minRole[method]; ok {
		return true
	}
	return !p.optional && !p.public[method]
}

func (p *AuthPolicy) verify(token string) (*oa.Claims, error) {
	if p.verifier == nil {
		return nil, oa.ErrInvalidToken
	}
	return p.verifier.VerifyAccess(token)
}

// admit returns ctx with the caller's identity attached, ctx unchanged for
// an admitted anonymous caller, or a status error.
func (p *AuthPolicy) admit(ctx context.Context, method string) (context.Context, error) {
	must := p.mustAuthenticate(method)

	token := BearerFromContext(ctx, p.key)
	if token == "" {
		if must {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	claims, err := p.verify(token)
	if err != nil {
		if must {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		return ctx, nil
	}
	if role, ok := p.minRole[method]; ok && !claims.Role.AtLeast(role) {
		return nil, status.Error(codes.PermissionDenied, "insufficient permissions")
	}
	return oa.ContextWithIdentity(ctx, oa.Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
		Method: oa.AuthMethodBearer,
	}), nil
}

func orDefault(p *AuthPolicy) *AuthPolicy {
	if p == nil {
		return NewAuthPolicy(nil)
	}
	return p
}

// UnaryAuthInterceptor enforces p on unary calls. A nil policy rejects
// every call.
func UnaryAuthInterceptor(p *AuthPolicy) grpc.UnaryServerInterceptor {
	p = orDefault(p)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := p.admit(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

// StreamAuthInterceptor enforces p when a stream opens.
func StreamAuthInterceptor(p *AuthPolicy) grpc.StreamServerInterceptor {
	p = orDefault(p)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := p.admit(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

// Package grpc carries lmsauth access tokens across gRPC calls. Clients put
// the bearer token in outgoing metadata; server interceptors verify it and
// expose the caller's lmsauth.Identity on the handler context.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	oa "github.com/panyam/lmsauth"
)

// AuthorizationKey is the metadata key holding "Bearer <token>".
const AuthorizationKey = "authorization"

const bearerScheme = "bearer"

// TokenVerifier checks an access token. *lmsauth.TokenIssuer satisfies it.
type TokenVerifier interface {
	VerifyAccess(token string) (*oa.Claims, error)
}

// BearerFromContext returns the bearer token in incoming metadata under key,
// or "" if there is none. An empty key means AuthorizationKey.
func BearerFromContext(ctx context.Context, key string) string {
	if key == "" {
		key = AuthorizationKey
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(key) {
		scheme, token, found := strings.Cut(v, " ")
		if found && strings.EqualFold(scheme, bearerScheme) {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	return ""
}

// TokenToOutgoingContext attaches token to calls made with ctx.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return TokenToOutgoingContextWithKey(ctx, token, AuthorizationKey)
}

func TokenToOutgoingContextWithKey(ctx context.Context, token, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, "Bearer "+token)
}

// IdentityFromContext returns the identity the auth interceptor attached.
func IdentityFromContext(ctx context.Context) (oa.Identity, bool) {
	return oa.IdentityFromContext(ctx)
}

// UserIDFromContext returns the authenticated user's id, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := oa.IdentityFromContext(ctx)
	return id.UserID
}

func IsAuthenticated(ctx context.Context) bool {
	_, ok := oa.IdentityFromContext(ctx)
	return ok
}

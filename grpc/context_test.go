package grpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	oa "github.com/panyam/lmsauth"
)

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestBearerFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		key  string
		want string
	}{
		{"no metadata", context.Background(), "", ""},
		{"bearer", incoming("authorization", "Bearer abc.def.ghi"), "", "abc.def.ghi"},
		{"lowercase scheme", incoming("authorization", "bearer abc"), "", "abc"},
		{"basic auth", incoming("authorization", "Basic dXNlcjpwYXNz"), "", ""},
		{"scheme only", incoming("authorization", "Bearer "), "", ""},
		{"second value", incoming("authorization", "Basic x", "authorization", "Bearer second"), "", "second"},
		{"custom key unset", incoming("x-auth", "Bearer custom"), "", ""},
		{"custom key", incoming("x-auth", "Bearer custom"), "x-auth", "custom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BearerFromContext(tt.ctx, tt.key))
		})
	}
}

func TestOutgoingTokenIsReadable(t *testing.T) {
	out := TokenToOutgoingContext(context.Background(), "tok")
	md, ok := metadata.FromOutgoingContext(out)
	require.True(t, ok)
	assert.Equal(t, []string{"Bearer tok"}, md.Get(AuthorizationKey))

	in := metadata.NewIncomingContext(context.Background(), md)
	assert.Equal(t, "tok", BearerFromContext(in, ""))

	out = TokenToOutgoingContextWithKey(context.Background(), "tok", "x-auth")
	md, _ = metadata.FromOutgoingContext(out)
	assert.Equal(t, "tok", BearerFromContext(metadata.NewIncomingContext(context.Background(), md), "x-auth"))
}

func TestIdentityHelpers(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsAuthenticated(ctx))
	assert.Empty(t, UserIDFromContext(ctx))

	ctx = oa.ContextWithIdentity(ctx, oa.Identity{UserID: "u-1", Role: oa.RoleStudent})
	assert.True(t, IsAuthenticated(ctx))
	assert.Equal(t, "u-1", UserIDFromContext(ctx))
	id, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, oa.RoleStudent, id.Role)
}

package testutil

import (
	"context"

	"github.com/quotaflow/quotaflow/internal/types"
)

// SetupContext returns a context carrying an operator principal scoped to
// the default business
func SetupContext() context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, types.CtxBusinessName, types.DefaultBusinessName)
	ctx = context.WithValue(ctx, types.CtxUserID, types.DefaultUserID)
	ctx = context.WithValue(ctx, types.CtxPrincipalType, types.PrincipalTypeOperator)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}

// SetupUserContext returns a context carrying an end-user principal
func SetupUserContext(userID string) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, types.CtxBusinessName, types.DefaultBusinessName)
	ctx = context.WithValue(ctx, types.CtxUserID, userID)
	ctx = context.WithValue(ctx, types.CtxPrincipalType, types.PrincipalTypeUser)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}

package types

import (
	"context"
	"fmt"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxBusinessName  ContextKey = "ctx_business_name"
	CtxUserID        ContextKey = "ctx_user_id"
	CtxPrincipalType ContextKey = "ctx_principal_type"
	CtxJWT           ContextKey = "ctx_jwt"

	// Default values
	DefaultBusinessName = "default"
	DefaultUserID       = "00000000-0000-0000-0000-000000000000"
)

func GetBusinessName(ctx context.Context) string {
	if businessName, ok := ctx.Value(CtxBusinessName).(string); ok {
		return businessName
	}
	return ""
}

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(CtxUserID).(string); ok {
		return userID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

func GetJWT(ctx context.Context) string {
	if jwt, ok := ctx.Value(CtxJWT).(string); ok {
		return jwt
	}
	return ""
}

// GetPrincipalType returns the principal type from the context.
// Defaults to PrincipalTypeUser so an unresolved principal never gains
// operator privileges.
func GetPrincipalType(ctx context.Context) PrincipalType {
	if pt, ok := ctx.Value(CtxPrincipalType).(PrincipalType); ok {
		return pt
	}
	return PrincipalTypeUser
}

// IsOperator reports whether the calling principal is a tenant operator
func IsOperator(ctx context.Context) bool {
	return GetPrincipalType(ctx) == PrincipalTypeOperator
}

// SetBusinessName sets the business name in the context
func SetBusinessName(ctx context.Context, businessName string) context.Context {
	return context.WithValue(ctx, CtxBusinessName, businessName)
}

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

// SetPrincipalType sets the principal type in the context
func SetPrincipalType(ctx context.Context, pt PrincipalType) context.Context {
	return context.WithValue(ctx, CtxPrincipalType, pt)
}

// ValidateBusinessContext validates that the required business context fields are present
func ValidateBusinessContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context is nil")
	}

	if GetBusinessName(ctx) == "" {
		return fmt.Errorf("no business context found in context")
	}

	return nil
}

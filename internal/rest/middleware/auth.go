package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quotaflow/quotaflow/internal/auth"
	"github.com/quotaflow/quotaflow/internal/config"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/types"
)

// GuestAuthenticateMiddleware allows requests without credentials in local
// mode. It resolves a default operator principal scoped to the default
// business, with the acting user taken from the X-User-ID header.
func GuestAuthenticateMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	ctx = context.WithValue(ctx, types.CtxBusinessName, types.DefaultBusinessName)
	ctx = context.WithValue(ctx, types.CtxPrincipalType, types.PrincipalTypeOperator)

	userID := c.GetHeader(types.HeaderUserID)
	if userID == "" {
		userID = types.DefaultUserID
	}
	ctx = context.WithValue(ctx, types.CtxUserID, userID)

	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// AuthenticateMiddleware resolves the calling principal from either:
// 1. An API key in the configured header (operator principal; acting user
//    from X-User-ID)
// 2. A Bearer JWT carrying business_name, user_id and principal_type
func AuthenticateMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKeyHeader := c.GetHeader(cfg.Auth.APIKey.Header)
		if apiKeyHeader != "" {
			details, valid := auth.ValidateAPIKey(cfg, apiKeyHeader)
			if !valid || details.BusinessName == "" {
				logger.Debugw("invalid api key")
				abortUnauthorized(c, "Invalid API key")
				return
			}

			userID := c.GetHeader(types.HeaderUserID)
			if userID == "" {
				userID = details.UserID
			}

			ctx := c.Request.Context()
			ctx = context.WithValue(ctx, types.CtxBusinessName, details.BusinessName)
			ctx = context.WithValue(ctx, types.CtxUserID, userID)
			ctx = context.WithValue(ctx, types.CtxPrincipalType, types.PrincipalTypeOperator)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		authHeader := c.GetHeader(types.HeaderAuthorization)
		if authHeader == "" {
			abortUnauthorized(c, "Missing credentials")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.ValidateToken(cfg, tokenString)
		if err != nil {
			logger.Debugw("failed to validate token", "error", err)
			abortUnauthorized(c, "Invalid token")
			return
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, types.CtxBusinessName, claims.BusinessName)
		ctx = context.WithValue(ctx, types.CtxUserID, claims.UserID)
		ctx = context.WithValue(ctx, types.CtxPrincipalType, claims.PrincipalType)
		ctx = context.WithValue(ctx, types.CtxJWT, tokenString)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ierr.ErrorResponse{
		Error:      ierr.ErrCodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	})
}

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/quotaflow/quotaflow/internal/config"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

// Claims is the resolved principal carried by a bearer token
type Claims struct {
	BusinessName  string
	UserID        string
	PrincipalType types.PrincipalType
}

// GenerateToken signs a JWT carrying the principal claims. Used by hosts
// embedding the service to mint tokens for their users.
func GenerateToken(cfg *config.Configuration, claims Claims, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"business_name":  claims.BusinessName,
		"user_id":        claims.UserID,
		"principal_type": string(claims.PrincipalType),
		"exp":            time.Now().Add(ttl).Unix(),
		"iat":            time.Now().Unix(),
	})

	signed, err := token.SignedString([]byte(cfg.Auth.Secret))
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to sign token").
			Mark(ierr.ErrInternal)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token, returning the principal
func ValidateToken(cfg *config.Configuration, tokenString string) (*Claims, error) {
	parsedToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ierr.NewError("unexpected signing method").
				WithHintf("Unexpected signing method: %v", token.Header["alg"]).
				Mark(ierr.ErrUnauthorized)
		}
		return []byte(cfg.Auth.Secret), nil
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Token parse error").
			Mark(ierr.ErrUnauthorized)
	}

	mapClaims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok || !parsedToken.Valid {
		return nil, ierr.NewError("invalid token claims").
			WithHint("Invalid token claims").
			Mark(ierr.ErrUnauthorized)
	}

	businessName, businessOk := mapClaims["business_name"].(string)
	userID, userOk := mapClaims["user_id"].(string)
	if !businessOk || !userOk || businessName == "" || userID == "" {
		return nil, ierr.NewError("token missing principal claims").
			WithHint("Token must carry business_name and user_id").
			Mark(ierr.ErrUnauthorized)
	}

	principalType := types.PrincipalTypeUser
	if pt, ok := mapClaims["principal_type"].(string); ok && pt == string(types.PrincipalTypeOperator) {
		principalType = types.PrincipalTypeOperator
	}

	return &Claims{
		BusinessName:  businessName,
		UserID:        userID,
		PrincipalType: principalType,
	}, nil
}

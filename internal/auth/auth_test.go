package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaflow/quotaflow/internal/config"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

func testConfig() *config.Configuration {
	return &config.Configuration{
		Auth: config.AuthConfig{
			Secret: "test-secret-for-unit-tests-only",
		},
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, Claims{
		BusinessName:  "acme",
		UserID:        "user-1",
		PrincipalType: types.PrincipalTypeOperator,
	}, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.BusinessName)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, types.PrincipalTypeOperator, claims.PrincipalType)
}

func TestTokenPrincipalDefaultsToUser(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, Claims{
		BusinessName: "acme",
		UserID:       "user-1",
	}, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, types.PrincipalTypeUser, claims.PrincipalType)
}

func TestTokenRejectedWithWrongSecret(t *testing.T) {
	token, err := GenerateToken(testConfig(), Claims{
		BusinessName: "acme",
		UserID:       "user-1",
	}, time.Hour)
	require.NoError(t, err)

	other := &config.Configuration{Auth: config.AuthConfig{Secret: "different"}}
	_, err = ValidateToken(other, token)
	require.Error(t, err)
	assert.True(t, ierr.IsUnauthorized(err))
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, Claims{
		BusinessName: "acme",
		UserID:       "user-1",
	}, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(cfg, token)
	require.Error(t, err)
	assert.True(t, ierr.IsUnauthorized(err))
}

func TestTokenMissingClaimsRejected(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, Claims{BusinessName: "acme"}, time.Hour)
	require.NoError(t, err)

	_, err = ValidateToken(cfg, token)
	require.Error(t, err)
	assert.True(t, ierr.IsUnauthorized(err))
}

func TestValidateAPIKey(t *testing.T) {
	raw := GenerateAPIKey()
	cfg := &config.Configuration{
		Auth: config.AuthConfig{
			APIKey: config.APIKeyConfig{
				Keys: map[string]config.APIKeyDetails{
					HashAPIKey(raw): {
						BusinessName: "acme",
						UserID:       "svc-account",
					},
				},
			},
		},
	}

	details, ok := ValidateAPIKey(cfg, raw)
	require.True(t, ok)
	assert.Equal(t, "acme", details.BusinessName)
	assert.Equal(t, "svc-account", details.UserID)

	_, ok = ValidateAPIKey(cfg, "unknown-key")
	assert.False(t, ok)
}

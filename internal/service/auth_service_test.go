package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/advanced-filters-api/internal/models"
	appErrors "github.com/noah-isme/advanced-filters-api/pkg/errors"
)

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "idp", Audience: []string{"admin"}})

	token, expiresAt, err := svc.IssueToken(models.User{ID: "u1", Role: models.RoleStaff, Email: "u1@example.com"}, []string{"g1"})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
	assert.Equal(t, []string{"g1"}, claims.Principal().GroupIDs)
}

func TestValidateTokenRejectsForeignTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "idp"})

	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other", Issuer: "idp"})
	token, _, err := other.IssueToken(models.User{ID: "u1", Role: models.RoleStaff}, nil)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	wrongIssuer := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"})
	token, _, err = wrongIssuer.IssueToken(models.User{ID: "u1", Role: models.RoleStaff}, nil)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.Error(t, err)
}

// internal/auth/jwt_test.go
package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediscan-back/internal/models"
)

func testUser() *models.User {
	return &models.User{
		ID:       42,
		Username: "drhouse",
		Role:     models.RoleDoctor,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(testUser(), "test-secret", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseToken(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "drhouse", claims.Subject)
	assert.Equal(t, models.RoleDoctor, claims.Role)
	assert.Equal(t, "access", claims.TokenType)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(testUser(), "test-secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := GenerateToken(testUser(), "test-secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "test-secret")
	assert.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken("not-a-token", "test-secret")
	assert.Error(t, err)
}

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/intersection-twin/internal/models"
)

func newTestService(t *testing.T) (*Service, models.Operator) {
	t.Helper()
	hash, err := NewService("seed", 0).HashPassword("green-wave-42")
	require.NoError(t, err)
	op := models.Operator{Username: "operator", PasswordHash: hash, Role: models.RoleOperator}
	return NewService("test-secret", time.Hour, op), op
}

func TestNewService(t *testing.T) {
	service := NewService("secret", 0, models.Operator{Username: "nohash"})
	assert.NotNil(t, service)
	assert.Equal(t, []byte("secret"), service.jwtSecret)
	assert.Equal(t, 24*time.Hour, service.tokenExp)
	assert.Empty(t, service.operators)
}

func TestService_HashPassword(t *testing.T) {
	service, _ := newTestService(t)

	password := "testpassword123"
	hash, err := service.HashPassword(password)

	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	// Test correct password
	assert.True(t, service.CheckPassword(password, hash))

	// Test incorrect password
	assert.False(t, service.CheckPassword("wrongpassword", hash))
}

func TestService_Authenticate(t *testing.T) {
	service, op := newTestService(t)

	got, err := service.Authenticate("operator", "green-wave-42")
	assert.NoError(t, err)
	assert.Equal(t, op, got)

	_, err = service.Authenticate("operator", "red-light")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.Authenticate("nobody", "green-wave-42")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_GenerateAndValidateToken(t *testing.T) {
	service, op := newTestService(t)

	token, err := service.GenerateToken(op)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, models.RoleOperator, claims.Role)

	now := time.Now().Unix()
	assert.Greater(t, claims.Exp, now)
	assert.LessOrEqual(t, claims.Exp, now+int64(service.tokenExp.Seconds())+1)

	// Bearer prefix is accepted
	claims, err = service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)
	assert.NotNil(t, claims)
}

func TestService_ValidateTokenRejects(t *testing.T) {
	service, op := newTestService(t)

	_, err := service.ValidateToken("invalid.token.here")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewService("other-secret", time.Hour)
	foreign, _ := other.GenerateToken(op)
	_, err = service.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "operator",
		"role":     "janitor",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := badRole.SignedString([]byte("test-secret"))
	_, err = service.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_ValidateTokenExpired(t *testing.T) {
	service, _ := newTestService(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": "operator",
		"role":     "operator",
		"exp":      time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = service.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestService_ExtractTokenFromHeader(t *testing.T) {
	service, _ := newTestService(t)

	token, err := service.ExtractTokenFromHeader("Bearer abc.def.ghi")
	assert.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	for _, header := range []string{"", "abc.def.ghi", "Basic abc", "Bearer ", "Bearer a b"} {
		_, err := service.ExtractTokenFromHeader(header)
		assert.ErrorIs(t, err, ErrInvalidToken, header)
	}
}

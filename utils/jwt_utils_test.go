package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	token, err := GenerateServiceToken(secret, "web-bff", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateServiceToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "web-bff", claims.Service)
	assert.Equal(t, "web-bff", claims.Subject)
}

func TestServiceTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateServiceToken([]byte("a"), "web-bff", time.Minute)
	require.NoError(t, err)

	_, err = ValidateServiceToken([]byte("b"), token)
	assert.Error(t, err)
}

func TestServiceTokenRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateServiceToken(secret, "web-bff", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateServiceToken(secret, token)
	assert.Error(t, err)
}

func TestGenerateServiceTokenRequiresSecret(t *testing.T) {
	_, err := GenerateServiceToken(nil, "web-bff", time.Minute)
	assert.Error(t, err)
}

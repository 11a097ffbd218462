package jwttoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "starline/pkg/domain-errors"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("test-signing-key", "starline", "starline-api")

	actorID := uuid.New()
	tenantID := uuid.New()
	sessionID := uuid.New()

	token, err := svc.GenerateAccessToken(actorID, tenantID, sessionID, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actorID.String(), claims.ActorID)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, sessionID.String(), claims.SessionID)
	assert.Equal(t, "starline", claims.Issuer)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewJWTService("test-signing-key", "starline", "starline-api")

	token, err := svc.GenerateAccessToken(uuid.New(), uuid.New(), uuid.New(), -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateTokenWrongKey(t *testing.T) {
	issuer := NewJWTService("key-one", "starline", "starline-api")
	verifier := NewJWTService("key-two", "starline", "starline-api")

	token, err := issuer.GenerateAccessToken(uuid.New(), uuid.New(), uuid.New(), time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := NewJWTService("test-signing-key", "starline", "starline-api")

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

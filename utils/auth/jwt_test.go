package auth

import (
	"testing"
	"time"

	"github.com/northbeam/portal-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var form = model.FormData{
	Name:      "Jane Doe",
	Email:     "jane@x.com",
	Type:      model.InquiryTypeCandidate,
	SessionID: "s1",
}

func TestWidgetTokenRoundTrip(t *testing.T) {
	m := NewJWTManager(JWTConfig{Secret: "secret", Issuer: "portal-api"})

	token, expiresAt, err := m.GenerateWidgetToken(form)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), expiresAt, time.Minute)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.SessionID)
	assert.Equal(t, "jane@x.com", claims.Email)
	assert.Equal(t, model.InquiryTypeCandidate, claims.InquiryType)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, _, err := NewJWTManager(JWTConfig{Secret: "a", Issuer: "portal-api"}).GenerateWidgetToken(form)
	require.NoError(t, err)

	_, err = NewJWTManager(JWTConfig{Secret: "b", Issuer: "portal-api"}).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	m := NewJWTManager(JWTConfig{Secret: "secret", Issuer: "portal-api", Expiry: -time.Minute})
	token, _, err := m.GenerateWidgetToken(form)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/northbeam/portal-api/model"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// WidgetClaims binds a token to one intake session
type WidgetClaims struct {
	SessionID   string            `json:"session_id"`
	Email       string            `json:"email"`
	InquiryType model.InquiryType `json:"inquiry_type"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies widget session tokens
type JWTManager struct {
	config JWTConfig
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(config JWTConfig) *JWTManager {
	if config.Expiry == 0 {
		config.Expiry = 2 * time.Hour
	}
	return &JWTManager{
		config: config,
	}
}

// GenerateWidgetToken signs a token for the participant's session
func (j *JWTManager) GenerateWidgetToken(form model.FormData) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.config.Expiry)

	claims := WidgetClaims{
		SessionID:   form.SessionID,
		Email:       form.Email,
		InquiryType: form.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
			Subject:   form.SessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(j.config.Secret))
	return signedToken, expiresAt, err
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTManager) ValidateToken(tokenString string) (*WidgetClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &WidgetClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(j.config.Secret), nil
	}, jwt.WithIssuer(j.config.Issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*WidgetClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

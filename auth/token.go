package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "mentorlink/errors"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator signs and validates session tokens. The secret is injected
// so it can come from the environment or a secret manager.
type Authenticator struct {
	secretKey []byte
	issuer    string
	validity  time.Duration
}

func NewAuthenticator(secretKey, issuer string, validity time.Duration) *Authenticator {
	return &Authenticator{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		validity:  validity,
	}
}

// GenerateToken creates a signed JWT for a specific user.
func (a *Authenticator) GenerateToken(userID, displayName, role string) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    a.issuer,
		},
	}

	// HS256 (HMAC with SHA256), signed with the server's secret key.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secretKey)
}

// ValidateToken parses and validates the signature and expiration of a JWT
// string. No channel may subscribe to events before this succeeds.
func (a *Authenticator) ValidateToken(tokenString string) (*CustomClaims, error) {
	if tokenString == "" {
		return nil, apperrors.ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrInvalidToken
		}
		return a.secretKey, nil
	})
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, apperrors.ErrInvalidToken
}

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims is the data carried inside a session token. The username is
// the verified identity every chat operation relies on.
type CustomClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a verified username. The signing
// key comes from configuration, never from source.
func GenerateToken(username string, duration time.Duration, key []byte) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-broker",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ValidateToken parses the token and verifies signature and expiration.
func ValidateToken(tokenString string, key []byte) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

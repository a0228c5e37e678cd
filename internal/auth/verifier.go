package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt"
)

// ErrInvalidCredential is returned for any credential that does not
// resolve to a user: bad signature, expired token, missing claims.
var ErrInvalidCredential = errors.New("invalid credential")

const userIDClaim = "user-id"

// Verifier resolves a transport credential to a user identity.
type Verifier interface {
	Verify(credential string) (string, error)
}

// JWTVerifier validates HMAC-signed JWTs carrying a user-id claim.
type JWTVerifier struct {
	signingKey []byte
}

func NewJWTVerifier(signingKey []byte) *JWTVerifier {
	return &JWTVerifier{signingKey: signingKey}
}

func (v *JWTVerifier) Verify(credential string) (string, error) {
	token, err := jwt.Parse(credential, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredential
	}

	userID, ok := claims[userIDClaim].(string)
	if !ok || userID == "" {
		return "", ErrInvalidCredential
	}

	return userID, nil
}

package admission

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token fields the core cares about. Token issuance lives in
// the hosting layer; only verification happens here.
type Claims struct {
	UserID string
	Roles  []string
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// TokenVerifier validates bearer tokens presented at connect time.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// HMACVerifier verifies HS256-signed tokens against a shared secret.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the given shared secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the subject and roles.
func (v *HMACVerifier) Verify(tokenString string) (Claims, error) {
	claims := &tokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("token is not valid")
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("token has no subject")
	}

	return Claims{UserID: claims.Subject, Roles: claims.Roles}, nil
}

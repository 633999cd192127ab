// Package jwt issues and verifies the HS256 bearer tokens accepted by the deployment API.
package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "catalyst"
	leeway = 30 * time.Second
)

var (
	// ErrNoKey is returned when the signer was built without a secret.
	ErrNoKey = errors.New("jwt: signing key not configured")
	// ErrMissingUser is returned for tokens without a user_id claim.
	ErrMissingUser = errors.New("jwt: token carries no user")
)

// Claims is the token payload.
type Claims struct {
	UserID string `json:"user_id"`
	jwtlib.RegisteredClaims
}

// Signer holds the shared HS256 secret.
type Signer struct {
	key []byte
	now func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(strings.TrimSpace(secret)), now: time.Now}
}

// Issue returns a token for userID that expires after ttl.
func (s *Signer) Issue(userID string, ttl time.Duration) (string, error) {
	if len(s.key) == 0 {
		return "", ErrNoKey
	}
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingUser
	}
	issued := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(issued),
			ExpiresAt: jwtlib.NewNumericDate(issued.Add(ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks signature, issuer and expiry of token.
func (s *Signer) Verify(token string) (*Claims, error) {
	if len(s.key) == 0 {
		return nil, ErrNoKey
	}
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(leeway),
		jwtlib.WithTimeFunc(s.now),
	)
	var claims Claims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwtlib.Token) (any, error) {
		return s.key, nil
	}); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrMissingUser
	}
	return &claims, nil
}

// Package auth gates the execution API behind HS256 bearer tokens.
//
// Auth is optional: when AUTH_SECRET is empty the server skips it entirely.
// When set, every POST /execute must carry
//
//	Authorization: Bearer <jwt>
//
// signed with that secret. Tokens are issued out of band with cmd/token (or
// anything else holding the secret). The subject names the client and is
// logged with each execution.
//
// WHY JWT?
// The grader keeps no state between requests, and tokens fit that: the
// client name and expiry travel inside the token, and the HMAC signature
// proves the server issued it. Verifying needs the secret only, no lookup.
//
// JWT STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"ci-runner","iss":"gradebox","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
//
// ALGORITHM CONFUSION ATTACK:
// The header names its own algorithm, and the header is attacker-controlled.
// A forged token with "alg":"none" and no signature would pass a verifier
// that trusts the header. Validate therefore pins the accepted methods to
// HS256 and checks the key type in the keyfunc as well.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "gradebox"

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: AUTH_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a token for subject that expires after ttl.
func (s *TokenService) Generate(subject string, ttl time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns its subject.
//
// Only HS256 is accepted; jwt.WithValidMethods blocks "alg: none" and
// algorithm confusion.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}

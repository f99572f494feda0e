package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 24 * time.Hour

// ErrInvalidToken is returned for tokens that fail signature, shape, or
// expiry checks. Callers must treat it as "not authenticated", never retry.
var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs and verifies HS256 access tokens. The subject claim
// carries the user id; there is no refresh flow, expired tokens require
// a fresh login.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	leeway time.Duration
}

// TokenOptions tune optional verification behavior.
type TokenOptions struct {
	Issuer string
	Leeway time.Duration
}

// NewTokenIssuer builds an issuer from a shared secret and token lifetime.
func NewTokenIssuer(secret string, ttl time.Duration, opts TokenOptions) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: strings.TrimSpace(opts.Issuer),
		leeway: opts.Leeway,
	}, nil
}

// Issue returns a signed token for the user.
func (t *TokenIssuer) Issue(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("user id required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	if t.issuer != "" {
		claims.Issuer = t.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and returns the user id from the subject claim.
func (t *TokenIssuer) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidToken
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(t.issuer))
	}
	if t.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(t.leeway))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, parserOpts...)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

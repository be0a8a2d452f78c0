package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const purposePasswordReset = "password_reset"

// Claims carries the user id under "id". Session tokens have no purpose.
type Claims struct {
	ID      string `json:"id"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a session token for userID.
func (t *Tokens) Issue(userID string) (string, error) {
	return t.sign(userID, "", t.ttl)
}

// Verify returns the user id of a valid session token. Any parse,
// signature, algorithm or expiry failure yields ErrInvalidToken.
func (t *Tokens) Verify(raw string) (string, error) {
	claims, err := t.parse(raw)
	if err != nil {
		return "", err
	}
	if claims.Purpose != "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}

func (t *Tokens) IssueReset(userID string, ttl time.Duration) (string, error) {
	return t.sign(userID, purposePasswordReset, ttl)
}

func (t *Tokens) VerifyReset(raw string) (string, error) {
	claims, err := t.parse(raw)
	if err != nil {
		return "", err
	}
	if claims.Purpose != purposePasswordReset {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}

func (t *Tokens) sign(userID, purpose string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		ID:      userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) parse(raw string) (*Claims, error) {
	if raw == "" || len(t.secret) == 0 {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

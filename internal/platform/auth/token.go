package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(key []byte, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{key: key, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for userID and its expiry.
func (i *Issuer) Issue(userID string, roles []string) (string, time.Time, error) {
	if len(i.key) == 0 {
		return "", time.Time{}, errors.New("auth: signing key not configured")
	}
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies the signature, expiry and issuer of tokenStr.
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	if len(i.key) == 0 {
		return nil, errors.New("auth: signing key not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	if i.now != nil {
		opts = append(opts, jwt.WithTimeFunc(i.now))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("auth: invalid token")
	}
	return claims, nil
}

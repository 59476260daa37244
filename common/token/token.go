// Package token issues and verifies the opaque bearer credentials used to
// authenticate mutation requests.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	pe "pinfeed.io/pinfeed/errors"
)

// Service signs and parses bearer tokens carrying the caller's user id.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func New(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed token for the given user id, good for the
// configured TTL.
func (s *Service) Issue(userID string) (string, *pe.PinErr) {
	claims := jwt.MapClaims{
		"uid": userID,
		"exp": time.Now().Add(s.ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", pe.ErrServiceFailure("error signing token").WithCause(err)
	}
	return signed, nil
}

// Verify parses the token string and returns the user id it was issued for.
func (s *Service) Verify(tokenStr string) (string, *pe.PinErr) {
	t, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, pe.ErrUnauthorized("unexpected token signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", pe.ErrUnauthorized("invalid token").WithCause(err)
	}
	if !t.Valid {
		return "", pe.ErrUnauthorized("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", pe.ErrUnauthorized("invalid token claims")
	}
	uid, ok := claims["uid"].(string)
	if !ok || uid == "" {
		return "", pe.ErrUnauthorized("token has no user id")
	}
	return uid, nil
}

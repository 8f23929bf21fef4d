// Package jwtx signs the compact tokens carried in session cookies. Tokens
// are HS256 JWTs signed with the newest secret of a keyring; verification
// walks the keyring in order so secrets can be rotated without logging
// everyone out.
package jwtx

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecrets    = errors.New("jwtx: at least one secret is required")
	ErrInvalidToken = errors.New("jwtx: invalid token")
)

// Claims carried by a session cookie.
type Claims struct {
	jwt.RegisteredClaims

	// SID is the server-side session id.
	SID string `json:"sid"`
}

// Keyring holds the signing secrets, newest first.
type Keyring struct {
	secrets [][]byte
}

// NewKeyring builds a keyring from secrets, newest first. Blank entries are
// skipped so a trailing comma in configuration is harmless.
func NewKeyring(secrets ...string) (*Keyring, error) {
	k := &Keyring{}
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k.secrets = append(k.secrets, []byte(s))
	}
	if len(k.secrets) == 0 {
		return nil, ErrNoSecrets
	}
	return k, nil
}

// Sign returns a token for sessionID signed with the newest secret.
func (k *Keyring) Sign(sessionID string, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
		SID: sessionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(k.secrets[0])
}

// Parse verifies token against each secret in order and returns its claims.
func (k *Keyring) Parse(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	for _, secret := range k.secrets {
		var claims Claims
		_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err == nil {
			if claims.SID == "" {
				return Claims{}, ErrInvalidToken
			}
			return claims, nil
		}
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Claims{}, ErrInvalidToken
		}
	}
	return Claims{}, ErrInvalidToken
}

package auth

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken токен не прошёл проверку подписи или срока действия
var ErrInvalidToken = errors.New("invalid or expired token")

type claims struct {
	jwt.RegisteredClaims
	UserID json.Number `json:"userId"`
	Email  string      `json:"email"`
	Roles  []string    `json:"roles"`
}

// Verifier проверяет RS256-токены, выпущенные сервисом пользователей
type Verifier struct {
	key    *rsa.PublicKey
	parser *jwt.Parser
}

// NewVerifier создаёт проверяющего по открытому ключу
func NewVerifier(key *rsa.PublicKey) *Verifier {
	return &Verifier{
		key: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// LoadVerifier читает открытый ключ в PEM
func LoadVerifier(path string) (*Verifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %q: %w", path, err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key %q: %w", path, err)
	}
	return NewVerifier(key), nil
}

// Verify проверяет токен и возвращает личность вызывающего
func (v *Verifier) Verify(cred Credential) (Identity, error) {
	if cred.Empty() {
		return Identity{}, ErrMissingCredential
	}
	var c claims
	_, err := v.parser.ParseWithClaims(cred.Token, &c, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := Identity{Email: c.Email, Roles: c.Roles}
	if c.UserID != "" {
		uid, err := c.UserID.Int64()
		if err != nil {
			return Identity{}, fmt.Errorf("%w: userId claim %q", ErrInvalidToken, c.UserID)
		}
		id.UserID = uid
	}
	return id, nil
}

package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrKeyTooShort        = errors.New("admin key must be at least 16 characters")
	ErrInvalidCredentials = errors.New("invalid admin key")
	ErrLoginDisabled      = errors.New("admin login is not configured")
)

const (
	bcryptCost   = 12
	minKeyLength = 16
)

// HashKey hashes an admin key using bcrypt
func HashKey(key string) (string, error) {
	if len(key) < minKeyLength {
		return "", ErrKeyTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckKey compares a key with its bcrypt hash
func CheckKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// Authenticator exchanges the shared admin key for an operator token.
type Authenticator struct {
	jwt     *JWTService
	keyHash string
}

func NewAuthenticator(jwtService *JWTService, keyHash string) *Authenticator {
	return &Authenticator{jwt: jwtService, keyHash: keyHash}
}

func (a *Authenticator) Login(operator, key string) (string, time.Time, error) {
	if a.keyHash == "" {
		return "", time.Time{}, ErrLoginDisabled
	}
	if operator == "" || key == "" || !CheckKey(key, a.keyHash) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.jwt.GenerateToken(operator, RoleOperator)
}

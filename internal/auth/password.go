package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password storage modes.
const (
	ModePlain  = "plain"
	ModeBcrypt = "bcrypt"
)

// Hasher turns a password into its stored form and checks candidates against it.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(stored, password string) bool
}

// PlainText stores passwords as given.
type PlainText struct{}

// Hash implements Hasher.
func (PlainText) Hash(password string) (string, error) { return password, nil }

// Compare implements Hasher.
func (PlainText) Compare(stored, password string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// Bcrypt stores bcrypt hashes.
type Bcrypt struct{}

// Hash implements Hasher.
func (Bcrypt) Hash(password string) (string, error) { return HashPassword(password) }

// Compare implements Hasher.
func (Bcrypt) Compare(stored, password string) bool { return CheckPassword(password, stored) }

// HasherFor returns the Hasher for a password mode.
func HasherFor(mode string) (Hasher, error) {
	switch mode {
	case "", ModePlain:
		return PlainText{}, nil
	case ModeBcrypt:
		return Bcrypt{}, nil
	default:
		return nil, fmt.Errorf("unknown password mode %q", mode)
	}
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateSessionToken returns a random 32-byte hex token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

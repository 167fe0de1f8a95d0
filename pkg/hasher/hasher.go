package hasher

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

const (
	cost        = 10
	tokenLength = 32
)

func HashPassword(pw []byte) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(pw, cost)
	return string(bytes), err
}

// PasswordCorrect reports whether password matches a bcrypt hash. A
// malformed hash never matches.
func PasswordCorrect(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func GenerateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// NewAPIToken returns a random bearer token and the hash to configure the
// server with.
func NewAPIToken() (token, hash string, err error) {
	token, err = GenerateToken(tokenLength)
	if err != nil {
		return "", "", err
	}
	hash, err = HashPassword([]byte(token))
	if err != nil {
		return "", "", err
	}
	return token, hash, nil
}

// Package crypt hashes and verifies author passwords. New passwords use
// bcrypt; hashes imported from older script servers are DES crypt(3),
// stored as crypt(password, "XX"), and are upgraded on next login.
package crypt

import (
	"strings"

	descrypt "github.com/digitive/crypt"
	"golang.org/x/crypto/bcrypt"
)

// Crypt performs traditional Unix DES crypt(3).
func Crypt(password, salt string) string {
	result, err := descrypt.Crypt(password, salt)
	if err != nil {
		return ""
	}
	return result
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IsLegacy reports whether storedHash is a DES hash that should be
// replaced by HashPassword after a successful login.
func IsLegacy(storedHash string) bool {
	return storedHash != "" && !strings.HasPrefix(storedHash, "$2")
}

// CheckPassword verifies a password against a bcrypt or DES hash.
func CheckPassword(password, storedHash string) bool {
	if strings.HasPrefix(storedHash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
	}
	if len(storedHash) < 2 {
		return false
	}
	salt := storedHash[:2]
	computed := Crypt(password, salt)
	return computed != "" && computed == storedHash
}

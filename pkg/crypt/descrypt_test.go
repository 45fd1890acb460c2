package crypt

import (
	"strings"
	"testing"
)

func TestCryptConsistency(t *testing.T) {
	// Verify that crypt is consistent: hash then verify
	passwords := []string{"test", "password", "hello", "mypass123"}
	salt := "XX"

	for _, pw := range passwords {
		hash := Crypt(pw, salt)
		if len(hash) != 13 {
			t.Errorf("Expected 13-char hash for %q, got %d chars: %q", pw, len(hash), hash)
			continue
		}
		if hash[:2] != salt {
			t.Errorf("Hash should start with salt %q, got %q", salt, hash[:2])
		}
	}
}

func TestCheckLegacyPassword(t *testing.T) {
	hash := Crypt("testpass", "XX")

	if !IsLegacy(hash) {
		t.Errorf("DES hash %q not reported as legacy", hash)
	}
	if !CheckPassword("testpass", hash) {
		t.Error("CheckPassword should return true for correct password")
	}
	if CheckPassword("wrongpass", hash) {
		t.Error("CheckPassword should return false for wrong password")
	}
	if CheckPassword("", hash) {
		t.Error("CheckPassword should return false for empty password")
	}
}

func TestCheckPasswordDifferentSalts(t *testing.T) {
	salts := []string{"XX", "ab", "Ax", "..", "//"}
	pw := "scriptpassword"

	for _, salt := range salts {
		hash := Crypt(pw, salt)
		if !CheckPassword(pw, hash) {
			t.Errorf("Failed to verify password with salt %q", salt)
		}
	}
}

func TestBcryptPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") || IsLegacy(hash) {
		t.Errorf("unexpected bcrypt hash %q", hash)
	}
	if !CheckPassword("s3cret", hash) {
		t.Error("CheckPassword rejected the right password")
	}
	if CheckPassword("s3cret!", hash) {
		t.Error("CheckPassword accepted the wrong password")
	}
}

func TestCheckPasswordShortHash(t *testing.T) {
	if CheckPassword("x", "") || CheckPassword("x", "a") {
		t.Error("short hashes must never verify")
	}
	if IsLegacy("") {
		t.Error("empty hash reported as legacy")
	}
}

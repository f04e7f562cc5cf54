package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch = errors.New("password does not match")
)

// bcryptCost trades login latency for brute-force resistance. 12 keeps a
// single compare around 250ms on commodity hardware.
const bcryptCost = 12

// MinPasswordLength is the minimum accepted password length
const MinPasswordLength = 8

// HashPassword enforces the minimum length and returns a bcrypt hash.
// Length checking lives here so every caller gets the same policy.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hashedBytes), nil
}

// VerifyPassword compares a candidate password against a stored hash.
// A mismatch is ErrPasswordMismatch; anything else is a bcrypt failure.
func VerifyPassword(hashedPassword, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}

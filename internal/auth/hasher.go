// Package auth implements password hashing for the tenant store (C7).
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost matches bcrypt's library default; spec.md §5 bounds the
// probe/scan timeouts explicitly but leaves password hashing "bound by
// library default work factor".
const DefaultCost = bcrypt.DefaultCost

var ErrPasswordTooLong = errors.New("password exceeds maximum length")

// HashPassword produces a bcrypt hash suitable for storage in
// data.User.PasswordHash.
func HashPassword(password string) (string, error) {
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword performs a constant-time comparison of password against an
// encoded bcrypt hash (bcrypt.CompareHashAndPassword already runs in
// constant time relative to the hash).
func CheckPassword(password, encodedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	return err == nil
}

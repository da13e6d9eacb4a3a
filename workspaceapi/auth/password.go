// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt silently truncates anything beyond 72 bytes, so longer
	// passwords are rejected outright.
	maxPasswordLength = 72
)

// ValidatePassword checks the length constraints before hashing.
func ValidatePassword(password string) error {
	if len(password) > maxPasswordLength {
		return fmt.Errorf("password is too long, max %d bytes", maxPasswordLength)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("password is too short, min %d bytes", minPasswordLength)
	}
	return nil
}

// HashPassword validates and hashes the password for storage.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt.GenerateFromPassword: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

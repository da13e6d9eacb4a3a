// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package util holds small normalisation helpers shared across components.
package util

import (
	"fmt"
	"net/mail"
	"strings"
)

// NormalizeEmail trims surrounding whitespace and lowercases the address so
// it can be compared and stored consistently. Local-parts are technically
// case-sensitive per RFC 5321, but treating addresses case-insensitively
// matches user expectations.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that the address is a plausible single mailbox
// address. The parser accepts display names, so reject anything that does
// not round-trip to a bare address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email address: %w", err)
	}
	if addr.Address != email {
		return fmt.Errorf("invalid email address %q", email)
	}
	return nil
}

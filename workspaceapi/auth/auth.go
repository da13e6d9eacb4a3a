// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package auth issues and verifies the session tokens the REST API and the
// WebSocket endpoint share.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/api"
)

// TokenCookieName carries the session token for browser clients that
// cannot set headers on WebSocket upgrades.
const TokenCookieName = "pagesync_token"

// UserStore is the slice of workspace storage the authenticator needs.
type UserStore interface {
	UserByID(ctx context.Context, id int64) (*api.User, error)
}

// Authenticator mints and verifies HS256 session tokens.
type Authenticator struct {
	cfg   *config.Auth
	users UserStore
}

func NewAuthenticator(cfg *config.Auth, users UserStore) *Authenticator {
	return &Authenticator{cfg: cfg, users: users}
}

// IssueToken returns a signed token for the user, valid for the configured
// lifetime.
func (a *Authenticator) IssueToken(userID int64, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("token.SignedString: %w", err)
	}
	return signed, nil
}

// VerifyToken returns the user id a valid token was issued for.
func (a *Authenticator) VerifyToken(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(
		tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return []byte(a.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("token subject %q is not a user id", claims.Subject)
	}
	return userID, nil
}

// UserFromRequest resolves the user behind the request, trying the Bearer
// header, then the access_token query parameter, then the session cookie.
// A missing or invalid credential yields nil, nil so that callers treat
// the request as anonymous rather than failing it.
func (a *Authenticator) UserFromRequest(req *http.Request) (*api.User, error) {
	tokenString := tokenFromRequest(req)
	if tokenString == "" {
		return nil, nil
	}
	userID, err := a.VerifyToken(tokenString)
	if err != nil {
		return nil, nil
	}
	user, err := a.users.UserByID(req.Context(), userID)
	if err != nil {
		return nil, fmt.Errorf("users.UserByID: %w", err)
	}
	return user, nil
}

func tokenFromRequest(req *http.Request) string {
	if header := req.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
		return ""
	}
	if token := req.URL.Query().Get("access_token"); token != "" {
		return token
	}
	if cookie, err := req.Cookie(TokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

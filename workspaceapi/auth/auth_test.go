// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package auth_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/auth"
)

type staticUsers map[int64]*api.User

func (s staticUsers) UserByID(_ context.Context, id int64) (*api.User, error) {
	return s[id], nil
}

func newAuthenticator() *auth.Authenticator {
	cfg := &config.Auth{JWTSecret: "test-secret", TokenLifetime: time.Hour}
	return auth.NewAuthenticator(cfg, staticUsers{
		42: {ID: 42, Email: "ada@example.com"},
	})
}

func TestTokenRoundTrip(t *testing.T) {
	a := newAuthenticator()
	token, err := a.IssueToken(42, time.Now())
	require.NoError(t, err)

	userID, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestExpiredTokenRejected(t *testing.T) {
	a := newAuthenticator()
	token, err := a.IssueToken(42, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = a.VerifyToken(token)
	assert.Error(t, err)
}

func TestWrongSecretRejected(t *testing.T) {
	other := auth.NewAuthenticator(
		&config.Auth{JWTSecret: "other-secret", TokenLifetime: time.Hour}, staticUsers{},
	)
	token, err := other.IssueToken(42, time.Now())
	require.NoError(t, err)

	_, err = newAuthenticator().VerifyToken(token)
	assert.Error(t, err)
}

func TestUserFromRequestSources(t *testing.T) {
	a := newAuthenticator()
	token, err := a.IssueToken(42, time.Now())
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/pages/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		user, err := a.UserFromRequest(req)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, int64(42), user.ID)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ws/pages/x?access_token="+token, nil)
		user, err := a.UserFromRequest(req)
		require.NoError(t, err)
		require.NotNil(t, user)
	})
}

func TestUserFromRequestCookie(t *testing.T) {
	a := newAuthenticator()
	token, err := a.IssueToken(42, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/ws/pages/x", nil)
	req.Header.Set("Cookie", auth.TokenCookieName+"="+token)
	user, err := a.UserFromRequest(req)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(42), user.ID)
}

func TestAnonymousRequests(t *testing.T) {
	a := newAuthenticator()

	t.Run("no credential", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ws/pages/x", nil)
		user, err := a.UserFromRequest(req)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ws/pages/x", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		user, err := a.UserFromRequest(req)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("unknown user id", func(t *testing.T) {
		token, err := a.IssueToken(999, time.Now())
		require.NoError(t, err)
		req := httptest.NewRequest("GET", "/ws/pages/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		user, err := a.UserFromRequest(req)
		require.NoError(t, err)
		assert.Nil(t, user)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(hash, "correct horse battery staple"))
	assert.False(t, auth.CheckPassword(hash, "wrong password"))
}

func TestPasswordLengthLimits(t *testing.T) {
	_, err := auth.HashPassword("short")
	assert.Error(t, err)

	_, err = auth.HashPassword(strings.Repeat("x", 73))
	assert.Error(t, err)

	_, err = auth.HashPassword(strings.Repeat("x", 72))
	assert.NoError(t, err)
}

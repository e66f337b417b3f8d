// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckauto-ai/shopbrain/pkg/extensions"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func authedRouter(provider extensions.AuthProvider) *gin.Engine {
	router := gin.New()
	router.Use(AuthMiddleware(provider))
	router.GET("/whoami", func(c *gin.Context) {
		info := GetAuthInfo(c)
		c.JSON(http.StatusOK, gin.H{"user_id": info.UserID, "guest": info.IsGuest()})
	})
	return router
}

func TestAuthMiddleware_StaticTokens(t *testing.T) {
	provider := extensions.NewStaticTokenProvider("tok-a=alice;tok-b=guest:bob")
	router := authedRouter(provider)

	t.Run("valid token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer tok-a")
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "alice")
	})

	t.Run("guest token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer tok-b")
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"guest":true`)
	})

	t.Run("unknown token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("non-bearer scheme", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthMiddleware_NopProvider(t *testing.T) {
	router := authedRouter(&extensions.NopAuthProvider{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "local-user")
}

func TestGuestAllowance(t *testing.T) {
	g := NewGuestAllowance(2)

	assert.True(t, g.Allow("guest-1"))
	assert.True(t, g.Allow("guest-1"))
	assert.False(t, g.Allow("guest-1"))

	// Independent counters per user.
	assert.True(t, g.Allow("guest-2"))
}

func TestGuestAllowance_Disabled(t *testing.T) {
	g := NewGuestAllowance(0)
	for i := 0; i < 50; i++ {
		assert.True(t, g.Allow("guest-1"))
	}
}

func TestGuestLimitMiddleware(t *testing.T) {
	provider := extensions.NewStaticTokenProvider("tok-r=alice;tok-g=guest:bob")
	allowance := NewGuestAllowance(1)

	router := gin.New()
	router.Use(AuthMiddleware(provider), GuestLimitMiddleware(allowance))
	router.POST("/chat", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	do := func(token string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)
		return w.Code
	}

	// Guest gets one request, then 403.
	assert.Equal(t, http.StatusOK, do("tok-g"))
	assert.Equal(t, http.StatusForbidden, do("tok-g"))

	// Regular users are never limited.
	assert.Equal(t, http.StatusOK, do("tok-r"))
	assert.Equal(t, http.StatusOK, do("tok-r"))
}

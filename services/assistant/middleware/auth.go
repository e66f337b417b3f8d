// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the assistant service.
//
// # Authentication Flow
//
// AuthMiddleware extracts a bearer token from the Authorization header,
// validates it with the configured AuthProvider, and stores the resulting
// AuthInfo in the gin context for downstream handlers. A missing or invalid
// token ends the request with 401; ownership decisions (403) belong to the
// handlers, which know which resource is being touched.
//
// Guest sessions additionally pass through a daily message allowance;
// exceeding it ends the request with 403.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ckauto-ai/shopbrain/pkg/extensions"
	"github.com/ckauto-ai/shopbrain/services/assistant/datatypes"
)

// authInfoKey is the gin context key for the authenticated identity.
const authInfoKey = "shopbrain_auth_info"

// SetAuthInfo stores the authenticated user info in the gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info, or nil when the
// request never passed the auth middleware.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, ok := v.(*extensions.AuthInfo)
	if !ok {
		return nil
	}
	return info
}

// AuthMiddleware authenticates every request on the group it is mounted on.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))

		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil || info == nil || info.UserID == "" {
			slog.Info("Rejected unauthenticated request", "path", c.FullPath())
			chatErr := datatypes.NewChatError(datatypes.ErrCodeUnauthorized, "authentication required")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  chatErr.Code,
				"error": chatErr.Message,
			})
			return
		}

		SetAuthInfo(c, info)
		c.Next()
	}
}

// bearerToken strips the "Bearer " scheme prefix. Returns "" for any other
// scheme so bare or malformed headers validate as empty tokens.
func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

// =============================================================================
// Guest Allowance
// =============================================================================

// GuestAllowance limits how many chat requests a guest user may make per
// rolling day. Counters live in memory; restarting the service resets them,
// which is acceptable for an abuse brake.
type GuestAllowance struct {
	limit  int
	mu     sync.Mutex
	counts map[string]*guestWindow
}

type guestWindow struct {
	windowStart time.Time
	used        int
}

// NewGuestAllowance creates an allowance of limit requests per day.
// A non-positive limit disables the brake.
func NewGuestAllowance(limit int) *GuestAllowance {
	return &GuestAllowance{
		limit:  limit,
		counts: make(map[string]*guestWindow),
	}
}

// Allow records one request for userID and reports whether it fits inside
// the allowance.
func (g *GuestAllowance) Allow(userID string) bool {
	if g.limit <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	w, ok := g.counts[userID]
	if !ok || now.Sub(w.windowStart) > 24*time.Hour {
		w = &guestWindow{windowStart: now}
		g.counts[userID] = w
	}
	if w.used >= g.limit {
		return false
	}
	w.used++
	return true
}

// GuestLimitMiddleware enforces the guest allowance on chat endpoints.
// Mount after AuthMiddleware.
func GuestLimitMiddleware(allowance *GuestAllowance) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := GetAuthInfo(c)
		if info != nil && info.IsGuest() && !allowance.Allow(info.UserID) {
			slog.Info("Guest exceeded daily allowance", "userId", info.UserID)
			chatErr := datatypes.NewChatError(datatypes.ErrCodeForbidden, "daily message limit reached")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":  chatErr.Code,
				"error": chatErr.Message,
			})
			return
		}
		c.Next()
	}
}

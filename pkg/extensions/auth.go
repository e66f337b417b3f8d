// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the seams where hosted deployments plug in
// their own infrastructure. The open source build ships no-op and
// environment-backed implementations that work without any external
// identity provider.
package extensions

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthorized is returned when authentication fails. Hosted
// implementations should wrap this error with additional context.
var ErrUnauthorized = errors.New("unauthorized")

// User types. Guests get a reduced rate allowance on chat requests.
const (
	UserTypeRegular = "regular"
	UserTypeGuest   = "guest"
)

// AuthInfo is the identity returned after successful authentication.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// Required; never empty on a successful Validate.
	UserID string

	// Email may be empty if the provider does not supply one.
	Email string

	// UserType is "regular" or "guest".
	UserType string
}

// IsGuest reports whether this session belongs to a guest user.
func (a *AuthInfo) IsGuest() bool {
	return a.UserType == UserTypeGuest
}

// AuthProvider validates session tokens and returns user identity.
//
// Implementations must be safe for concurrent use.
//
// # Open Source Behavior
//
// StaticTokenProvider validates against tokens from the environment;
// NopAuthProvider accepts anything as a single local user. Hosted
// deployments implement this interface against their identity provider.
type AuthProvider interface {
	// Validate checks the token and returns the user's identity.
	// Returns ErrUnauthorized (possibly wrapped) for invalid tokens.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// =============================================================================
// Nop Provider
// =============================================================================

// NopAuthProvider accepts every token as a single local user. Intended for
// single-user local deployments where no identity infrastructure exists.
type NopAuthProvider struct{}

// Validate always succeeds with the local user.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID:   "local-user",
		UserType: UserTypeRegular,
	}, nil
}

// =============================================================================
// Static Token Provider
// =============================================================================

// StaticTokenProvider validates bearer tokens against a fixed table.
//
// The table format is "token=userID;token2=userID2". A user id with a
// "guest:" prefix marks that token's sessions as guest sessions.
type StaticTokenProvider struct {
	tokens map[string]AuthInfo
}

// NewStaticTokenProvider parses the token table. Malformed entries are
// skipped rather than rejected so one typo does not lock everyone out.
func NewStaticTokenProvider(table string) *StaticTokenProvider {
	tokens := make(map[string]AuthInfo)
	for _, entry := range strings.Split(table, ";") {
		token, userID, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || token == "" || userID == "" {
			continue
		}
		userType := UserTypeRegular
		if rest, found := strings.CutPrefix(userID, "guest:"); found {
			userID = rest
			userType = UserTypeGuest
		}
		tokens[token] = AuthInfo{UserID: userID, UserType: userType}
	}
	return &StaticTokenProvider{tokens: tokens}
}

// Validate implements AuthProvider.
func (p *StaticTokenProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	info, ok := p.tokens[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &info, nil
}

// Compile-time interface compliance checks.
var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*StaticTokenProvider)(nil)
)

/*
 * Copyright 2025 The Yorkie Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package credentials provides the token providers the engine authenticates
// its streams with. The engine never fetches credentials itself.
package credentials

import (
	"context"
	"sync"
)

// User identifies the owner of local writes. Pending writes are kept per
// user.
type User struct {
	UID string
}

// Unauthenticated is the user of clients without credentials.
var Unauthenticated = User{}

// IsAuthenticated returns whether the user is signed in.
func (u User) IsAuthenticated() bool {
	return u.UID != ""
}

// Key returns the key local data of the user is stored under.
func (u User) Key() string {
	if u.UID == "" {
		return "anonymous"
	}
	return u.UID
}

// Token is a credential attached to stream requests.
type Token struct {
	// Value is the token itself.
	Value string

	// User is the user the token authenticates.
	User User
}

// Provider supplies tokens. GetToken returns nil when no token is
// available.
type Provider interface {
	GetToken(ctx context.Context, forceRefresh bool) (*Token, error)
	InvalidateToken()
	SetChangeListener(fn func(User))
	Shutdown()
}

// Empty is a provider without tokens, for unauthenticated clients and app
// check tokens that are not configured.
type Empty struct{}

// GetToken implements Provider.
func (Empty) GetToken(context.Context, bool) (*Token, error) {
	return nil, nil
}

// InvalidateToken implements Provider.
func (Empty) InvalidateToken() {}

// SetChangeListener implements Provider. The listener is called once with
// the unauthenticated user.
func (Empty) SetChangeListener(fn func(User)) {
	if fn != nil {
		fn(Unauthenticated)
	}
}

// Shutdown implements Provider.
func (Empty) Shutdown() {}

// Static is a provider of a fixed token that can be replaced, which
// notifies the change listener about the new user.
type Static struct {
	mu          sync.Mutex
	token       Token
	invalidated int
	listener    func(User)
}

// NewStatic creates a provider of the given token.
func NewStatic(value string, user User) *Static {
	return &Static{token: Token{Value: value, User: user}}
}

// GetToken implements Provider.
func (s *Static) GetToken(ctx context.Context, _ bool) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token.Value == "" {
		return nil, nil
	}
	token := s.token
	return &token, nil
}

// InvalidateToken implements Provider.
func (s *Static) InvalidateToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
}

// Invalidated returns how many times the token was invalidated.
func (s *Static) Invalidated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

// SetChangeListener implements Provider. The listener is called at once
// with the current user.
func (s *Static) SetChangeListener(fn func(User)) {
	s.mu.Lock()
	s.listener = fn
	user := s.token.User
	s.mu.Unlock()

	if fn != nil {
		fn(user)
	}
}

// SetToken replaces the token, notifying the listener when the user
// changed.
func (s *Static) SetToken(value string, user User) {
	s.mu.Lock()
	changed := s.token.User != user
	s.token = Token{Value: value, User: user}
	listener := s.listener
	s.mu.Unlock()

	if changed && listener != nil {
		listener(user)
	}
}

// Shutdown implements Provider.
func (s *Static) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = nil
}

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

package credentials

import (
	"fmt"

	"github.com/golang-jwt/jwt"

	"github.com/yorkie-team/docsync/pkg/errors"
)

// ErrInvalidIDToken is returned when an ID token cannot be parsed or names
// no user.
var ErrInvalidIDToken = errors.Unauthenticated("invalid id token").WithCode("ErrInvalidIDToken")

// IDTokenClaims are the claims of an ID token the engine reads.
type IDTokenClaims struct {
	jwt.StandardClaims

	UserID string `json:"user_id"`
}

// UserOf returns the user an ID token was issued to, taken from the
// user_id claim or else the subject. The signature is not verified here;
// the backend verifies it on every stream.
func UserOf(token string) (User, error) {
	claims := &IDTokenClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return User{}, fmt.Errorf("parse id token: %w: %s", ErrInvalidIDToken, err.Error())
	}

	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return User{}, fmt.Errorf("id token without subject: %w", ErrInvalidIDToken)
	}
	return User{UID: uid}, nil
}

// NewIDToken creates a provider of the given ID token, authenticating the
// user it was issued to.
func NewIDToken(token string) (*Static, error) {
	user, err := UserOf(token)
	if err != nil {
		return nil, err
	}
	return NewStatic(token, user), nil
}

// SetIDToken replaces the token of s with an ID token, switching to the
// user it was issued to.
func (s *Static) SetIDToken(token string) error {
	user, err := UserOf(token)
	if err != nil {
		return err
	}
	s.SetToken(token, user)
	return nil
}

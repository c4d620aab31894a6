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

package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/pkg/errors"
)

func sign(t *testing.T, claims credentials.IDTokenClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestIDToken(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).Unix()

	t.Run("user of token test", func(t *testing.T) {
		user, err := credentials.UserOf(sign(t, credentials.IDTokenClaims{
			StandardClaims: jwt.StandardClaims{Subject: "alice", ExpiresAt: expiresAt},
		}))
		require.NoError(t, err)
		assert.Equal(t, credentials.User{UID: "alice"}, user)

		user, err = credentials.UserOf(sign(t, credentials.IDTokenClaims{
			StandardClaims: jwt.StandardClaims{Subject: "ignored"},
			UserID:         "bob",
		}))
		require.NoError(t, err)
		assert.Equal(t, "bob", user.UID)
	})

	t.Run("invalid token test", func(t *testing.T) {
		_, err := credentials.UserOf("not-a-token")
		assert.ErrorIs(t, err, credentials.ErrInvalidIDToken)
		assert.True(t, errors.IsStatus(err, errors.ErrCodeUnauthenticated))

		_, err = credentials.UserOf(sign(t, credentials.IDTokenClaims{}))
		assert.ErrorIs(t, err, credentials.ErrInvalidIDToken)
	})

	t.Run("provider test", func(t *testing.T) {
		aliceToken := sign(t, credentials.IDTokenClaims{StandardClaims: jwt.StandardClaims{Subject: "alice"}})
		p, err := credentials.NewIDToken(aliceToken)
		require.NoError(t, err)

		var users []credentials.User
		p.SetChangeListener(func(u credentials.User) { users = append(users, u) })

		token, err := p.GetToken(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, aliceToken, token.Value)

		require.NoError(t, p.SetIDToken(sign(t, credentials.IDTokenClaims{UserID: "bob"})))
		assert.Error(t, p.SetIDToken("broken"))
		assert.Equal(t, []credentials.User{{UID: "alice"}, {UID: "bob"}}, users)
	})
}

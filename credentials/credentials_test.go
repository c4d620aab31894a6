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

	"github.com/stretchr/testify/assert"

	"github.com/yorkie-team/docsync/credentials"
)

func TestProviders(t *testing.T) {
	t.Run("empty provider test", func(t *testing.T) {
		p := credentials.Empty{}
		token, err := p.GetToken(context.Background(), true)
		assert.NoError(t, err)
		assert.Nil(t, token)

		var got *credentials.User
		p.SetChangeListener(func(u credentials.User) { got = &u })
		assert.Equal(t, credentials.Unauthenticated, *got)
		assert.False(t, got.IsAuthenticated())
		assert.Equal(t, "anonymous", got.Key())
	})

	t.Run("static provider test", func(t *testing.T) {
		alice := credentials.User{UID: "alice"}
		p := credentials.NewStatic("t1", alice)

		var users []credentials.User
		p.SetChangeListener(func(u credentials.User) { users = append(users, u) })

		token, err := p.GetToken(context.Background(), false)
		assert.NoError(t, err)
		assert.Equal(t, "t1", token.Value)

		p.SetToken("t2", alice)
		p.SetToken("t3", credentials.User{UID: "bob"})
		assert.Equal(t, []credentials.User{alice, {UID: "bob"}}, users)

		p.InvalidateToken()
		assert.Equal(t, 1, p.Invalidated())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = p.GetToken(ctx, false)
		assert.ErrorIs(t, err, context.Canceled)

		p.Shutdown()
		p.SetToken("t4", alice)
		assert.Len(t, users, 2)
	})
}

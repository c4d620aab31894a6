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
package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidation(t *testing.T) {
	t.Run("ValidateValue test", func(t *testing.T) {
		assert.NoError(t, ValidateValue("my-project", "required,project_id"))

		err := ValidateValue("My Project", "required,project_id")
		assert.Equal(t, "project_id", err.(Violation).Tag)

		err = ValidateValue("1project", "required,project_id")
		assert.Equal(t, "project_id", err.(Violation).Tag)

		assert.NoError(t, ValidateValue("(default)", "database_id"))
		assert.NoError(t, ValidateValue("archive", "database_id"))
		err = ValidateValue("(other)", "database_id")
		assert.Equal(t, "database_id", err.(Violation).Tag)

		assert.NoError(t, ValidateValue("1m30s", "duration"))
		err = ValidateValue("one hour", "duration")
		assert.Equal(t, "duration", err.(Violation).Tag)
		err = ValidateValue("-1s", "duration")
		assert.Equal(t, "duration", err.(Violation).Tag)
	})

	t.Run("ValidateStruct test", func(t *testing.T) {
		type Config struct {
			ProjectID string `validate:"required,project_id"`
			Timeout   string `validate:"duration"`
			Policy    string `validate:"oneof=eager lru"`
		}

		err := ValidateStruct(Config{ProjectID: "p1", Timeout: "10s", Policy: "lru"})
		assert.NoError(t, err)

		err = ValidateStruct(Config{ProjectID: "P1", Timeout: "soon", Policy: "never"})
		structError := &StructError{}
		require.True(t, errors.As(err, &structError))
		assert.Len(t, structError.Violations, 3)
		assert.Equal(t, "ProjectID", structError.Violations[0].Field)
		assert.Contains(t, err.Error(), "Timeout: Timeout must be a valid duration")
	})

	t.Run("custom rule test", func(t *testing.T) {
		require.NoError(t, RegisterValidation("custom", func(v FieldLevel) bool {
			return v.Field().String() == "custom"
		}))

		myError := errors.New("custom error")
		require.NoError(t, RegisterTranslation("custom", myError.Error()))

		err := ValidateValue("custom-invalid-value", "required,custom")
		require.Error(t, err)
		assert.Equal(t, myError.Error(), err.(Violation).Description)
		assert.NoError(t, ValidateValue("custom", "required,custom"))
	})
}

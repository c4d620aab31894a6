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

package memory

import (
	"fmt"

	"github.com/yorkie-team/docsync/persistence"
)

type namedQueryCache struct {
	p *Persistence
}

// GetNamedQuery implements persistence.NamedQueryCache.
func (c *namedQueryCache) GetNamedQuery(txn persistence.Transaction, name string) (*persistence.NamedQuery, error) {
	raw, err := unwrap(txn).First(tblNamedQueries, "id", name)
	if err != nil {
		return nil, fmt.Errorf("find named query %q: %w", name, err)
	}
	if raw == nil {
		return nil, nil
	}
	return c.p.serializer.FromNamedQueryRecord(raw.(*persistence.NamedQueryRecord))
}

// SaveNamedQuery implements persistence.NamedQueryCache.
func (c *namedQueryCache) SaveNamedQuery(txn persistence.Transaction, q *persistence.NamedQuery) error {
	if err := unwrap(txn).Insert(tblNamedQueries, c.p.serializer.ToNamedQueryRecord(q)); err != nil {
		return fmt.Errorf("insert named query %q: %w", q.Name, err)
	}
	return nil
}

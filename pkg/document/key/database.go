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

package key

import "fmt"

// DefaultDatabase is the database used when none is configured.
const DefaultDatabase = "(default)"

// DatabaseID identifies the database documents live in.
type DatabaseID struct {
	ProjectID string `yaml:"ProjectID" validate:"required"`
	Database  string `yaml:"Database"`
}

// NewDatabaseID creates a DatabaseID, defaulting the database name.
func NewDatabaseID(projectID, database string) DatabaseID {
	if database == "" {
		database = DefaultDatabase
	}
	return DatabaseID{ProjectID: projectID, Database: database}
}

// RootPath returns "projects/{project}/databases/{database}/documents".
func (d DatabaseID) RootPath() string {
	return fmt.Sprintf("projects/%s/databases/%s/documents", d.ProjectID, d.Database)
}

// Name returns "projects/{project}/databases/{database}".
func (d DatabaseID) Name() string {
	return fmt.Sprintf("projects/%s/databases/%s", d.ProjectID, d.Database)
}

// DocumentName returns the fully qualified name of the document with key k.
func (d DatabaseID) DocumentName(k Key) string {
	return d.RootPath() + "/" + k.String()
}

// Compare orders database ids by project then database.
func (d DatabaseID) Compare(other DatabaseID) int {
	switch {
	case d.ProjectID < other.ProjectID:
		return -1
	case d.ProjectID > other.ProjectID:
		return 1
	case d.Database < other.Database:
		return -1
	case d.Database > other.Database:
		return 1
	}
	return 0
}

// ParseDocumentName extracts the key from a fully qualified document name of
// this database.
func (d DatabaseID) ParseDocumentName(name string) (Key, error) {
	prefix := d.RootPath() + "/"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return Key{}, fmt.Errorf("%q is not a document of %s: %w", name, d.Name(), ErrInvalidPath)
	}
	return Parse(name[len(prefix):])
}

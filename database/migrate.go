// Copyright 2025 Ember Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/emberlabs-io/walletdb/database/plugin/kv"
)

// migration is one irreversible schema/data transformation. Shipped
// migrations are frozen; schema changes are appended as new entries
type migration struct {
	apply       func(*Database, *Txn) error
	description string
}

// migrate brings the store from its recorded schema version to the
// current one. All pending migrations run in a single transaction, so a
// failure persists no partial-version state. A store already at the
// current version is left untouched
func (d *Database) migrate() error {
	return d.Transaction(true).Do(func(txn *Txn) error {
		fromVersion, err := d.schemaVersion(txn)
		if err != nil {
			return MigrationError{FromVersion: fromVersion, Err: err}
		}
		if fromVersion == len(migrations) {
			return nil
		}
		if fromVersion > len(migrations) {
			return MigrationError{
				FromVersion: fromVersion,
				Err: fmt.Errorf(
					"schema version %d is newer than supported version %d",
					fromVersion,
					len(migrations),
				),
			}
		}
		for i := fromVersion; i < len(migrations); i++ {
			d.logger.Info(
				"applying schema migration",
				"component", "database",
				"version", i+1,
				"description", migrations[i].description,
			)
			if err := migrations[i].apply(d, txn); err != nil {
				return MigrationError{
					FromVersion: fromVersion,
					Err: fmt.Errorf(
						"migration %d (%s): %w",
						i+1,
						migrations[i].description,
						err,
					),
				}
			}
		}
		if err := d.setSchemaVersion(txn, len(migrations)); err != nil {
			return MigrationError{FromVersion: fromVersion, Err: err}
		}
		return nil
	})
}

// schemaVersion reads the recorded store version; a missing entry means a
// freshly created store
func (d *Database) schemaVersion(txn *Txn) (int, error) {
	val, err := d.store.Get(
		txn.Kv(),
		collectionMeta,
		[]byte(metaKeySchemaVersion),
	)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	version, err := strconv.Atoi(string(val))
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", val, err)
	}
	return version, nil
}

func (d *Database) setSchemaVersion(txn *Txn, version int) error {
	return d.store.Set(
		txn.Kv(),
		collectionMeta,
		[]byte(metaKeySchemaVersion),
		[]byte(strconv.Itoa(version)),
	)
}

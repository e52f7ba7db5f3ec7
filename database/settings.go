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

	"github.com/emberlabs-io/walletdb/database/plugin/kv"
)

// SetCachedItem stores a small persisted scalar, such as a sync cursor or
// feature flag. Last write wins
func (d *Database) SetCachedItem(key, value string) error {
	return d.transact(true, func(txn *Txn) error {
		err := d.store.Set(
			txn.Kv(),
			collectionSettings,
			[]byte(key),
			[]byte(value),
		)
		if err != nil {
			return fmt.Errorf("set cached item %q: %w", key, err)
		}
		return nil
	})
}

// GetCachedItem returns the stored value and whether it exists
func (d *Database) GetCachedItem(key string) (string, bool, error) {
	var value string
	var found bool
	err := d.transact(false, func(txn *Txn) error {
		val, err := d.store.Get(txn.Kv(), collectionSettings, []byte(key))
		if err != nil {
			if errors.Is(err, kv.ErrKeyNotFound) {
				return nil
			}
			return fmt.Errorf("get cached item %q: %w", key, err)
		}
		value = string(val)
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// DeleteCachedItem removes a stored value. Deleting a missing key is not
// an error
func (d *Database) DeleteCachedItem(key string) error {
	return d.transact(true, func(txn *Txn) error {
		err := d.store.Delete(txn.Kv(), collectionSettings, []byte(key))
		if err != nil {
			return fmt.Errorf("delete cached item %q: %w", key, err)
		}
		return nil
	})
}

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
	"github.com/emberlabs-io/walletdb/database/plugin/kv"
)

// kvItem is one key-value pair captured from a collection scan
type kvItem struct {
	key   []byte
	value []byte
}

// scanCollection walks a collection in key order, invoking fn per entry.
// Returning an error from fn stops the scan
func (d *Database) scanCollection(
	txn *Txn,
	opts kv.IteratorOptions,
	fn func(key, value []byte) error,
) error {
	iter := d.store.NewIterator(txn.Kv(), opts)
	defer iter.Close()
	for iter.Rewind(); iter.Valid(); iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return err
		}
		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}
	return iter.Err()
}

// snapshotCollection reads all entries of a collection into memory. Used
// where the caller writes back to the same collection while "iterating",
// since engine cursors are not safe across in-place writes
func (d *Database) snapshotCollection(
	txn *Txn,
	collection string,
) ([]kvItem, error) {
	var items []kvItem
	err := d.scanCollection(
		txn,
		kv.IteratorOptions{Collection: collection},
		func(key, value []byte) error {
			items = append(items, kvItem{key: key, value: value})
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// clearCollection deletes every entry of a collection
func (d *Database) clearCollection(txn *Txn, collection string) error {
	items, err := d.snapshotCollection(txn, collection)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := d.store.Delete(txn.Kv(), collection, item.key); err != nil {
			return err
		}
	}
	return nil
}

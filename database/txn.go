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
	"fmt"
	"sync"

	"github.com/emberlabs-io/walletdb/database/plugin/kv"
)

// Txn wraps a storage-engine transaction
type Txn struct {
	db        *Database
	kvTxn     kv.Txn
	lock      sync.Mutex
	finished  bool
	readWrite bool
}

func NewTxn(db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if store := db.Store(); store != nil {
		t.kvTxn = store.NewTransaction(readWrite)
	}
	return t
}

func (t *Txn) DB() *Database {
	return t.db
}

// Kv returns the underlying storage-engine transaction handle
func (t *Txn) Kv() kv.Txn {
	return t.kvTxn
}

// Do executes the specified function in the context of the transaction. Any errors returned will result
// in the transaction being rolled back
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		if err2 := t.Rollback(); err2 != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				err2,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return nil
	}
	if t.kvTxn == nil {
		t.finished = true
		if t.readWrite {
			return ErrNotInitialized
		}
		return nil
	}
	// No need to commit for read-only, but we do want to free up resources
	if !t.readWrite {
		return t.rollback()
	}
	if err := t.kvTxn.Commit(); err != nil {
		t.finished = true
		return err
	}
	t.finished = true
	return nil
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if t.kvTxn == nil {
		return nil
	}
	return t.kvTxn.Rollback()
}

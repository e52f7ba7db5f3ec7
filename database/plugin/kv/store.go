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

package kv

import (
	"fmt"
	"log/slog"

	"github.com/emberlabs-io/walletdb/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
)

// Store is a transactional collection store. All reads and writes happen
// inside a transaction; writes are atomic across collections on Commit.
// Keys within a collection are ordered bytewise
type Store interface {
	Close() error
	NewTransaction(readWrite bool) Txn
	Get(txn Txn, collection string, key []byte) ([]byte, error)
	Set(txn Txn, collection string, key, value []byte) error
	Delete(txn Txn, collection string, key []byte) error
	NewIterator(txn Txn, opts IteratorOptions) Iterator
	Capabilities() Capabilities
}

type Txn interface {
	// Commit makes the transaction's writes durable. Engines that detect
	// write conflicts return ErrTxnConflict, and the caller retries
	Commit() error
	Rollback() error
}

// Iterator walks keys of one collection in bytewise order. Returned keys
// have the collection prefix already stripped. Item values are only valid
// while the transaction used to create the iterator is still active
type Iterator interface {
	Rewind()
	Seek(key []byte)
	Valid() bool
	Next()
	Key() []byte
	Value() ([]byte, error)
	Close()
	Err() error
}

type IteratorOptions struct {
	Collection string
	Prefix     []byte
	Reverse    bool
}

// Capabilities describes optional engine behaviors that callers may use
// to choose between equivalent access paths
type Capabilities struct {
	// IndexScans reports whether secondary-index collections can be
	// consulted as a fast path. When false, readers fall back to scanning
	// the primary collection
	IndexScans bool
}

// New returns the started storage plugin selected by name
func New(
	pluginName string,
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (Store, error) {
	p, err := plugin.StartPlugin(pluginName, plugin.Options{
		DataDir:      dataDir,
		Logger:       logger,
		PromRegistry: promRegistry,
	})
	if err != nil {
		return nil, err
	}
	store, ok := p.(Store)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement the Store interface",
			pluginName,
		)
	}
	return store, nil
}

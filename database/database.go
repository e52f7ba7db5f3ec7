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
	"io"
	"log/slog"

	"github.com/emberlabs-io/walletdb/database/plugin/kv"
	"github.com/prometheus/client_golang/prometheus"

	// Register the storage engine plugins
	_ "github.com/emberlabs-io/walletdb/database/plugin/kv/badger"
	_ "github.com/emberlabs-io/walletdb/database/plugin/kv/sqlite"
)

// Database is the wallet persistence layer: payments, deposits, payment
// metadata, settings and the sync engine's queues, all stored in one
// transactional collection store
type Database struct {
	logger  *slog.Logger
	store   kv.Store
	dataDir string
}

// New creates a database instance backed by the named storage plugin,
// with optional persistence using the provided data directory. The schema
// is migrated to the current version before New returns
func New(
	pluginName string,
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Database, error) {
	store, err := kv.New(pluginName, dataDir, logger, promRegistry)
	if err != nil {
		return nil, err
	}
	db := &Database{
		logger:  logger,
		store:   store,
		dataDir: dataDir,
	}
	db.init()
	if err := db.migrate(); err != nil {
		// The store is unusable for this session; release it
		err = errors.Join(err, store.Close())
		return nil, err
	}
	return db, nil
}

func (d *Database) init() {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
}

// Store returns the underlying storage engine instance
func (d *Database) Store() kv.Store {
	return d.store
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Close cleans up the database connection
func (d *Database) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}

const txnRetryAttempts = 5

// transact runs fn inside a transaction, retrying when the storage engine
// reports a commit conflict
func (d *Database) transact(readWrite bool, fn func(*Txn) error) error {
	if d.store == nil {
		return ErrNotInitialized
	}
	for attempt := 1; ; attempt++ {
		err := d.Transaction(readWrite).Do(fn)
		if err == nil || !errors.Is(err, kv.ErrTxnConflict) {
			return err
		}
		if attempt >= txnRetryAttempts {
			return err
		}
		d.logger.Debug(
			"retrying conflicting transaction",
			"component", "database",
			"attempt", attempt,
		)
	}
}

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

package sqlite

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emberlabs-io/walletdb/database/plugin/kv"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// KvPair is the single relational model: one row per collection key
type KvPair struct {
	Collection string `gorm:"primaryKey"`
	Key        []byte `gorm:"primaryKey"`
	Value      []byte
}

func (KvPair) TableName() string {
	return "kv_pairs"
}

// memDbCounter gives each in-memory store a distinct shared-cache name so
// separate stores in one process don't see each other's data
var memDbCounter atomic.Uint64

// KvStoreSqlite is a SQLite-backed implementation of the kv.Store
// interface. All collections live in a single table with bytewise (BLOB)
// key ordering
type KvStoreSqlite struct {
	promRegistry prometheus.Registerer
	db           *gorm.DB
	logger       *slog.Logger
	timerVacuum  *time.Timer
	timerMutex   sync.Mutex
	dataDir      string
	closed       bool
	vacuumWG     sync.WaitGroup
	// Serializes read-write transactions
	writeMutex sync.Mutex
	indexScans bool
}

// New creates a SQLite store. It uses an in-memory database if dataDir is
// empty
func New(opts ...KvStoreSqliteOptionFunc) (*KvStoreSqlite, error) {
	db := &KvStoreSqlite{
		indexScans: true,
	}
	for _, opt := range opts {
		opt(db)
	}
	var kvDb *gorm.DB
	var err error
	if db.dataDir == "" {
		// cache=shared allows multiple connections to share the same in-memory database
		dsn := fmt.Sprintf(
			"file:memdb%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)",
			memDbCounter.Add(1),
		)
		kvDb, err = gorm.Open(
			sqlite.Open(dsn),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(db.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			// Create data directory
			if err := os.MkdirAll(db.dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		kvDbPath := filepath.Join(
			db.dataDir,
			"walletdb.sqlite",
		)
		// WAL journal mode, disable sync on write, increase cache size to 50MB (from 2MB)
		connOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)&_pragma=cache_size(-50000)"
		kvDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", kvDbPath, connOpts),
			),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	db.db = kvDb
	if err := db.init(); err != nil {
		// KvStoreSqlite is available for recovery, so return it with error
		return db, err
	}
	if err := db.db.AutoMigrate(&KvPair{}); err != nil {
		return db, err
	}
	return db, nil
}

func (d *KvStoreSqlite) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure tracing for GORM
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	// Configure metrics
	if d.promRegistry != nil {
		d.registerKvMetrics()
	}
	// Schedule daily database vacuum to free unused space
	d.scheduleDailyVacuum()
	return nil
}

func (d *KvStoreSqlite) runVacuum() error {
	d.timerMutex.Lock()
	if d.dataDir == "" || d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	// Track this vacuum operation while we know the store is open
	d.vacuumWG.Add(1)
	d.timerMutex.Unlock()
	defer d.vacuumWG.Done()

	if result := d.DB().Raw("VACUUM"); result.Error != nil {
		return result.Error
	}
	return nil
}

// scheduleDailyVacuum schedules a daily vacuum operation
func (d *KvStoreSqlite) scheduleDailyVacuum() {
	d.timerMutex.Lock()
	defer d.timerMutex.Unlock()
	if d.closed {
		return
	}

	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
	}
	daily := time.Duration(24) * time.Hour
	f := func() {
		d.logger.Debug(
			"running vacuum on sqlite database",
			"component", "database",
		)
		// schedule next run
		defer d.scheduleDailyVacuum()
		if err := d.runVacuum(); err != nil {
			d.logger.Error(
				"failed to free unused space in sqlite store",
				"component", "database",
				"error", err,
			)
		}
	}
	d.timerVacuum = time.AfterFunc(daily, f)
}

// Start implements the plugin.Plugin interface
func (d *KvStoreSqlite) Start() error {
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *KvStoreSqlite) Stop() error {
	return d.Close()
}

// Close shuts down the database connection and stops background processes
func (d *KvStoreSqlite) Close() error {
	d.timerMutex.Lock()
	d.closed = true
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
		d.timerVacuum = nil
	}
	d.timerMutex.Unlock()

	// Wait for any in-flight vacuum operations to complete
	d.vacuumWG.Wait()

	db, err := d.DB().DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return db.Close()
}

// DB returns the underlying GORM database handle
func (d *KvStoreSqlite) DB() *gorm.DB {
	return d.db
}

// Capabilities implements the kv.Store interface
func (d *KvStoreSqlite) Capabilities() kv.Capabilities {
	return kv.Capabilities{IndexScans: d.indexScans}
}

// sqliteTxn wraps a gorm transaction and implements kv.Txn. Read-write
// transactions hold the store write lock until they finish
type sqliteTxn struct {
	store     *KvStoreSqlite
	tx        *gorm.DB
	readWrite bool
	finished  bool
}

// NewTransaction creates a new transaction
func (d *KvStoreSqlite) NewTransaction(readWrite bool) kv.Txn {
	if readWrite {
		d.writeMutex.Lock()
	}
	return &sqliteTxn{
		store:     d,
		tx:        d.db.Begin(),
		readWrite: readWrite,
	}
}

func (t *sqliteTxn) finish() {
	t.finished = true
	if t.readWrite {
		t.store.writeMutex.Unlock()
	}
}

func (t *sqliteTxn) Commit() error {
	if t.finished {
		return nil
	}
	err := t.tx.Commit().Error
	t.finish()
	return err
}

func (t *sqliteTxn) Rollback() error {
	if t.finished {
		return nil
	}
	err := t.tx.Rollback().Error
	t.finish()
	return err
}

// validateTxn validates a kv.Txn for this store and returns the underlying
// *sqliteTxn if valid
func (d *KvStoreSqlite) validateTxn(txn kv.Txn) (*sqliteTxn, error) {
	if txn == nil {
		return nil, kv.ErrNilTxn
	}
	sqlTxn, ok := txn.(*sqliteTxn)
	if !ok {
		return nil, kv.ErrTxnWrongType
	}
	if sqlTxn.store != d {
		return nil, errors.New("transaction from different store")
	}
	if sqlTxn.finished {
		return nil, kv.ErrTxnFinished
	}
	return sqlTxn, nil
}

// Get retrieves a value within a transaction
func (d *KvStoreSqlite) Get(
	txn kv.Txn,
	collection string,
	key []byte,
) ([]byte, error) {
	sqlTxn, err := d.validateTxn(txn)
	if err != nil {
		return nil, err
	}
	var pair KvPair
	result := sqlTxn.tx.
		Where("collection = ? AND key = ?", collection, key).
		First(&pair)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, kv.ErrKeyNotFound
		}
		return nil, result.Error
	}
	return pair.Value, nil
}

// Set stores a key-value pair within a transaction
func (d *KvStoreSqlite) Set(
	txn kv.Txn,
	collection string,
	key, value []byte,
) error {
	sqlTxn, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if !sqlTxn.readWrite {
		return kv.ErrTxnReadOnly
	}
	result := sqlTxn.tx.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "collection"},
				{Name: "key"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&KvPair{
			Collection: collection,
			Key:        key,
			Value:      value,
		})
	return result.Error
}

// Delete removes a key within a transaction
func (d *KvStoreSqlite) Delete(
	txn kv.Txn,
	collection string,
	key []byte,
) error {
	sqlTxn, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if !sqlTxn.readWrite {
		return kv.ErrTxnReadOnly
	}
	result := sqlTxn.tx.
		Where("collection = ? AND key = ?", collection, key).
		Delete(&KvPair{})
	return result.Error
}

// sqliteIterator walks a snapshot of matching rows, ordered by key in the
// requested direction
type sqliteIterator struct {
	rows    []KvPair
	pos     int
	reverse bool
	err     error
}

func (it *sqliteIterator) Rewind() { it.pos = 0 }

func (it *sqliteIterator) Seek(key []byte) {
	for it.pos = 0; it.pos < len(it.rows); it.pos++ {
		cmp := bytes.Compare(it.rows[it.pos].Key, key)
		if (!it.reverse && cmp >= 0) || (it.reverse && cmp <= 0) {
			return
		}
	}
}

func (it *sqliteIterator) Valid() bool {
	return it.err == nil && it.pos < len(it.rows)
}

func (it *sqliteIterator) Next() { it.pos++ }

func (it *sqliteIterator) Key() []byte {
	return it.rows[it.pos].Key
}

func (it *sqliteIterator) Value() ([]byte, error) {
	if it.err != nil {
		return nil, it.err
	}
	return it.rows[it.pos].Value, nil
}

func (it *sqliteIterator) Close()     {}
func (it *sqliteIterator) Err() error { return it.err }

// prefixUpperBound returns the lowest key sorting after every key with the
// given prefix, or nil if no such key exists
func prefixUpperBound(prefix []byte) []byte {
	bound := bytes.Clone(prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}

// NewIterator creates an iterator over one collection within a
// transaction. SQLite compares BLOB keys with memcmp, matching the bytewise
// ordering contract
func (d *KvStoreSqlite) NewIterator(
	txn kv.Txn,
	opts kv.IteratorOptions,
) kv.Iterator {
	sqlTxn, err := d.validateTxn(txn)
	if err != nil {
		return &sqliteIterator{err: err}
	}
	query := sqlTxn.tx.
		Where("collection = ?", opts.Collection)
	if len(opts.Prefix) > 0 {
		query = query.Where("key >= ?", opts.Prefix)
		if bound := prefixUpperBound(opts.Prefix); bound != nil {
			query = query.Where("key < ?", bound)
		}
	}
	order := "key"
	if opts.Reverse {
		order = "key DESC"
	}
	var rows []KvPair
	if result := query.Order(order).Find(&rows); result.Error != nil {
		return &sqliteIterator{err: result.Error}
	}
	return &sqliteIterator{rows: rows, reverse: opts.Reverse}
}

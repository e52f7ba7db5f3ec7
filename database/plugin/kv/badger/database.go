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

package badger

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
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/emberlabs-io/walletdb/database/plugin/kv"
	"github.com/prometheus/client_golang/prometheus"
)

// badgerTxn wraps a badger transaction and implements kv.Txn
type badgerTxn struct {
	store    *KvStoreBadger
	tx       *badger.Txn
	finished bool
}

func newBadgerTxn(store *KvStoreBadger, tx *badger.Txn) *badgerTxn {
	return &badgerTxn{store: store, tx: tx}
}

// validateTxn validates a kv.Txn for this store and returns the underlying
// *badgerTxn if valid
func (d *KvStoreBadger) validateTxn(txn kv.Txn) (*badgerTxn, error) {
	if txn == nil {
		return nil, kv.ErrNilTxn
	}
	badgerTxn, ok := txn.(*badgerTxn)
	if !ok {
		return nil, kv.ErrTxnWrongType
	}
	if badgerTxn.store != d {
		return nil, errors.New("transaction from different store")
	}
	if err := badgerTxn.validateTxn(); err != nil {
		return nil, err
	}
	return badgerTxn, nil
}

// validateTxn checks if the transaction is still valid for use
func (t *badgerTxn) validateTxn() error {
	if t.finished {
		return kv.ErrTxnFinished
	}
	if t.tx == nil {
		return kv.ErrStoreClosed
	}
	return nil
}

func (t *badgerTxn) Commit() error {
	if t.finished {
		return nil
	}
	if t.tx == nil {
		t.finished = true
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return kv.ErrTxnConflict
		}
		return err
	}
	t.finished = true
	return nil
}

func (t *badgerTxn) Rollback() error {
	if t.finished {
		return nil
	}
	if t.tx != nil {
		t.tx.Discard()
	}
	t.finished = true
	return nil
}

// collectionPrefix returns the key prefix for a collection. Collection
// names must not contain a zero byte
func collectionPrefix(collection string) []byte {
	return append([]byte(collection), 0x00)
}

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

type badgerIterator struct {
	iter *badger.Iterator
	// Full key prefix for the iterated collection
	base []byte
	// base plus the caller's key prefix
	full    []byte
	reverse bool
}

func (it *badgerIterator) Rewind() {
	if it.reverse {
		if bound := prefixUpperBound(it.full); bound != nil {
			it.iter.Seek(bound)
			// A key equal to the bound sorts outside the prefix; step
			// past it. Stepping an invalid iterator panics, so only do
			// so when the seek landed on a key at all
			if it.iter.Valid() && !it.iter.ValidForPrefix(it.full) {
				it.iter.Next()
			}
			return
		}
	}
	it.iter.Rewind()
}

func (it *badgerIterator) Seek(key []byte) {
	it.iter.Seek(append(bytes.Clone(it.base), key...))
}

func (it *badgerIterator) Valid() bool {
	return it.iter.ValidForPrefix(it.full)
}

func (it *badgerIterator) Next() { it.iter.Next() }

func (it *badgerIterator) Key() []byte {
	key := it.iter.Item().KeyCopy(nil)
	return key[len(it.base):]
}

func (it *badgerIterator) Value() ([]byte, error) {
	return it.iter.Item().ValueCopy(nil)
}

func (it *badgerIterator) Close()     { it.iter.Close() }
func (it *badgerIterator) Err() error { return nil }

type errorIterator struct {
	err error
}

func (it *errorIterator) Rewind()                {}
func (it *errorIterator) Seek(key []byte)        {}
func (it *errorIterator) Valid() bool            { return false }
func (it *errorIterator) Next()                  {}
func (it *errorIterator) Key() []byte            { return nil }
func (it *errorIterator) Value() ([]byte, error) { return nil, it.err }
func (it *errorIterator) Close()                 {}
func (it *errorIterator) Err() error             { return it.err }

// KvStoreBadger stores all collections in badger. Data may not be persisted
type KvStoreBadger struct {
	promRegistry     prometheus.Registerer
	db               *badger.DB
	logger           *slog.Logger
	gcTicker         *time.Ticker
	gcStopCh         chan struct{}
	dataDir          string
	gcWg             sync.WaitGroup
	blockCacheSize   uint64
	indexCacheSize   uint64
	valueLogFileSize int64
	memTableSize     int64
	valueThreshold   int64
	gcEnabled        bool
}

// New creates a new store. It uses an in-memory backend when no data
// directory is configured
func New(opts ...KvStoreBadgerOptionFunc) (*KvStoreBadger, error) {
	db := &KvStoreBadger{
		// Set defaults
		gcEnabled:        true, // Enable GC by default for disk-backed stores
		blockCacheSize:   DefaultBlockCacheSize,
		indexCacheSize:   DefaultIndexCacheSize,
		valueLogFileSize: int64(DefaultValueLogFileSize),
		memTableSize:     int64(DefaultMemTableSize),
		valueThreshold:   int64(DefaultValueThreshold),
	}
	for _, opt := range opts {
		opt(db)
	}

	var kvDb *badger.DB
	var err error

	if db.dataDir == "" {
		// No dataDir, use in-memory config
		badgerOpts := badger.DefaultOptions("").
			WithLogger(newBadgerLogger(db.logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true).
			WithValueThreshold(db.valueThreshold)
		kvDb, err = badger.Open(badgerOpts)
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
			if err := os.MkdirAll(db.dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		kvDir := filepath.Join(
			db.dataDir,
			"kv",
		)
		badgerOpts := badger.DefaultOptions(kvDir).
			WithLogger(newBadgerLogger(db.logger)).
			WithLoggingLevel(badger.WARNING).
			WithBlockCacheSize(int64(db.blockCacheSize)). //nolint:gosec // blockCacheSize is controlled and reasonable
			WithIndexCacheSize(int64(db.indexCacheSize)). //nolint:gosec // indexCacheSize is controlled and reasonable
			WithValueLogFileSize(db.valueLogFileSize).
			WithMemTableSize(db.memTableSize).
			WithValueThreshold(db.valueThreshold).
			WithCompression(options.Snappy)
		kvDb, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	}
	db.db = kvDb
	if err := db.init(); err != nil {
		return db, err
	}
	return db, nil
}

func (d *KvStoreBadger) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Configure metrics
	if d.promRegistry != nil {
		d.registerKvMetrics()
	}
	// Configure GC
	if d.gcEnabled {
		d.gcTicker = time.NewTicker(5 * time.Minute)
		d.gcStopCh = make(chan struct{})
		d.gcWg.Add(1)
		go d.valueLogGc(d.gcTicker, d.gcStopCh)
	}
	return nil
}

func (d *KvStoreBadger) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := d.DB().RunValueLogGC(0.5)
			if err != nil {
				// Log any actual errors
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						fmt.Sprintf("kv DB: GC failure: %s", err),
						"component", "database",
					)
				}
			} else {
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// Start implements the plugin.Plugin interface
func (d *KvStoreBadger) Start() error {
	// Database is already started in New(), so this is a no-op
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *KvStoreBadger) Stop() error {
	return d.Close()
}

// Close stops the GC goroutine and closes the database handle
func (d *KvStoreBadger) Close() error {
	if d.gcTicker != nil {
		d.gcTicker.Stop()
		if d.gcStopCh != nil {
			close(d.gcStopCh)
			d.gcStopCh = nil
		}
		// Wait for GC goroutine to finish
		d.gcWg.Wait()
		d.gcTicker = nil
	}
	db := d.DB()
	return db.Close()
}

// DB returns the database handle
func (d *KvStoreBadger) DB() *badger.DB {
	return d.db
}

// Capabilities implements the kv.Store interface
func (d *KvStoreBadger) Capabilities() kv.Capabilities {
	return kv.Capabilities{IndexScans: true}
}

// NewTransaction creates a new badger transaction
func (d *KvStoreBadger) NewTransaction(readWrite bool) kv.Txn {
	return newBadgerTxn(d, d.DB().NewTransaction(readWrite))
}

// Get retrieves a value from badger within a transaction
func (d *KvStoreBadger) Get(
	txn kv.Txn,
	collection string,
	key []byte,
) ([]byte, error) {
	badgerTxn, err := d.validateTxn(txn)
	if err != nil {
		return nil, err
	}
	item, err := badgerTxn.tx.Get(
		append(collectionPrefix(collection), key...),
	)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, kv.ErrKeyNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Set stores a key-value pair in badger within a transaction
func (d *KvStoreBadger) Set(
	txn kv.Txn,
	collection string,
	key, value []byte,
) error {
	badgerTxn, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	err = badgerTxn.tx.Set(
		append(collectionPrefix(collection), key...),
		value,
	)
	if errors.Is(err, badger.ErrReadOnlyTxn) {
		return kv.ErrTxnReadOnly
	}
	return err
}

// Delete removes a key from badger within a transaction
func (d *KvStoreBadger) Delete(
	txn kv.Txn,
	collection string,
	key []byte,
) error {
	badgerTxn, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	err = badgerTxn.tx.Delete(
		append(collectionPrefix(collection), key...),
	)
	if errors.Is(err, badger.ErrReadOnlyTxn) {
		return kv.ErrTxnReadOnly
	}
	return err
}

// NewIterator creates an iterator over one collection within a transaction.
// Items returned by the iterator must only be accessed while the
// transaction used to create it is still active
func (d *KvStoreBadger) NewIterator(
	txn kv.Txn,
	opts kv.IteratorOptions,
) kv.Iterator {
	badgerTxn, err := d.validateTxn(txn)
	if err != nil {
		return &errorIterator{err: err}
	}
	base := collectionPrefix(opts.Collection)
	full := append(bytes.Clone(base), opts.Prefix...)
	iterOpts := badger.IteratorOptions{
		Prefix:  full,
		Reverse: opts.Reverse,
	}
	return &badgerIterator{
		iter:    badgerTxn.tx.NewIterator(iterOpts),
		base:    base,
		full:    full,
		reverse: opts.Reverse,
	}
}

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

package walletdb

import (
	"errors"

	"github.com/emberlabs-io/walletdb/database"
)

// WalletDB couples the persistence layer with an optional background
// sync service
type WalletDB struct {
	config Config
	db     *database.Database
	syncer *SyncService
}

// New opens (and migrates, if needed) the wallet database using the
// configured storage plugin
func New(cfg Config) (*WalletDB, error) {
	db, err := database.New(
		cfg.kvPlugin,
		cfg.dataDir,
		cfg.logger,
		cfg.promRegistry,
	)
	if err != nil {
		return nil, err
	}
	return &WalletDB{
		config: cfg,
		db:     db,
	}, nil
}

// Database returns the underlying database
func (w *WalletDB) Database() *database.Database {
	return w.db
}

// StartSync launches the background sync service against the given
// transport. Calling it again replaces a previously started service
func (w *WalletDB) StartSync(transport Transport) error {
	if w.syncer != nil {
		if err := w.syncer.Stop(); err != nil {
			return err
		}
	}
	w.syncer = NewSyncService(w.db, transport, w.config)
	return w.syncer.Start()
}

// Syncer returns the running sync service, or nil if sync was never
// started
func (w *WalletDB) Syncer() *SyncService {
	return w.syncer
}

// Close stops the sync service and closes the database
func (w *WalletDB) Close() error {
	var err error
	if w.syncer != nil {
		err = errors.Join(err, w.syncer.Stop())
		w.syncer = nil
	}
	if w.db != nil {
		err = errors.Join(err, w.db.Close())
	}
	return err
}

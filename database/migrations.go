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
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/emberlabs-io/walletdb/database/models"
)

// The released migration history. Entries are append-only: shipped
// migrations are never edited or reordered
var migrations = []migration{
	{
		description: "core collections",
		apply:       migrateCoreCollections,
	},
	{
		description: "sync queues and revision counter",
		apply:       migrateSyncCollections,
	},
	{
		description: "payment index backfill",
		apply:       migratePaymentIndexes,
	},
	{
		description: "lnurl description backfill",
		apply:       migrateLnurlDescriptions,
	},
	{
		description: "sync state reset",
		apply:       migrateSyncReset,
	},
	{
		description: "outgoing sequence counter",
		apply:       migrateOutgoingSequence,
	},
}

// Collections are created lazily by the storage engines, so the initial
// schema needs no structural work. The entry stays to anchor the version
// numbering of the releases that shipped it
func migrateCoreCollections(d *Database, txn *Txn) error {
	return nil
}

func migrateSyncCollections(d *Database, txn *Txn) error {
	return d.store.Set(
		txn.Kv(),
		collectionSyncRevision,
		[]byte(syncRevisionKey),
		uint64ToBytes(0),
	)
}

// migratePaymentIndexes builds the timestamp, invoice and parent-id index
// collections from existing rows. Snapshot first, then write, since engine
// cursors are not safe across concurrent writes to the iterated collection
func migratePaymentIndexes(d *Database, txn *Txn) error {
	payments, err := d.snapshotCollection(txn, collectionPayments)
	if err != nil {
		return err
	}
	for _, item := range payments {
		var payment models.Payment
		if err := json.Unmarshal(item.value, &payment); err != nil {
			return fmt.Errorf("payment %q: %w", item.key, err)
		}
		err := d.store.Set(
			txn.Kv(),
			collectionPaymentsByTime,
			PaymentTimeKey(payment.Timestamp, payment.ID),
			[]byte(payment.ID),
		)
		if err != nil {
			return err
		}
		if invoice := payment.Invoice(); invoice != "" {
			err := d.store.Set(
				txn.Kv(),
				collectionPaymentsByInvoice,
				[]byte(invoice),
				[]byte(payment.ID),
			)
			if err != nil {
				return err
			}
		}
	}
	metadata, err := d.snapshotCollection(txn, collectionPaymentMetadata)
	if err != nil {
		return err
	}
	for _, item := range metadata {
		var meta models.PaymentMetadata
		if err := json.Unmarshal(item.value, &meta); err != nil {
			return fmt.Errorf("payment metadata %q: %w", item.key, err)
		}
		if meta.ParentPaymentID == nil {
			continue
		}
		err := d.store.Set(
			txn.Kv(),
			collectionPaymentMetadataByParent,
			MetadataParentKey(*meta.ParentPaymentID, string(item.key)),
			item.key,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// migrateLnurlDescriptions backfills the metadata description field from
// stored LNURL pay info for rows that predate the field
func migrateLnurlDescriptions(d *Database, txn *Txn) error {
	metadata, err := d.snapshotCollection(txn, collectionPaymentMetadata)
	if err != nil {
		return err
	}
	for _, item := range metadata {
		var meta models.PaymentMetadata
		if err := json.Unmarshal(item.value, &meta); err != nil {
			return fmt.Errorf("payment metadata %q: %w", item.key, err)
		}
		if meta.LnurlDescription != nil || meta.LnurlPayInfo == nil {
			continue
		}
		description := meta.LnurlPayInfo.ExtractDescription()
		if description == nil {
			continue
		}
		meta.LnurlDescription = description
		encoded, err := json.Marshal(&meta)
		if err != nil {
			return err
		}
		err = d.store.Set(
			txn.Kv(),
			collectionPaymentMetadata,
			item.key,
			encoded,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// migrateSyncReset clears the sync queues and cursor after a
// forward-compatibility change in the record encoding, forcing a full
// resynchronization on next connect
func migrateSyncReset(d *Database, txn *Txn) error {
	for _, collection := range []string{
		collectionSyncOutgoing,
		collectionSyncIncoming,
		collectionSyncState,
	} {
		if err := d.clearCollection(txn, collection); err != nil {
			return err
		}
	}
	err := d.store.Set(
		txn.Kv(),
		collectionSyncRevision,
		[]byte(syncRevisionKey),
		uint64ToBytes(0),
	)
	if err != nil {
		return err
	}
	return d.store.Delete(
		txn.Kv(),
		collectionSettings,
		[]byte(SettingSyncInitialComplete),
	)
}

// migrateOutgoingSequence seeds the enqueue sequence counter from the
// highest pending outgoing revision, for stores written before the
// counter existed
func migrateOutgoingSequence(d *Database, txn *Txn) error {
	items, err := d.snapshotCollection(txn, collectionSyncOutgoing)
	if err != nil {
		return err
	}
	var seq uint64
	if len(items) > 0 {
		seq = binary.BigEndian.Uint64(items[len(items)-1].key)
	}
	return d.setOutgoingSeqTxn(txn, seq)
}

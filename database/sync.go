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
	"errors"
	"fmt"
	"math"

	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/emberlabs-io/walletdb/database/plugin/kv"
)

// AddOutgoingChange appends a local change to the outgoing ledger,
// assigning it the next local revision. The revision comes from a
// dedicated sequence key that every enqueue read-increments in its own
// transaction; the read anchors a conflict on the badger engine even
// when the ledger itself is empty, so concurrent callers never share a
// local revision
func (d *Database) AddOutgoingChange(change *models.RecordChange) error {
	if change == nil || change.ID.DataID == "" {
		return fmt.Errorf("%w: record id is required", ErrInvalidArgument)
	}
	return d.transact(true, func(txn *Txn) error {
		seq, err := d.outgoingSeqTxn(txn)
		if err != nil {
			return err
		}
		change.LocalRevision = seq + 1
		if err := d.setOutgoingSeqTxn(txn, change.LocalRevision); err != nil {
			return err
		}
		return d.putOutgoingTxn(txn, change)
	})
}

// CompleteOutgoingSync acknowledges a pushed change: the outgoing entry
// is removed, the returned authoritative record becomes the new synced
// state, and the last-revision high-water mark is raised. All three
// happen in one transaction so a crash never acks without recording
func (d *Database) CompleteOutgoingSync(
	record models.Record,
	localRevision uint64,
) error {
	return d.transact(true, func(txn *Txn) error {
		err := d.store.Delete(
			txn.Kv(),
			collectionSyncOutgoing,
			OutgoingChangeKey(localRevision),
		)
		if err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
			return fmt.Errorf(
				"delete outgoing change %d: %w",
				localRevision,
				err,
			)
		}
		if err := d.setSyncStateTxn(txn, record); err != nil {
			return err
		}
		return d.raiseLastRevisionTxn(txn, record.Revision)
	})
}

// PendingOutgoingChanges returns up to limit unsynced local changes in
// local revision order, each paired with the last synced state of its
// record if one exists
func (d *Database) PendingOutgoingChanges(
	limit uint32,
) ([]models.OutgoingChange, error) {
	if limit == 0 {
		limit = math.MaxUint32
	}
	var changes []models.OutgoingChange
	err := d.transact(false, func(txn *Txn) error {
		changes = nil
		iter := d.store.NewIterator(txn.Kv(), kv.IteratorOptions{
			Collection: collectionSyncOutgoing,
		})
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if uint32(len(changes)) >= limit {
				break
			}
			value, err := iter.Value()
			if err != nil {
				return err
			}
			var change models.RecordChange
			if err := json.Unmarshal(value, &change); err != nil {
				return CorruptRecordError{
					Collection: collectionSyncOutgoing,
					Key:        string(iter.Key()),
					Err:        err,
				}
			}
			parent, err := d.getSyncStateTxn(txn, change.ID)
			if err != nil {
				return err
			}
			changes = append(changes, models.OutgoingChange{
				Change: change,
				Parent: parent,
			})
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// LatestOutgoingChange returns the most recently queued local change, or
// nil when the outgoing ledger is empty
func (d *Database) LatestOutgoingChange() (*models.RecordChange, error) {
	var latest *models.RecordChange
	err := d.transact(false, func(txn *Txn) error {
		var err error
		latest, err = d.latestOutgoingTxn(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// RebasePendingOutgoing renumbers pending outgoing changes so the local
// sequence continues above the given authoritative revision, preserving
// relative order. Changes already numbered above it are left alone
func (d *Database) RebasePendingOutgoing(revision uint64) error {
	return d.transact(true, func(txn *Txn) error {
		items, err := d.snapshotCollection(txn, collectionSyncOutgoing)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		first := binary.BigEndian.Uint64(items[0].key)
		if first > revision {
			return nil
		}
		// Delete every old key before writing any renumbered entry: the
		// old and new key ranges overlap when the floor lies inside the
		// pending range, and interleaving would destroy rewritten entries
		changes := make([]models.RecordChange, 0, len(items))
		for _, item := range items {
			var change models.RecordChange
			if err := json.Unmarshal(item.value, &change); err != nil {
				return CorruptRecordError{
					Collection: collectionSyncOutgoing,
					Key:        string(item.key),
					Err:        err,
				}
			}
			changes = append(changes, change)
			err := d.store.Delete(
				txn.Kv(),
				collectionSyncOutgoing,
				item.key,
			)
			if err != nil {
				return err
			}
		}
		next := revision + 1
		for i := range changes {
			changes[i].LocalRevision = next
			next++
			if err := d.putOutgoingTxn(txn, &changes[i]); err != nil {
				return err
			}
		}
		return d.raiseOutgoingSeqTxn(txn, next-1)
	})
}

// InsertIncomingRecords buffers remote records for later processing. A
// record arriving twice at the same revision overwrites its earlier copy
func (d *Database) InsertIncomingRecords(records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	return d.transact(true, func(txn *Txn) error {
		for i := range records {
			record := &records[i]
			encoded, err := json.Marshal(record)
			if err != nil {
				return err
			}
			err = d.store.Set(
				txn.Kv(),
				collectionSyncIncoming,
				IncomingRecordKey(record.Revision, record.ID),
				encoded,
			)
			if err != nil {
				return fmt.Errorf(
					"insert incoming record %d: %w",
					record.Revision,
					err,
				)
			}
		}
		return nil
	})
}

// IncomingChanges returns up to limit buffered remote records in revision
// order, each paired with the previously synced state of its record. The
// buffer entries are not consumed; callers delete each one after applying
// it, giving at-least-once processing
func (d *Database) IncomingChanges(
	limit uint32,
) ([]models.IncomingChange, error) {
	if limit == 0 {
		limit = math.MaxUint32
	}
	var changes []models.IncomingChange
	err := d.transact(false, func(txn *Txn) error {
		changes = nil
		iter := d.store.NewIterator(txn.Kv(), kv.IteratorOptions{
			Collection: collectionSyncIncoming,
		})
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if uint32(len(changes)) >= limit {
				break
			}
			value, err := iter.Value()
			if err != nil {
				return err
			}
			var record models.Record
			if err := json.Unmarshal(value, &record); err != nil {
				return CorruptRecordError{
					Collection: collectionSyncIncoming,
					Key:        string(iter.Key()),
					Err:        err,
				}
			}
			oldState, err := d.getSyncStateTxn(txn, record.ID)
			if err != nil {
				return err
			}
			changes = append(changes, models.IncomingChange{
				NewState: record,
				OldState: oldState,
			})
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// DeleteIncomingRecord removes a processed record from the incoming
// buffer
func (d *Database) DeleteIncomingRecord(record models.Record) error {
	return d.transact(true, func(txn *Txn) error {
		err := d.store.Delete(
			txn.Kv(),
			collectionSyncIncoming,
			IncomingRecordKey(record.Revision, record.ID),
		)
		if err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
			return fmt.Errorf(
				"delete incoming record %d: %w",
				record.Revision,
				err,
			)
		}
		return nil
	})
}

// UpdateRecordFromIncoming records a remote record as the new synced
// state and raises the last-revision high-water mark
func (d *Database) UpdateRecordFromIncoming(record models.Record) error {
	return d.transact(true, func(txn *Txn) error {
		if err := d.setSyncStateTxn(txn, record); err != nil {
			return err
		}
		return d.raiseLastRevisionTxn(txn, record.Revision)
	})
}

// LastRevision returns the highest remote revision fully processed by
// this device, or zero for a fresh database
func (d *Database) LastRevision() (uint64, error) {
	var revision uint64
	err := d.transact(false, func(txn *Txn) error {
		var err error
		revision, err = d.lastRevisionTxn(txn)
		return err
	})
	if err != nil {
		return 0, err
	}
	return revision, nil
}

func (d *Database) latestOutgoingTxn(
	txn *Txn,
) (*models.RecordChange, error) {
	iter := d.store.NewIterator(txn.Kv(), kv.IteratorOptions{
		Collection: collectionSyncOutgoing,
		Reverse:    true,
	})
	defer iter.Close()
	iter.Rewind()
	if !iter.Valid() {
		return nil, iter.Err()
	}
	value, err := iter.Value()
	if err != nil {
		return nil, err
	}
	var change models.RecordChange
	if err := json.Unmarshal(value, &change); err != nil {
		return nil, CorruptRecordError{
			Collection: collectionSyncOutgoing,
			Key:        string(iter.Key()),
			Err:        err,
		}
	}
	return &change, nil
}

func (d *Database) putOutgoingTxn(
	txn *Txn,
	change *models.RecordChange,
) error {
	encoded, err := json.Marshal(change)
	if err != nil {
		return err
	}
	err = d.store.Set(
		txn.Kv(),
		collectionSyncOutgoing,
		OutgoingChangeKey(change.LocalRevision),
		encoded,
	)
	if err != nil {
		return fmt.Errorf(
			"put outgoing change %d: %w",
			change.LocalRevision,
			err,
		)
	}
	return nil
}

func (d *Database) getSyncStateTxn(
	txn *Txn,
	id models.RecordID,
) (*models.Record, error) {
	val, err := d.store.Get(
		txn.Kv(),
		collectionSyncState,
		SyncStateKey(id),
	)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sync state %s: %w", id.DataID, err)
	}
	var record models.Record
	if err := json.Unmarshal(val, &record); err != nil {
		return nil, CorruptRecordError{
			Collection: collectionSyncState,
			Key:        string(SyncStateKey(id)),
			Err:        err,
		}
	}
	return &record, nil
}

func (d *Database) setSyncStateTxn(txn *Txn, record models.Record) error {
	encoded, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	err = d.store.Set(
		txn.Kv(),
		collectionSyncState,
		SyncStateKey(record.ID),
		encoded,
	)
	if err != nil {
		return fmt.Errorf(
			"set sync state %s: %w",
			record.ID.DataID,
			err,
		)
	}
	return nil
}

func (d *Database) lastRevisionTxn(txn *Txn) (uint64, error) {
	val, err := d.store.Get(
		txn.Kv(),
		collectionSyncRevision,
		[]byte(syncRevisionKey),
	)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get last revision: %w", err)
	}
	if len(val) != 8 {
		return 0, CorruptRecordError{
			Collection: collectionSyncRevision,
			Key:        syncRevisionKey,
			Err:        fmt.Errorf("unexpected length %d", len(val)),
		}
	}
	return binary.BigEndian.Uint64(val), nil
}

// outgoingSeqTxn reads the last assigned local revision
func (d *Database) outgoingSeqTxn(txn *Txn) (uint64, error) {
	val, err := d.store.Get(
		txn.Kv(),
		collectionSyncRevision,
		[]byte(syncOutgoingSeqKey),
	)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get outgoing sequence: %w", err)
	}
	if len(val) != 8 {
		return 0, CorruptRecordError{
			Collection: collectionSyncRevision,
			Key:        syncOutgoingSeqKey,
			Err:        fmt.Errorf("unexpected length %d", len(val)),
		}
	}
	return binary.BigEndian.Uint64(val), nil
}

func (d *Database) setOutgoingSeqTxn(txn *Txn, seq uint64) error {
	err := d.store.Set(
		txn.Kv(),
		collectionSyncRevision,
		[]byte(syncOutgoingSeqKey),
		uint64ToBytes(seq),
	)
	if err != nil {
		return fmt.Errorf("set outgoing sequence: %w", err)
	}
	return nil
}

// raiseOutgoingSeqTxn bumps the sequence counter so revisions assigned
// after a rebase continue above the renumbered entries
func (d *Database) raiseOutgoingSeqTxn(txn *Txn, seq uint64) error {
	current, err := d.outgoingSeqTxn(txn)
	if err != nil {
		return err
	}
	if seq <= current {
		return nil
	}
	return d.setOutgoingSeqTxn(txn, seq)
}

// raiseLastRevisionTxn bumps the high-water mark. The mark never moves
// backwards
func (d *Database) raiseLastRevisionTxn(
	txn *Txn,
	revision uint64,
) error {
	current, err := d.lastRevisionTxn(txn)
	if err != nil {
		return err
	}
	if revision <= current {
		return nil
	}
	err = d.store.Set(
		txn.Kv(),
		collectionSyncRevision,
		[]byte(syncRevisionKey),
		uint64ToBytes(revision),
	)
	if err != nil {
		return fmt.Errorf("set last revision: %w", err)
	}
	return nil
}

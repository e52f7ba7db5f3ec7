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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/emberlabs-io/walletdb/database/plugin/kv"
)

// AddDeposit records an unclaimed deposit. If a row already exists for
// the same outpoint the call is a no-op, preserving any claim error or
// refund details recorded since
func (d *Database) AddDeposit(
	txid string,
	vout uint32,
	amountSats uint64,
) error {
	if txid == "" {
		return fmt.Errorf("%w: txid is required", ErrInvalidArgument)
	}
	return d.transact(true, func(txn *Txn) error {
		key := DepositKey(txid, vout)
		_, err := d.store.Get(txn.Kv(), collectionUnclaimedDeposits, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, kv.ErrKeyNotFound) {
			return fmt.Errorf("get deposit %s:%d: %w", txid, vout, err)
		}
		encoded, err := json.Marshal(&models.DepositInfo{
			Txid:       txid,
			Vout:       vout,
			AmountSats: amountSats,
		})
		if err != nil {
			return err
		}
		err = d.store.Set(
			txn.Kv(),
			collectionUnclaimedDeposits,
			key,
			encoded,
		)
		if err != nil {
			return fmt.Errorf("add deposit %s:%d: %w", txid, vout, err)
		}
		return nil
	})
}

// UpdateDeposit applies a claim-error or refund update to an unclaimed
// deposit. The two outcomes are mutually exclusive: recording one clears
// the other. Updating an unknown outpoint is a silent no-op
func (d *Database) UpdateDeposit(
	txid string,
	vout uint32,
	update models.DepositUpdate,
) error {
	if update.ClaimError == nil && update.Refund == nil {
		return fmt.Errorf(
			"%w: deposit update has no payload",
			ErrInvalidArgument,
		)
	}
	if update.ClaimError != nil && update.Refund != nil {
		return fmt.Errorf(
			"%w: deposit update has conflicting payloads",
			ErrInvalidArgument,
		)
	}
	return d.transact(true, func(txn *Txn) error {
		key := DepositKey(txid, vout)
		val, err := d.store.Get(
			txn.Kv(),
			collectionUnclaimedDeposits,
			key,
		)
		if err != nil {
			if errors.Is(err, kv.ErrKeyNotFound) {
				// Deposit was claimed and removed in the meantime
				return nil
			}
			return fmt.Errorf("get deposit %s:%d: %w", txid, vout, err)
		}
		var deposit models.DepositInfo
		if err := json.Unmarshal(val, &deposit); err != nil {
			return CorruptRecordError{
				Collection: collectionUnclaimedDeposits,
				Key:        fmt.Sprintf("%s:%d", txid, vout),
				Err:        err,
			}
		}
		if update.ClaimError != nil {
			deposit.ClaimError = update.ClaimError
			deposit.RefundTx = nil
			deposit.RefundTxID = nil
		} else {
			deposit.ClaimError = nil
			deposit.RefundTx = &update.Refund.RefundTx
			deposit.RefundTxID = &update.Refund.RefundTxid
		}
		encoded, err := json.Marshal(&deposit)
		if err != nil {
			return err
		}
		err = d.store.Set(
			txn.Kv(),
			collectionUnclaimedDeposits,
			key,
			encoded,
		)
		if err != nil {
			return fmt.Errorf("update deposit %s:%d: %w", txid, vout, err)
		}
		return nil
	})
}

// DeleteDeposit removes an unclaimed deposit. Deleting an unknown
// outpoint is not an error
func (d *Database) DeleteDeposit(txid string, vout uint32) error {
	return d.transact(true, func(txn *Txn) error {
		err := d.store.Delete(
			txn.Kv(),
			collectionUnclaimedDeposits,
			DepositKey(txid, vout),
		)
		if err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
			return fmt.Errorf("delete deposit %s:%d: %w", txid, vout, err)
		}
		return nil
	})
}

// ListDeposits returns all unclaimed deposits in outpoint key order
func (d *Database) ListDeposits() ([]models.DepositInfo, error) {
	var deposits []models.DepositInfo
	err := d.transact(false, func(txn *Txn) error {
		deposits = nil
		return d.scanCollection(
			txn,
			kv.IteratorOptions{Collection: collectionUnclaimedDeposits},
			func(key, value []byte) error {
				var deposit models.DepositInfo
				if err := json.Unmarshal(value, &deposit); err != nil {
					return CorruptRecordError{
						Collection: collectionUnclaimedDeposits,
						Key:        string(key),
						Err:        err,
					}
				}
				deposits = append(deposits, deposit)
				return nil
			},
		)
	})
	if err != nil {
		return nil, err
	}
	return deposits, nil
}

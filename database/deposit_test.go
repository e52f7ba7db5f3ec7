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

package database_test

import (
	"errors"
	"testing"

	"github.com/emberlabs-io/walletdb/database"
	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndListDeposits(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			require.NoError(t, db.AddDeposit("txid-1", 0, 50000))
			require.NoError(t, db.AddDeposit("txid-1", 1, 70000))

			deposits, err := db.ListDeposits()
			require.NoError(t, err)
			require.Len(t, deposits, 2)
			assert.Equal(t, uint32(0), deposits[0].Vout)
			assert.Equal(t, uint64(50000), deposits[0].AmountSats)
			assert.Equal(t, uint32(1), deposits[1].Vout)

			// Re-adding the same outpoint keeps the original row
			require.NoError(t, db.AddDeposit("txid-1", 0, 99999))
			deposits, err = db.ListDeposits()
			require.NoError(t, err)
			require.Len(t, deposits, 2)
			assert.Equal(t, uint64(50000), deposits[0].AmountSats)
		})
	}
}

func TestUpdateDepositOutcomes(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			require.NoError(t, db.AddDeposit("txid-1", 0, 50000))

			// Record a claim error
			require.NoError(t, db.UpdateDeposit(
				"txid-1",
				0,
				models.DepositUpdate{
					ClaimError: &models.DepositClaimError{
						Kind:            models.DepositClaimErrorFeeExceeded,
						RequiredFeeSats: 1200,
					},
				},
			))
			deposits, err := db.ListDeposits()
			require.NoError(t, err)
			require.NotNil(t, deposits[0].ClaimError)
			assert.Nil(t, deposits[0].RefundTx)

			// A refund clears the claim error
			require.NoError(t, db.UpdateDeposit(
				"txid-1",
				0,
				models.DepositUpdate{
					Refund: &models.DepositRefund{
						RefundTxid: "refund-txid",
						RefundTx:   "0200...",
					},
				},
			))
			deposits, err = db.ListDeposits()
			require.NoError(t, err)
			assert.Nil(t, deposits[0].ClaimError)
			require.NotNil(t, deposits[0].RefundTxID)
			assert.Equal(t, "refund-txid", *deposits[0].RefundTxID)

			// Updating an unknown outpoint succeeds silently
			require.NoError(t, db.UpdateDeposit(
				"txid-9",
				4,
				models.DepositUpdate{
					Refund: &models.DepositRefund{RefundTxid: "x"},
				},
			))
		})
	}
}

func TestUpdateDepositInvalid(t *testing.T) {
	db := openTestDatabase(t, "badger")
	require.NoError(t, db.AddDeposit("txid-1", 0, 50000))

	// Empty update
	err := db.UpdateDeposit("txid-1", 0, models.DepositUpdate{})
	require.True(t, errors.Is(err, database.ErrInvalidArgument))

	// Both outcomes at once
	err = db.UpdateDeposit("txid-1", 0, models.DepositUpdate{
		ClaimError: &models.DepositClaimError{
			Kind: models.DepositClaimErrorGeneric,
		},
		Refund: &models.DepositRefund{RefundTxid: "x"},
	})
	require.True(t, errors.Is(err, database.ErrInvalidArgument))
}

func TestDeleteDeposit(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			require.NoError(t, db.AddDeposit("txid-1", 0, 50000))
			require.NoError(t, db.DeleteDeposit("txid-1", 0))
			deposits, err := db.ListDeposits()
			require.NoError(t, err)
			assert.Empty(t, deposits)

			// Deleting again is not an error
			require.NoError(t, db.DeleteDeposit("txid-1", 0))
		})
	}
}

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
	"testing"

	"github.com/emberlabs-io/walletdb/database"
	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPlugins = []string{"badger", "sqlite"}

// openTestDatabase opens an in-memory database using the named storage
// plugin
func openTestDatabase(t *testing.T, pluginName string) *database.Database {
	t.Helper()
	db, err := database.New(pluginName, "", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("unexpected error closing database: %s", err)
		}
	})
	return db
}

func TestCachedItems(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			// Missing key
			val, exists, err := db.GetCachedItem("fiat_currency")
			require.NoError(t, err)
			assert.False(t, exists)
			assert.Equal(t, "", val)

			// Round trip
			require.NoError(t, db.SetCachedItem("fiat_currency", "USD"))
			val, exists, err = db.GetCachedItem("fiat_currency")
			require.NoError(t, err)
			assert.True(t, exists)
			assert.Equal(t, "USD", val)

			// Overwrite
			require.NoError(t, db.SetCachedItem("fiat_currency", "EUR"))
			val, _, err = db.GetCachedItem("fiat_currency")
			require.NoError(t, err)
			assert.Equal(t, "EUR", val)

			// Delete, including a key that was never set
			require.NoError(t, db.DeleteCachedItem("fiat_currency"))
			_, exists, err = db.GetCachedItem("fiat_currency")
			require.NoError(t, err)
			assert.False(t, exists)
			require.NoError(t, db.DeleteCachedItem("never_set"))
		})
	}
}

func TestReopenPersists(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New("badger", dataDir, nil, nil)
	require.NoError(t, err)
	payment := testPayment("pmt-1", 1000)
	require.NoError(t, db.InsertPayment(payment))
	require.NoError(t, db.Close())

	// Reopening runs the migration path against an already-current
	// schema, which must change nothing
	db, err = database.New("badger", dataDir, nil, nil)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.GetPayment("pmt-1")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)
	assert.Equal(t, payment.Timestamp, got.Timestamp)

	revision, err := db.LastRevision()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), revision)
}

func TestUnknownPlugin(t *testing.T) {
	_, err := database.New("bogus", "", nil, nil)
	require.Error(t, err)
}

// testPayment builds a minimal completed lightning send payment
func testPayment(id string, timestamp uint64) *models.Payment {
	return &models.Payment{
		ID:        id,
		Type:      models.PaymentTypeSend,
		Status:    models.PaymentStatusCompleted,
		Amount:    models.NewAmount(21000),
		Fees:      models.NewAmount(12),
		Timestamp: timestamp,
		Method:    models.PaymentMethodLightning,
		Details: &models.PaymentDetails{
			Lightning: &models.LightningPaymentDetails{
				Invoice:           "lnbc1" + id,
				PaymentHash:       "hash-" + id,
				DestinationPubkey: "02deadbeef",
			},
		},
	}
}

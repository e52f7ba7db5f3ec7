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

package walletdb_test

import (
	"context"
	"sync"
	"testing"
	"time"

	walletdb "github.com/emberlabs-io/walletdb"
	"github.com/emberlabs-io/walletdb/database"
	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeTransport is an in-memory stand-in for the sync server. Pushed
// changes are assigned the next server revision and become pullable
// records
type fakeTransport struct {
	mutex    sync.Mutex
	records  []models.Record
	revision uint64
}

func (f *fakeTransport) seed(record models.Record) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.revision++
	record.Revision = f.revision
	f.records = append(f.records, record)
}

func (f *fakeTransport) Push(
	_ context.Context,
	changes []models.OutgoingChange,
) ([]walletdb.PushResult, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	results := make([]walletdb.PushResult, 0, len(changes))
	for _, change := range changes {
		f.revision++
		record := models.Record{
			ID:            change.Change.ID,
			Revision:      f.revision,
			SchemaVersion: change.Change.SchemaVersion,
			Data:          change.Merge().Data,
		}
		f.records = append(f.records, record)
		results = append(results, walletdb.PushResult{
			LocalRevision: change.Change.LocalRevision,
			Record:        record,
		})
	}
	return results, nil
}

func (f *fakeTransport) Pull(
	_ context.Context,
	sinceRevision uint64,
) ([]models.Record, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var out []models.Record
	for _, record := range f.records {
		if record.Revision > sinceRevision {
			out = append(out, record)
		}
	}
	return out, nil
}

func TestSyncServiceCycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w, err := walletdb.New(walletdb.NewConfig(
		walletdb.WithKvPlugin("sqlite"),
		// Long interval so only Start's immediate cycle and explicit
		// triggers run
		walletdb.WithSyncInterval(time.Hour),
	))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, w.Close())
	}()
	db := w.Database()

	// A payment whose metadata arrives from another device
	require.NoError(t, db.InsertPayment(&models.Payment{
		ID:        "pmt-remote",
		Type:      models.PaymentTypeReceive,
		Status:    models.PaymentStatusCompleted,
		Amount:    models.NewAmount(1000),
		Timestamp: 100,
		Method:    models.PaymentMethodLightning,
		Details: &models.PaymentDetails{
			Lightning: &models.LightningPaymentDetails{
				Invoice:     "lnbc1remote",
				PaymentHash: "hash-remote",
			},
		},
	}))

	transport := &fakeTransport{}
	transport.seed(models.Record{
		ID: models.RecordID{
			Type:   models.RecordTypePaymentMetadata,
			DataID: "pmt-remote",
		},
		SchemaVersion: "1.0",
		Data:          map[string]string{"lnurlDescription": "gift"},
	})

	// A local change waiting to be pushed
	require.NoError(t, db.AddOutgoingChange(&models.RecordChange{
		ID: models.RecordID{
			Type:   models.RecordTypePaymentMetadata,
			DataID: "pmt-local",
		},
		SchemaVersion: "1.0",
		UpdatedFields: map[string]string{"lnurlDescription": "local"},
	}))

	require.NoError(t, w.StartSync(transport))

	require.Eventually(t, func() bool {
		pending, err := db.PendingOutgoingChanges(0)
		if err != nil || len(pending) > 0 {
			return false
		}
		revision, err := db.LastRevision()
		return err == nil && revision >= 2
	}, 10*time.Second, 10*time.Millisecond)

	// The pulled record folded into the metadata table
	payment, err := db.GetPayment("pmt-remote")
	require.NoError(t, err)
	require.NotNil(t, payment.Details.Lightning.Description)
	assert.Equal(t, "gift", *payment.Details.Lightning.Description)

	// The pushed change became synced state
	latest, err := db.LatestOutgoingChange()
	require.NoError(t, err)
	assert.Nil(t, latest)

	// First full cycle marks initial sync complete
	_, complete, err := db.GetCachedItem(
		database.SettingSyncInitialComplete,
	)
	require.NoError(t, err)
	assert.True(t, complete)

	// The device identifier is generated on first start and persisted
	clientID := w.Syncer().ClientID()
	_, err = uuid.Parse(clientID)
	require.NoError(t, err)
	storedID, found, err := db.GetCachedItem(database.SettingSyncClientID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, clientID, storedID)

	// Triggering with nothing queued is harmless
	w.Syncer().Trigger()
}

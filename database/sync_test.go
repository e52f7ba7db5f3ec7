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
	"fmt"
	"sync"
	"testing"

	"github.com/emberlabs-io/walletdb/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadataRecordID(dataID string) models.RecordID {
	return models.RecordID{
		Type:   models.RecordTypePaymentMetadata,
		DataID: dataID,
	}
}

func TestAddOutgoingChangeSequence(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			for i := 1; i <= 3; i++ {
				change := &models.RecordChange{
					ID:            metadataRecordID(fmt.Sprintf("pmt-%d", i)),
					SchemaVersion: "1.0",
					UpdatedFields: map[string]string{"lnurlDescription": "x"},
				}
				require.NoError(t, db.AddOutgoingChange(change))
				assert.Equal(t, uint64(i), change.LocalRevision)
			}

			latest, err := db.LatestOutgoingChange()
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, uint64(3), latest.LocalRevision)

			pending, err := db.PendingOutgoingChanges(0)
			require.NoError(t, err)
			require.Len(t, pending, 3)
			// Oldest first
			assert.Equal(t, uint64(1), pending[0].Change.LocalRevision)
			assert.Equal(t, uint64(3), pending[2].Change.LocalRevision)
			// No synced state yet, so no parent
			assert.Nil(t, pending[0].Parent)
		})
	}
}

func TestAddOutgoingChangeConcurrent(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			testAddOutgoingChangeConcurrent(t, pluginName)
		})
	}
}

// Both engines must hold the no-shared-revision guarantee: sqlite
// serializes writers with a store-level mutex, while badger relies on
// the sequence key giving every enqueue a conflicting read-modify-write
func testAddOutgoingChangeConcurrent(t *testing.T, pluginName string) {
	db := openTestDatabase(t, pluginName)

	var wg sync.WaitGroup
	const workers = 4
	const perWorker = 5
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				change := &models.RecordChange{
					ID: metadataRecordID(
						fmt.Sprintf("pmt-%d-%d", w, i),
					),
					SchemaVersion: "1.0",
					UpdatedFields: map[string]string{},
				}
				if err := db.AddOutgoingChange(change); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	pending, err := db.PendingOutgoingChanges(0)
	require.NoError(t, err)
	require.Len(t, pending, workers*perWorker)
	seen := make(map[uint64]bool)
	for _, change := range pending {
		assert.False(t, seen[change.Change.LocalRevision])
		seen[change.Change.LocalRevision] = true
	}
}

func TestCompleteOutgoingSync(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			change := &models.RecordChange{
				ID:            metadataRecordID("pmt-1"),
				SchemaVersion: "1.0",
				UpdatedFields: map[string]string{"lnurlDescription": "x"},
			}
			require.NoError(t, db.AddOutgoingChange(change))

			record := models.Record{
				ID:            change.ID,
				Revision:      7,
				SchemaVersion: "1.0",
				Data:          map[string]string{"lnurlDescription": "x"},
			}
			require.NoError(
				t,
				db.CompleteOutgoingSync(record, change.LocalRevision),
			)

			pending, err := db.PendingOutgoingChanges(0)
			require.NoError(t, err)
			assert.Empty(t, pending)

			revision, err := db.LastRevision()
			require.NoError(t, err)
			assert.Equal(t, uint64(7), revision)

			// The acked record is the parent of the next change
			require.NoError(t, db.AddOutgoingChange(&models.RecordChange{
				ID:            change.ID,
				SchemaVersion: "1.0",
				UpdatedFields: map[string]string{"lnurlDescription": "y"},
			}))
			pending, err = db.PendingOutgoingChanges(0)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			require.NotNil(t, pending[0].Parent)
			assert.Equal(t, uint64(7), pending[0].Parent.Revision)
		})
	}
}

func TestLastRevisionMonotonic(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			revision, err := db.LastRevision()
			require.NoError(t, err)
			assert.Equal(t, uint64(0), revision)

			record := models.Record{
				ID:       metadataRecordID("pmt-1"),
				Revision: 5,
				Data:     map[string]string{},
			}
			require.NoError(t, db.UpdateRecordFromIncoming(record))
			revision, err = db.LastRevision()
			require.NoError(t, err)
			assert.Equal(t, uint64(5), revision)

			// A lower revision never lowers the mark
			record.Revision = 3
			require.NoError(t, db.UpdateRecordFromIncoming(record))
			revision, err = db.LastRevision()
			require.NoError(t, err)
			assert.Equal(t, uint64(5), revision)
		})
	}
}

func TestIncomingBuffer(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			records := []models.Record{
				{
					ID:       metadataRecordID("pmt-2"),
					Revision: 2,
					Data:     map[string]string{"lnurlDescription": "b"},
				},
				{
					ID:       metadataRecordID("pmt-1"),
					Revision: 1,
					Data:     map[string]string{"lnurlDescription": "a"},
				},
			}
			require.NoError(t, db.InsertIncomingRecords(records))

			// Drained oldest revision first, nothing consumed
			changes, err := db.IncomingChanges(0)
			require.NoError(t, err)
			require.Len(t, changes, 2)
			assert.Equal(t, uint64(1), changes[0].NewState.Revision)
			assert.Equal(t, uint64(2), changes[1].NewState.Revision)
			assert.Nil(t, changes[0].OldState)

			again, err := db.IncomingChanges(1)
			require.NoError(t, err)
			require.Len(t, again, 1)
			assert.Equal(t, uint64(1), again[0].NewState.Revision)

			// A duplicate arrival overwrites in place
			records[1].Data["lnurlDescription"] = "a2"
			require.NoError(
				t,
				db.InsertIncomingRecords(records[1:]),
			)
			changes, err = db.IncomingChanges(0)
			require.NoError(t, err)
			require.Len(t, changes, 2)
			assert.Equal(
				t,
				"a2",
				changes[0].NewState.Data["lnurlDescription"],
			)

			// Processing removes the entry and records the synced state
			require.NoError(t, db.DeleteIncomingRecord(changes[0].NewState))
			require.NoError(
				t,
				db.UpdateRecordFromIncoming(changes[0].NewState),
			)
			changes, err = db.IncomingChanges(0)
			require.NoError(t, err)
			require.Len(t, changes, 1)

			// The synced state now pairs as oldState for its record
			record := models.Record{
				ID:       metadataRecordID("pmt-1"),
				Revision: 9,
				Data:     map[string]string{},
			}
			require.NoError(
				t,
				db.InsertIncomingRecords([]models.Record{record}),
			)
			changes, err = db.IncomingChanges(0)
			require.NoError(t, err)
			require.Len(t, changes, 2)
			require.NotNil(t, changes[1].OldState)
			assert.Equal(t, uint64(1), changes[1].OldState.Revision)
		})
	}
}

func TestRebasePendingOutgoing(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			ids := []string{"pmt-a", "pmt-b", "pmt-c"}
			for _, id := range ids {
				require.NoError(t, db.AddOutgoingChange(&models.RecordChange{
					ID:            metadataRecordID(id),
					SchemaVersion: "1.0",
					UpdatedFields: map[string]string{},
				}))
			}

			// Remote advanced to revision 10; local 1..3 must shift above
			require.NoError(t, db.RebasePendingOutgoing(10))
			pending, err := db.PendingOutgoingChanges(0)
			require.NoError(t, err)
			require.Len(t, pending, 3)
			for i, id := range ids {
				assert.Equal(t, id, pending[i].Change.ID.DataID)
				assert.Equal(
					t,
					uint64(11+i),
					pending[i].Change.LocalRevision,
				)
			}

			// Already above the floor: a no-op
			require.NoError(t, db.RebasePendingOutgoing(5))
			pending, err = db.PendingOutgoingChanges(0)
			require.NoError(t, err)
			assert.Equal(t, uint64(11), pending[0].Change.LocalRevision)
		})
	}
}

func TestRebasePendingOutgoingOverlappingFloor(t *testing.T) {
	for _, pluginName := range testPlugins {
		t.Run(pluginName, func(t *testing.T) {
			db := openTestDatabase(t, pluginName)

			ids := []string{"pmt-a", "pmt-b", "pmt-c"}
			for _, id := range ids {
				require.NoError(t, db.AddOutgoingChange(&models.RecordChange{
					ID:            metadataRecordID(id),
					SchemaVersion: "1.0",
					UpdatedFields: map[string]string{},
				}))
			}

			// The floor lands inside the pending range: the renumbered
			// keys overlap the old ones, and no entry may be lost
			require.NoError(t, db.RebasePendingOutgoing(2))
			pending, err := db.PendingOutgoingChanges(0)
			require.NoError(t, err)
			require.Len(t, pending, 3)
			for i, id := range ids {
				assert.Equal(t, id, pending[i].Change.ID.DataID)
				assert.Equal(
					t,
					uint64(3+i),
					pending[i].Change.LocalRevision,
				)
			}

			// The next enqueue continues above the rebased range
			change := &models.RecordChange{
				ID:            metadataRecordID("pmt-d"),
				SchemaVersion: "1.0",
				UpdatedFields: map[string]string{},
			}
			require.NoError(t, db.AddOutgoingChange(change))
			assert.Equal(t, uint64(6), change.LocalRevision)
		})
	}
}

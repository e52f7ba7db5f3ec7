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
	"slices"

	"github.com/emberlabs-io/walletdb/database/models"
)

// Collection names. Index collections hold derived lookups maintained
// alongside their primary collection within the same transaction
const (
	collectionMeta                    = "meta"
	collectionSettings                = "settings"
	collectionPayments                = "payments"
	collectionPaymentsByTime          = "payments_by_time"
	collectionPaymentsByInvoice       = "payments_by_invoice"
	collectionPaymentMetadata         = "payment_metadata"
	collectionPaymentMetadataByParent = "payment_metadata_by_parent"
	collectionLnurlReceiveMetadata    = "lnurl_receive_metadata"
	collectionUnclaimedDeposits       = "unclaimed_deposits"
	collectionSyncOutgoing            = "sync_outgoing"
	collectionSyncIncoming            = "sync_incoming"
	collectionSyncState               = "sync_state"
	collectionSyncRevision            = "sync_revision"
)

const (
	metaKeySchemaVersion = "schema_version"
	syncRevisionKey      = "last"
	syncOutgoingSeqKey   = "outgoing_seq"
)

// SettingSyncInitialComplete marks that the first full metadata sync has
// run. Clearing it forces a full resynchronization
const SettingSyncInitialComplete = "sync_initial_complete"

// SettingSyncClientID stores the generated identifier this device
// presents to the sync server
const SettingSyncClientID = "sync_client_id"

// keySeparator joins composite key parts. Parts that precede it must not
// contain a zero byte
const keySeparator = 0x00

func uint64ToBytes(input uint64) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, input)
	return ret
}

func uint32ToBytes(input uint32) []byte {
	ret := make([]byte, 4)
	binary.BigEndian.PutUint32(ret, input)
	return ret
}

// PaymentTimeKey orders payments by timestamp; the id suffix keeps keys
// unique for equal timestamps
func PaymentTimeKey(timestamp uint64, id string) []byte {
	key := uint64ToBytes(timestamp)
	key = append(key, keySeparator)
	key = append(key, []byte(id)...)
	return key
}

// MetadataParentKey indexes payment metadata rows by parent payment id
func MetadataParentKey(parentID, paymentID string) []byte {
	key := []byte(parentID)
	key = append(key, keySeparator)
	key = append(key, []byte(paymentID)...)
	return key
}

// MetadataParentPrefix is the prefix of all MetadataParentKey entries for
// one parent
func MetadataParentPrefix(parentID string) []byte {
	return append([]byte(parentID), keySeparator)
}

// DepositKey identifies a deposit by transaction output
func DepositKey(txid string, vout uint32) []byte {
	key := []byte(txid)
	key = append(key, keySeparator)
	key = append(key, uint32ToBytes(vout)...)
	return key
}

// OutgoingChangeKey orders pending outgoing changes by local revision
func OutgoingChangeKey(localRevision uint64) []byte {
	return uint64ToBytes(localRevision)
}

// IncomingRecordKey orders buffered incoming records by server revision;
// the record id suffix keeps duplicate revisions for distinct records
// addressable
func IncomingRecordKey(revision uint64, id models.RecordID) []byte {
	key := uint64ToBytes(revision)
	key = append(key, keySeparator)
	key = append(key, []byte(id.Type)...)
	key = append(key, keySeparator)
	key = append(key, []byte(id.DataID)...)
	return key
}

// SyncStateKey identifies the last-applied snapshot of a logical record
func SyncStateKey(id models.RecordID) []byte {
	key := []byte(id.Type)
	key = append(key, keySeparator)
	key = append(key, []byte(id.DataID)...)
	return key
}

// splitCompositeKey splits a composite key at the first separator
func splitCompositeKey(key []byte) ([]byte, []byte) {
	idx := slices.Index(key, byte(keySeparator))
	if idx < 0 {
		return key, nil
	}
	return key[:idx], key[idx+1:]
}

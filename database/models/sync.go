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

package models

// RecordType identifies the kind of synchronized record
type RecordType string

const (
	RecordTypePaymentMetadata RecordType = "payment_metadata"
	RecordTypeDeposit         RecordType = "deposit"
	RecordTypeSettings        RecordType = "settings"
)

// RecordID identifies a synchronized record by type and data key
type RecordID struct {
	Type   RecordType `json:"type"`
	DataID string     `json:"dataId"`
}

// Record is the authoritative state of one synchronized record as last
// confirmed by the sync server
type Record struct {
	ID RecordID `json:"id"`
	// Server-assigned global revision
	Revision      uint64            `json:"revision"`
	SchemaVersion string            `json:"schemaVersion"`
	Data          map[string]string `json:"data"`
}

// Merged returns the record's data applied on top of an optional parent
func (r *Record) Merged(parent *Record) Record {
	out := Record{
		ID:            r.ID,
		Revision:      r.Revision,
		SchemaVersion: r.SchemaVersion,
		Data:          make(map[string]string),
	}
	if parent != nil {
		for k, v := range parent.Data {
			out.Data[k] = v
		}
	}
	for k, v := range r.Data {
		out.Data[k] = v
	}
	return out
}

// RecordChange is one locally enqueued outbound mutation
type RecordChange struct {
	ID            RecordID          `json:"id"`
	SchemaVersion string            `json:"schemaVersion"`
	UpdatedFields map[string]string `json:"updatedFields"`
	// Local queue sequence, distinct from the server revision
	LocalRevision uint64 `json:"localRevision"`
}

// OutgoingChange pairs a pending change with the last known confirmed state
// of the same record
type OutgoingChange struct {
	Change RecordChange `json:"change"`
	Parent *Record      `json:"parent,omitempty"`
}

// Merge folds the change's updated fields on top of the parent state,
// producing the record to push
func (c *OutgoingChange) Merge() Record {
	out := Record{
		ID:            c.Change.ID,
		Revision:      c.Change.LocalRevision,
		SchemaVersion: c.Change.SchemaVersion,
		Data:          make(map[string]string),
	}
	if c.Parent != nil {
		for k, v := range c.Parent.Data {
			out.Data[k] = v
		}
	}
	for k, v := range c.Change.UpdatedFields {
		out.Data[k] = v
	}
	return out
}

// IncomingChange pairs a buffered remote record with the previously
// confirmed state, if any
type IncomingChange struct {
	NewState Record  `json:"newState"`
	OldState *Record `json:"oldState,omitempty"`
}

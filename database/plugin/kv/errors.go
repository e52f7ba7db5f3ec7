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

package kv

import "errors"

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	// Engines map their native not-found errors to this
	ErrKeyNotFound = errors.New("key not found")

	// ErrTxnConflict is returned on Commit when another transaction wrote
	// a key this transaction read. The caller should retry
	ErrTxnConflict = errors.New("transaction conflict")

	ErrTxnReadOnly  = errors.New("transaction is read-only")
	ErrTxnFinished  = errors.New("transaction already finished")
	ErrNilTxn       = errors.New("nil transaction")
	ErrTxnWrongType = errors.New("transaction from different store type")
	ErrStoreClosed  = errors.New("store is closed")
)

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
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when an operation is attempted before
	// the store is open
	ErrNotInitialized = errors.New("database not initialized")

	// ErrInvalidArgument is returned for malformed operation arguments,
	// such as an unknown deposit-update outcome
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotFoundError is returned by point lookups where absence is an error
type NotFoundError struct {
	Collection string
	Key        string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q not found", e.Collection, e.Key)
}

// CorruptRecordError is returned when a stored record fails to
// deserialize. It is fatal for that one record, not the whole operation
type CorruptRecordError struct {
	Err        error
	Collection string
	Key        string
}

func (e CorruptRecordError) Error() string {
	return fmt.Sprintf(
		"corrupt record %s/%q: %s",
		e.Collection,
		e.Key,
		e.Err,
	)
}

func (e CorruptRecordError) Unwrap() error {
	return e.Err
}

// MigrationError is returned when a schema upgrade aborts. The store is
// left unusable for the session
type MigrationError struct {
	Err         error
	FromVersion int
}

func (e MigrationError) Error() string {
	return fmt.Sprintf(
		"migration from schema version %d failed: %s",
		e.FromVersion,
		e.Err,
	)
}

func (e MigrationError) Unwrap() error {
	return e.Err
}

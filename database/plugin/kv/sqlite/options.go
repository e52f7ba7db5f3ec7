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

package sqlite

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type KvStoreSqliteOptionFunc func(*KvStoreSqlite)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) KvStoreSqliteOptionFunc {
	return func(s *KvStoreSqlite) {
		s.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) KvStoreSqliteOptionFunc {
	return func(s *KvStoreSqlite) {
		s.promRegistry = registry
	}
}

// WithDataDir specifies the data directory to use for storage
func WithDataDir(dataDir string) KvStoreSqliteOptionFunc {
	return func(s *KvStoreSqlite) {
		s.dataDir = dataDir
	}
}

// WithIndexScans specifies whether callers may use secondary-index
// collections as a fast path. Disabling it forces the conservative
// full-scan read path
func WithIndexScans(enabled bool) KvStoreSqliteOptionFunc {
	return func(s *KvStoreSqlite) {
		s.indexScans = enabled
	}
}

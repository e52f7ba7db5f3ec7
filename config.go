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

package walletdb

import (
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultKvPlugin     = "badger"
	defaultSyncInterval = 30 * time.Second
	defaultSyncBatch    = 100
)

type Config struct {
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	dataDir      string
	kvPlugin     string
	syncInterval time.Duration
	syncBatch    uint32
}

// ConfigOptionFunc is a type that represents functions that modify the config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new walletdb config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		kvPlugin:     defaultKvPlugin,
		syncInterval: defaultSyncInterval,
		syncBatch:    defaultSyncBatch,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The default
// is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithKvPlugin specifies the storage plugin to use
func WithKvPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.kvPlugin = plugin
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add
// metrics to. In most cases, prometheus.DefaultRegistry would be a good
// choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithSyncInterval specifies how often the background sync service runs a
// cycle. The default is 30 seconds
func WithSyncInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.syncInterval = interval
	}
}

// WithSyncBatchSize specifies how many records are pushed or applied per
// sync cycle step. The default is 100
func WithSyncBatchSize(size uint32) ConfigOptionFunc {
	return func(c *Config) {
		c.syncBatch = size
	}
}

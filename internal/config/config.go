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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "walletdb.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultKvPlugin     = "badger"
	DefaultSyncInterval = "30s"
)

type Config struct {
	DataDir      string `yaml:"dataDir"      split_words:"true"`
	KvPlugin     string `yaml:"kvPlugin"     envconfig:"WALLETDB_KV_PLUGIN"`
	SyncInterval string `yaml:"syncInterval" split_words:"true"`
	MetricsPort  uint   `yaml:"metricsPort"  split_words:"true"`
	Debug        bool   `yaml:"debug"`
}

var globalConfig = &Config{
	DataDir:      ".walletdb",
	KvPlugin:     DefaultKvPlugin,
	SyncInterval: DefaultSyncInterval,
	MetricsPort:  12798,
}

// LoadConfig loads configuration from the named YAML file (falling back
// to ~/.walletdb/walletdb.yaml, then /etc/walletdb/walletdb.yaml), then
// applies environment variable overrides
func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".walletdb", "walletdb.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/walletdb/walletdb.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	err := envconfig.Process("walletdb", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if _, err := globalConfig.SyncIntervalDuration(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

func (c *Config) SyncIntervalDuration() (time.Duration, error) {
	interval, err := time.ParseDuration(c.SyncInterval)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid syncInterval %q: %w",
			c.SyncInterval,
			err,
		)
	}
	return interval, nil
}

func GetConfig() *Config {
	return globalConfig
}

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

package plugin

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type Plugin interface {
	Start() error
	Stop() error
}

// Options carries the common construction parameters for storage plugins.
// An empty DataDir selects the plugin's in-memory mode
type Options struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	DataDir      string
}

// ErrorPlugin is a plugin that always returns an error on Start()
type ErrorPlugin struct {
	Err error
}

func (e *ErrorPlugin) Start() error {
	return e.Err
}

func (e *ErrorPlugin) Stop() error {
	return nil
}

// NewErrorPlugin creates a new error plugin that returns the given error on Start()
func NewErrorPlugin(err error) Plugin {
	return &ErrorPlugin{Err: err}
}

// StartPlugin gets a plugin from the registry, instantiates it with the
// given options, and starts it
func StartPlugin(pluginName string, opts Options) (Plugin, error) {
	entry := GetPlugin(pluginName)
	if entry == nil {
		return nil, fmt.Errorf("storage plugin '%s' not found", pluginName)
	}
	p := entry.NewFromOptionsFunc(opts)
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start storage plugin '%s': %w",
			pluginName,
			err,
		)
	}
	return p, nil
}

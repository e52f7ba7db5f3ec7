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

package plugin_test

import (
	"errors"
	"testing"

	"github.com/emberlabs-io/walletdb/database/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPlugin struct {
	startErr error
	started  bool
}

func (s *stubPlugin) Start() error {
	s.started = true
	return s.startErr
}

func (s *stubPlugin) Stop() error {
	return nil
}

func TestRegisterAndLookup(t *testing.T) {
	stub := &stubPlugin{}
	plugin.Register(plugin.PluginEntry{
		Name:        "test-stub",
		Description: "stub plugin for registry tests",
		NewFromOptionsFunc: func(opts plugin.Options) plugin.Plugin {
			return stub
		},
	})

	entry := plugin.GetPlugin("test-stub")
	require.NotNil(t, entry)
	assert.Equal(t, "test-stub", entry.Name)

	assert.Nil(t, plugin.GetPlugin("no-such-plugin"))

	names := []string{}
	for _, e := range plugin.GetPlugins() {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "test-stub")
}

func TestStartPlugin(t *testing.T) {
	startErr := errors.New("engine exploded")
	plugin.Register(plugin.PluginEntry{
		Name: "test-start-fail",
		NewFromOptionsFunc: func(opts plugin.Options) plugin.Plugin {
			return &stubPlugin{startErr: startErr}
		},
	})

	_, err := plugin.StartPlugin("test-start-fail", plugin.Options{})
	require.ErrorIs(t, err, startErr)

	_, err = plugin.StartPlugin("no-such-plugin", plugin.Options{})
	require.Error(t, err)
}

func TestErrorPlugin(t *testing.T) {
	wrapped := errors.New("unavailable")
	p := plugin.NewErrorPlugin(wrapped)
	require.ErrorIs(t, p.Start(), wrapped)
	require.NoError(t, p.Stop())
}

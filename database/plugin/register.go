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

import "sync"

// PluginEntry represents a registered storage plugin
type PluginEntry struct {
	NewFromOptionsFunc func(Options) Plugin
	Name               string
	Description        string
}

var (
	pluginEntries      []PluginEntry
	pluginEntriesMutex sync.RWMutex
)

// Register adds a plugin to the registry. It's normally called from a
// plugin package's init()
func Register(entry PluginEntry) {
	pluginEntriesMutex.Lock()
	defer pluginEntriesMutex.Unlock()
	pluginEntries = append(pluginEntries, entry)
}

// GetPlugin returns the registry entry with the given name, or nil
func GetPlugin(name string) *PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for i := range pluginEntries {
		if pluginEntries[i].Name == name {
			entry := pluginEntries[i]
			return &entry
		}
	}
	return nil
}

// GetPlugins returns all registered plugins
func GetPlugins() []PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	ret := make([]PluginEntry, len(pluginEntries))
	copy(ret, pluginEntries)
	return ret
}

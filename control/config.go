// File: control/config.go
// License: Apache-2.0
//
// Effective configuration published for inspection, with change listeners.

package control

import (
	"sync"
)

// ConfigStore is a key/value map with copy-on-read snapshots.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func(map[string]any)
}

// NewConfigStore initializes an empty store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]any),
	}
}

// GetSnapshot returns a copy of all values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.snapshotLocked()
}

// Get returns one value.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// SetConfig merges values and notifies listeners synchronously with the
// merged snapshot.
func (cs *ConfigStore) SetConfig(values map[string]any) {
	cs.mu.Lock()
	for k, v := range values {
		cs.config[k] = v
	}
	snap := cs.snapshotLocked()
	listeners := append([]func(map[string]any){}, cs.listeners...)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// OnChange registers a listener called after every SetConfig.
func (cs *ConfigStore) OnChange(fn func(map[string]any)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

func (cs *ConfigStore) snapshotLocked() map[string]any {
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

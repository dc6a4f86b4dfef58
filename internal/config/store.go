package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Store is a thread-safe, opaque key/value config surface backed by a typed
// Config snapshot. The `/api/config` get/set surface is a passthrough over
// arbitrary string keys per the UI's own contract, not a config-file loader —
// Store seeds its map from the typed Config once at startup and never
// round-trips changes back into typed fields.
type Store struct {
	mu   sync.Mutex
	data map[string]interface{}
}

// NewStore flattens cfg into the opaque map a Store serves.
func NewStore(cfg *Config) (*Store, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config snapshot: %w", err)
	}
	data := map[string]interface{}{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("flatten config snapshot: %w", err)
	}
	return &Store{data: data}, nil
}

// Get satisfies httpapi.ConfigStore.
func (s *Store) Get() (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

// Set satisfies httpapi.ConfigStore, merging patch into the live map.
func (s *Store) Set(patch map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range patch {
		s.data[k] = v
	}
	return nil
}

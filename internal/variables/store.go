// Package variables holds values extracted from responses during one pass of
// scripted steps.
package variables

import "strings"

// Store defines the interface for variable storage.
type Store interface {
	// Set stores a variable with the given key and value.
	Set(key, value string)

	// Get retrieves a variable by key. Returns (value, true) if found,
	// or ("", false) if the key is not present.
	Get(key string) (string, bool)
}

// MemoryStore is a map-based Store layered over read-only defaults. A store
// belongs to a single virtual user and does not require mutex protection.
type MemoryStore struct {
	variables map[string]string
	defaults  map[string]string
}

// NewLayered creates a MemoryStore that falls back to defaults for keys it
// does not hold. The defaults map is shared and never written.
func NewLayered(defaults map[string]string) *MemoryStore {
	return &MemoryStore{
		variables: make(map[string]string),
		defaults:  defaults,
	}
}

func (m *MemoryStore) Set(key, value string) {
	m.variables[key] = value
}

// Get looks the key up in the store and then in the defaults. Each layer is
// tried with the exact key first and then its lower-case form, since config
// files may arrive with folded keys.
func (m *MemoryStore) Get(key string) (string, bool) {
	if v, ok := lookup(m.variables, key); ok {
		return v, true
	}
	return lookup(m.defaults, key)
}

func lookup(values map[string]string, key string) (string, bool) {
	if values == nil {
		return "", false
	}
	if v, ok := values[key]; ok {
		return v, true
	}
	if lower := strings.ToLower(key); lower != key {
		v, ok := values[lower]
		return v, ok
	}
	return "", false
}

// Package model maintains the catalog of known LLM models: which provider
// serves them, per-token pricing, context limits, and capability flags.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Model is one catalog entry. Entries are immutable once registered.
type Model struct {
	Provider    string  `json:"provider"`
	ID          string  `json:"id"`
	InputCost   float64 `json:"input"`  // USD per input token
	OutputCost  float64 `json:"output"` // USD per output token
	Context     int     `json:"context"`
	Vision      bool    `json:"vision"`
	Tools       bool    `json:"tools"`
	Description string  `json:"description,omitempty"`
}

// UnknownModelError is returned when a lookup names a model that is not in
// the catalog. It is a fatal configuration error.
type UnknownModelError struct {
	ID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("model %q is not in the catalog", e.ID)
}

// Registry is the model catalog. It is built once at startup and read-only
// afterwards; the lock exists so independent prompt runs in one process can
// share it.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry returns a registry preloaded with the built-in catalog.
func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]Model)}
	r.Register(builtinCatalog())
	return r
}

// Register merges entries into the catalog. Last write wins per id.
func (r *Registry) Register(models map[string]Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range models {
		if m.ID == "" {
			m.ID = id
		}
		r.models[id] = m
	}
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	if !ok {
		return Model{}, &UnknownModelError{ID: id}
	}
	return m, nil
}

// Cost returns the dollar cost of a turn against the given model.
func (r *Registry) Cost(id string, tokensIn, tokensOut int) (float64, error) {
	m, err := r.Lookup(id)
	if err != nil {
		return 0, err
	}
	return float64(tokensIn)*m.InputCost + float64(tokensOut)*m.OutputCost, nil
}

// All returns every entry sorted by provider then id, for catalog listings.
func (r *Registry) All() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LoadFile merges a JSON overlay file ({"models": {id: entry}}) into the
// catalog. A missing file is not an error; a malformed one is.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read model overlay: %w", err)
	}
	var overlay struct {
		Models map[string]Model `json:"models"`
	}
	if err := json.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse model overlay %s: %w", path, err)
	}
	r.Register(overlay.Models)
	return nil
}

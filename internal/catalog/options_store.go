package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// optionsStore persists per-model recipe-option overrides saved by a
// previous load call (recipe_options.json) and resolves the effective
// options for a model by chaining recipe defaults with the saved override.
type optionsStore struct {
	path string
	mu   sync.RWMutex
	data map[string]model.Options
}

func loadOptionsStore(path string) (*optionsStore, error) {
	s := &optionsStore{path: path, data: map[string]model.Options{}}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// effective returns recipe defaults overlaid with any saved per-model
// override, the two least-specific links of the options inheritance chain.
// Load-call overrides are applied later, directly by the caller that owns
// the request, since they never get persisted here.
func (s *optionsStore) effective(name string, recipe model.Recipe) model.Options {
	base := model.RecipeDefaults(recipe)
	s.mu.RLock()
	saved, ok := s.data[name]
	s.mu.RUnlock()
	if !ok {
		return base
	}
	return model.Merge(base, saved)
}

// Save records o as the persisted override for name and rewrites the store.
func (s *optionsStore) Save(name string, recipe model.Recipe, o model.Options) error {
	if err := model.Validate(recipe, o); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = o
	return s.persist()
}

func (s *optionsStore) persist() error {
	if s.path == "" {
		return nil
	}
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

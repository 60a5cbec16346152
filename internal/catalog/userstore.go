package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// userEntry is the on-disk shape of one user_models.json value.
type userEntry struct {
	Checkpoint string       `json:"checkpoint"`
	Recipe     model.Recipe `json:"recipe"`
	Labels     []model.Label `json:"labels,omitempty"`
	MMProj     string       `json:"mmproj,omitempty"`
	Source     model.Source `json:"source,omitempty"`
}

// userStore persists user-registered models to user_models.json, rewriting
// it atomically (write-then-rename) under an advisory file lock.
type userStore struct {
	path string
	mu   sync.RWMutex
	data map[string]userEntry
}

func loadUserStore(path string) (*userStore, error) {
	s := &userStore{path: path, data: map[string]userEntry{}}
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

func (s *userStore) all() map[string]*model.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*model.Info, len(s.data))
	for name, e := range s.data {
		out[name] = userEntryToInfo(name, e)
	}
	return out
}

func userEntryToInfo(name string, e userEntry) *model.Info {
	labels := map[model.Label]bool{}
	for _, l := range e.Labels {
		labels[l] = true
	}
	checkpoints := map[string]string{model.RoleMain: e.Checkpoint}
	if e.MMProj != "" {
		checkpoints[model.RoleMMProj] = e.MMProj
		labels[model.LabelVision] = true
	}
	return &model.Info{
		ModelName:   name,
		Checkpoints: checkpoints,
		Recipe:      e.Recipe,
		Labels:      labels,
		Type:        model.DeriveType(e.Recipe, labels),
		Device:      model.DeviceForRecipe(e.Recipe, ""),
		Source:      e.Source,
	}
}

// Register validates and adds a user model, persisting the store.
func (s *userStore) Register(name, checkpoint string, recipe model.Recipe, labels []model.Label, mmproj string, source model.Source) error {
	if !model.IsUserModel(name) {
		return fmt.Errorf("user model name %q must have the \"user.\" prefix", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = userEntry{Checkpoint: checkpoint, Recipe: recipe, Labels: labels, MMProj: mmproj, Source: source}
	return s.persist()
}

// Delete removes a user model entry entirely.
func (s *userStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return s.persist()
}

func (s *userStore) persist() error {
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

// Package catalog implements the model catalogue and path resolver: it
// merges the shipped catalogue, user-registered models and an
// extra-models-directory filesystem scan into a single visible catalogue,
// resolves checkpoints to on-disk paths under a HuggingFace-style
// content-addressed cache, and orchestrates downloads.
package catalog

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/lemonade-sdk/lemonade-gateway/internal/download"
	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
	"github.com/lemonade-sdk/lemonade-gateway/internal/system"
)

// FLMInventory abstracts the FLM adapter's "flm list --filter installed
// --quiet" query, used for recipe-specific downloaded-status without the
// catalogue importing the FLM adapter package directly.
type FLMInventory interface {
	InstalledCheckpoints(ctx context.Context) (map[string]bool, error)
}

// Config configures a Catalog.
type Config struct {
	CacheRoot          string // HF_HUB_CACHE-equivalent root
	StateDir           string // directory holding user_models.json / recipe_options.json
	ExtraModelsDir     string
	DisableFiltering   bool
	Offline            bool
	HuggingFaceToken   string
	HTTPClient         *http.Client
	FLM                FLMInventory
}

// Catalog is the merged, filtered view over the shipped catalogue,
// user-registered models and extra-models directory, plus the download
// orchestration entry point.
type Catalog struct {
	log    logging.Logger
	cfg    Config
	engine *download.Engine
	hf     *hfClient
	report *system.Report

	mu      sync.RWMutex
	shipped map[string]*model.Info // read-only, loaded once
	user    *userStore
	options *optionsStore
	visible map[string]*model.Info // merged + resolved + filtered
	stale   bool
}

// New constructs a Catalog. shipped is the read-only baked-in catalogue
// (normally loaded from an embedded YAML file, see LoadShippedCatalogue).
func New(log logging.Logger, cfg Config, report *system.Report, shipped map[string]*model.Info) (*Catalog, error) {
	log = log.WithField("component", "catalog")
	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			return nil, err
		}
	}
	user, err := loadUserStore(filepath.Join(cfg.StateDir, "user_models.json"))
	if err != nil {
		return nil, err
	}
	opts, err := loadOptionsStore(filepath.Join(cfg.StateDir, "recipe_options.json"))
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		log:     log,
		cfg:     cfg,
		engine:  download.New(log, cfg.HTTPClient),
		hf:      newHFClient(cfg.HTTPClient, cfg.HuggingFaceToken),
		report:  report,
		shipped: shipped,
		user:    user,
		options: opts,
		stale:   true,
	}
	return c, nil
}

// Invalidate marks the merged view stale, forcing the next Snapshot (or any
// lookup) to rebuild it. Called after RegisterUser, Delete, and whenever the
// extra-models directory may have changed.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// ensureBuilt rebuilds c.visible if stale. It takes c.mu itself (a read lock
// to check, the write lock to rebuild), so callers must not hold c.mu.
func (c *Catalog) ensureBuilt() {
	c.mu.RLock()
	stale := c.stale
	c.mu.RUnlock()
	if !stale {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stale {
		return
	}

	merged := make(map[string]*model.Info, len(c.shipped))
	for name, info := range c.shipped {
		merged[name] = info.Clone()
	}
	for name, info := range c.user.all() {
		merged[name] = info.Clone()
	}
	for name, info := range scanExtraModelsDir(c.cfg.ExtraModelsDir) {
		merged[name] = info
	}

	for name, info := range merged {
		info.RecipeOptions = c.options.effective(name, info.Recipe)
		c.resolvePaths(info)
		c.probeGGUF(info)
	}

	c.computeDownloadedBulk(merged)

	if !c.cfg.DisableFiltering {
		for name, info := range merged {
			if reason := c.filterReason(info); reason != "" {
				info.FilterReason = reason
				delete(merged, name)
			}
		}
	}

	c.visible = merged
	c.stale = false
}

// Snapshot returns the current merged, filtered catalogue. Callers must not
// mutate the returned entries; use Clone if needed.
func (c *Catalog) Snapshot() map[string]*model.Info {
	c.ensureBuilt()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*model.Info, len(c.visible))
	for k, v := range c.visible {
		out[k] = v
	}
	return out
}

// Lookup returns the visible entry for name, or a model_not_found error
// carrying the filter reason when the entry exists but was filtered out.
func (c *Catalog) Lookup(name string) (*model.Info, error) {
	c.ensureBuilt()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if info, ok := c.visible[name]; ok {
		return info, nil
	}
	if info, ok := c.shipped[name]; ok {
		reason := c.filterReason(info)
		if reason == "" {
			reason = "model is not visible on this system"
		}
		return nil, gatewayerr.New(gatewayerr.KindModelNotFound, reason).WithModel(name)
	}
	if info, ok := c.user.all()[name]; ok {
		reason := c.filterReason(info)
		if reason == "" {
			reason = "model is not visible on this system"
		}
		return nil, gatewayerr.New(gatewayerr.KindModelNotFound, reason).WithModel(name)
	}
	return nil, gatewayerr.New(gatewayerr.KindModelNotFound, "model not registered").WithModel(name)
}

package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lemonade-sdk/lemonade-gateway/internal/download"
	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// PullProgressFunc mirrors download.ManifestProgressFunc at the catalogue
// boundary so callers don't need to import the download package directly.
type PullProgressFunc func(download.ManifestProgress) bool

// Pull downloads every checkpoint of name that isn't already resolved on
// disk. A model filtered out of the visible catalogue, one that isn't
// registered anywhere, or one whose llamacpp checkpoint carries no GGUF
// variant all fail fast with a tagged error before any network activity;
// a filtered-out model fails with model_not_found carrying its filter
// reason. FLM-recipe models are not downloaded: Pull returns
// unsupported_operation for them.
func (c *Catalog) Pull(ctx context.Context, name string, doNotUpgrade bool, progress PullProgressFunc) error {
	info, err := c.resolveForPull(name)
	if err != nil {
		return err
	}

	if info.Recipe == model.RecipeFLM {
		return gatewayerr.New(gatewayerr.KindUnsupportedOperation,
			"flm models are managed by the flm CLI, not by pull").WithModel(name)
	}

	if info.Recipe == model.RecipeLlamaCpp {
		if _, variant := SplitCheckpoint(info.Checkpoints[model.RoleMain]); variant == "" {
			return gatewayerr.New(gatewayerr.KindInvalidRequest,
				"llamacpp checkpoints require an explicit GGUF variant, e.g. org/repo:Q4_K_M").WithModel(name)
		}
	}

	if doNotUpgrade && info.Downloaded {
		return nil
	}

	if c.cfg.Offline {
		return gatewayerr.New(gatewayerr.KindDownloadFailed,
			"gateway is running offline; cannot download uncached model").WithModel(name)
	}

	manifest, snapshotDir, err := c.buildManifest(ctx, info)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindDownloadFailed, err, "failed to list files to download").WithModel(name)
	}

	manifestPath := download.ManifestPath(snapshotDir)
	if err := download.WriteManifest(manifestPath, manifest); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindDownloadFailed, err, "failed to persist download manifest").WithModel(name)
	}

	err = c.engine.DownloadManifest(ctx, manifest, c.hf.Headers(), func(p download.ManifestProgress) bool {
		if progress == nil {
			return true
		}
		return progress(p)
	})
	if err != nil {
		if ctx.Err() != nil {
			return gatewayerr.Wrap(gatewayerr.KindDownloadCancelled, err, "download cancelled").WithModel(name)
		}
		return gatewayerr.Wrap(gatewayerr.KindDownloadFailed, err, "download failed").WithModel(name)
	}

	os.Remove(manifestPath)
	c.Invalidate()
	return nil
}

// resolveForPull looks up name in the visible catalogue, then in the shipped
// and user sources. A registered entry hidden by filtering fails with
// model_not_found carrying its filter reason.
func (c *Catalog) resolveForPull(name string) (*model.Info, error) {
	c.ensureBuilt()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if info, ok := c.visible[name]; ok {
		return info, nil
	}
	info, ok := c.shipped[name]
	if !ok {
		info, ok = c.user.all()[name]
	}
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindModelNotFound, "model not registered").WithModel(name)
	}
	if !c.cfg.DisableFiltering {
		if reason := c.filterReason(info); reason != "" {
			return nil, gatewayerr.New(gatewayerr.KindModelNotFound, reason).WithModel(name)
		}
	}
	return info, nil
}

// buildManifest lists every checkpoint's remote repo and turns the
// not-yet-resolved files into a download.Manifest rooted at the repo's
// snapshot cache directory.
func (c *Catalog) buildManifest(ctx context.Context, info *model.Info) (download.Manifest, string, error) {
	var manifest download.Manifest
	var dir string

	for role, checkpoint := range info.Checkpoints {
		if _, ok := info.ResolvedPaths[role]; ok {
			continue
		}
		repo, variant := SplitCheckpoint(checkpoint)
		if dir == "" {
			dir = repoCacheDir(c.cfg.CacheRoot, repo) + "/snapshots/main"
		}

		files, err := c.hf.ListFiles(ctx, repo, "main")
		if err != nil {
			return manifest, "", fmt.Errorf("list files for %s: %w", repo, err)
		}

		for _, f := range files {
			if variant != "" && !matchesVariant(f.Path, variant) {
				continue
			}
			manifest.Files = append(manifest.Files, download.ManifestFile{
				Name:   f.Path,
				URL:    c.hf.FileURL(repo, "main", f.Path),
				Size:   f.Size,
				Digest: f.Digest(),
			})
		}
	}

	if dir == "" {
		return manifest, "", fmt.Errorf("nothing to download")
	}
	manifest.DownloadPath = dir
	manifest.FilesCount = len(manifest.Files)
	return manifest, dir, nil
}

func matchesVariant(path, variant string) bool {
	return strings.Contains(strings.ToLower(path), strings.ToLower(variant))
}

// Delete removes a user-registered model's store entry. It does not remove
// the underlying cache files, mirroring the catalogue's separation between
// the registry (user_models.json) and the on-disk cache.
func (c *Catalog) Delete(name string) error {
	if !model.IsUserModel(name) {
		return gatewayerr.New(gatewayerr.KindInvalidRequest, "only user.-prefixed models can be deleted").WithModel(name)
	}
	if err := c.user.Delete(name); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// RegisterUser adds a user-registered model and invalidates the merged view.
func (c *Catalog) RegisterUser(name, checkpoint string, recipe model.Recipe, labels []model.Label, mmproj string, source model.Source) error {
	if err := c.user.Register(name, checkpoint, recipe, labels, mmproj, source); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// SaveOptions persists a per-model recipe-option override and invalidates
// the merged view so the next Snapshot reflects it.
func (c *Catalog) SaveOptions(name string, recipe model.Recipe, o model.Options) error {
	if err := c.options.Save(name, recipe, o); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

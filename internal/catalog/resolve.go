package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// repoCacheDir returns the HuggingFace-hub-style cache directory for a repo,
// e.g. "<cacheRoot>/models--org--name".
func repoCacheDir(cacheRoot, repo string) string {
	return filepath.Join(cacheRoot, "models--"+strings.ReplaceAll(repo, "/", "--"))
}

// snapshotDir returns a resolved snapshot directory for a repo, or "" if the
// repo has never been downloaded. When several snapshot directories exist,
// the first in name order is returned.
func snapshotDir(cacheRoot, repo string) string {
	snapshots := filepath.Join(repoCacheDir(cacheRoot, repo), "snapshots")
	entries, err := os.ReadDir(snapshots)
	if err != nil || len(entries) == 0 {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(snapshots, e.Name())
		}
	}
	return ""
}

// resolvePaths fills info.ResolvedPaths from info.Checkpoints, applying a
// per-recipe file-selection rule within each checkpoint's cache snapshot.
// A checkpoint that is already an absolute filesystem path (local uploads,
// extra-models-directory entries) passes through unchanged when it exists.
func (c *Catalog) resolvePaths(info *model.Info) {
	resolved := make(map[string]string, len(info.Checkpoints))
	for role, checkpoint := range info.Checkpoints {
		if filepath.IsAbs(checkpoint) {
			if _, err := os.Stat(checkpoint); err == nil {
				resolved[role] = checkpoint
			}
			continue
		}

		repo, variant := SplitCheckpoint(checkpoint)
		dir := snapshotDir(c.cfg.CacheRoot, repo)
		if dir == "" {
			continue
		}
		if path := resolveInSnapshot(dir, info.Recipe, role, variant); path != "" {
			resolved[role] = path
		}
	}
	info.ResolvedPaths = resolved
}

func resolveInSnapshot(dir string, recipe model.Recipe, role, variant string) string {
	switch recipe {
	case model.RecipeRyzenAILLM:
		if found := findNamed(dir, "genai_config.json"); found != "" {
			return filepath.Dir(found)
		}
		return ""
	case model.RecipeKokoro:
		if found := findNamed(dir, "index.json"); found != "" {
			return filepath.Dir(found)
		}
		return ""
	case model.RecipeWhisperCpp:
		return smallestWithExt(dir, ".bin")
	case model.RecipeLlamaCpp:
		if role == model.RoleMMProj {
			return resolveLlamaCppVariant(dir, variant)
		}
		return resolveLlamaCppVariant(dir, variant)
	default:
		if variant == "" {
			return smallestWithExt(dir, "")
		}
		if found := findNamed(dir, variant); found != "" {
			return found
		}
		return ""
	}
}

// resolveLlamaCppVariant implements the five-step GGUF variant fallback: an
// empty or wildcard variant picks the first .gguf file; otherwise try an
// exact filename match, a basename ending in "<variant>.gguf", a
// folder-sharded "<variant>/" subdirectory, and finally fall back to the
// first .gguf found anywhere in the snapshot.
func resolveLlamaCppVariant(dir, variant string) string {
	if variant == "" || variant == "*" {
		return smallestWithExt(dir, ".gguf")
	}
	if found := findNamed(dir, variant); found != "" && strings.EqualFold(filepath.Ext(found), ".gguf") {
		return found
	}
	if found := findSuffix(dir, variant+".gguf"); found != "" {
		return found
	}
	shardDir := filepath.Join(dir, variant)
	if fi, err := os.Stat(shardDir); err == nil && fi.IsDir() {
		if found := smallestWithExt(shardDir, ".gguf"); found != "" {
			return found
		}
	}
	return smallestWithExt(dir, ".gguf")
}

func findNamed(dir, name string) string {
	var found string
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return nil
		}
		if !d.IsDir() && d.Name() == name {
			found = path
		}
		return nil
	})
	return found
}

func findSuffix(dir, suffix string) string {
	var found string
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), strings.ToLower(suffix)) {
			found = path
		}
		return nil
	})
	return found
}

func smallestWithExt(dir, ext string) string {
	var matches []string
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ext == "" || strings.EqualFold(filepath.Ext(d.Name()), ext) {
			matches = append(matches, path)
		}
		return nil
	})
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

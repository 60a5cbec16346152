package catalog

import (
	"context"
	"fmt"

	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
	"github.com/lemonade-sdk/lemonade-gateway/internal/system"
)

// filterReason returns a non-empty human-readable reason when info should
// be hidden from the visible catalogue: an unsupported recipe, the
// macOS-only-llamacpp rule, or a model whose on-disk size exceeds the
// largest usable memory pool.
func (c *Catalog) filterReason(info *model.Info) string {
	if c.report == nil {
		return ""
	}
	if system.MacOSOnlyLlamaCpp() && info.Recipe != model.RecipeLlamaCpp {
		return "only llamacpp is supported on this platform"
	}
	support, ok := c.report.Recipes[info.Recipe]
	if !ok || !support.Supported {
		if ok && support.ReasonIfUnsupported != "" {
			return support.ReasonIfUnsupported
		}
		return fmt.Sprintf("recipe %q is not supported on this system", info.Recipe)
	}
	if info.SizeGB <= 0 {
		return ""
	}
	sizeBytes := uint64(info.SizeGB * (1 << 30))
	if pool := c.report.LargestMemoryPool(); pool > 0 && sizeBytes > pool {
		return "model size exceeds the largest available memory pool"
	}
	return ""
}

// computeDownloadedBulk fills Downloaded for every entry in merged. Most
// recipes are considered downloaded when every checkpoint resolved to an
// on-disk path; FLM manages its own store so its status is delegated to the
// FLMInventory the catalogue was configured with.
func (c *Catalog) computeDownloadedBulk(merged map[string]*model.Info) {
	var flmInstalled map[string]bool
	if c.cfg.FLM != nil {
		if installed, err := c.cfg.FLM.InstalledCheckpoints(context.Background()); err == nil {
			flmInstalled = installed
		} else {
			c.log.WithError(err).Warn("failed to query FLM installed checkpoints")
		}
	}

	for _, info := range merged {
		if info.Recipe == model.RecipeFLM && flmInstalled != nil {
			for _, checkpoint := range info.Checkpoints {
				if flmInstalled[checkpoint] {
					info.Downloaded = true
					break
				}
			}
			continue
		}
		if len(info.Checkpoints) == 0 {
			continue
		}
		downloaded := true
		for role := range info.Checkpoints {
			if _, ok := info.ResolvedPaths[role]; !ok {
				downloaded = false
				break
			}
		}
		info.Downloaded = downloaded
	}
}

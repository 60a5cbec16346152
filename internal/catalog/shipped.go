package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

//go:embed shipped_catalogue.yaml
var shippedCatalogueYAML []byte

// shippedEntry is the on-disk YAML shape of one shipped catalogue row. It
// intentionally mirrors userEntry's flattened style rather than model.Info's
// wire shape, since the two evolve independently: the shipped catalogue is
// hand-authored and checked in, while model.Info also carries fields
// (ResolvedPaths, Downloaded, ...) that only make sense at runtime.
type shippedEntry struct {
	Checkpoint    string               `yaml:"checkpoint"`
	Recipe        model.Recipe         `yaml:"recipe"`
	Labels        []model.Label        `yaml:"labels,omitempty"`
	MMProj        string               `yaml:"mmproj,omitempty"`
	SizeGB        float64              `yaml:"size_gb,omitempty"`
	ImageDefaults *model.ImageDefaults `yaml:"image_defaults,omitempty"`
}

// LoadShippedCatalogue parses the baked-in shipped_catalogue.yaml into the
// read-only source #1 of the catalogue merge (see Catalog.ensureBuilt).
func LoadShippedCatalogue() (map[string]*model.Info, error) {
	return parseShippedCatalogue(shippedCatalogueYAML)
}

func parseShippedCatalogue(raw []byte) (map[string]*model.Info, error) {
	var entries map[string]shippedEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse shipped catalogue: %w", err)
	}

	out := make(map[string]*model.Info, len(entries))
	for name, e := range entries {
		if e.Recipe == "" {
			return nil, fmt.Errorf("shipped catalogue entry %q: missing recipe", name)
		}
		labels := map[model.Label]bool{}
		for _, l := range e.Labels {
			labels[l] = true
		}
		checkpoints := map[string]string{model.RoleMain: e.Checkpoint}
		if e.MMProj != "" {
			checkpoints[model.RoleMMProj] = e.MMProj
			labels[model.LabelVision] = true
		}
		out[name] = &model.Info{
			ModelName:     name,
			Checkpoints:   checkpoints,
			Recipe:        e.Recipe,
			Labels:        labels,
			Type:          model.DeriveType(e.Recipe, labels),
			Device:        model.DeviceForRecipe(e.Recipe, ""),
			SizeGB:        e.SizeGB,
			ImageDefaults: e.ImageDefaults,
		}
	}
	return out, nil
}

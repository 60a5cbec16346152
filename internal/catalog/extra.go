package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// scanExtraModelsDir walks a user-configured directory of bare GGUF files
// and turns each file or subdirectory into an "extra." prefixed llamacpp
// catalogue entry. A loose .gguf file at the top level becomes
// extra.<filename-without-extension>; a subdirectory containing one or more
// non-mmproj .gguf files becomes extra.<dirname>, with the lexicographically smallest
// .gguf as the main checkpoint and any file whose name contains "mmproj"
// taking the mmproj role instead.
func scanExtraModelsDir(dir string) map[string]*model.Info {
	out := map[string]*model.Info{}
	if dir == "" {
		return out
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}

	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if info := extraDirEntry(full, e.Name()); info != nil {
				out[info.ModelName] = info
			}
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), ".gguf") {
			continue
		}
		name := "extra." + strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		out[name] = &model.Info{
			ModelName:   name,
			Checkpoints: map[string]string{model.RoleMain: full},
			Recipe:      model.RecipeLlamaCpp,
			Labels:      map[model.Label]bool{},
			Type:        model.TypeLLM,
			Device:      model.DeviceForRecipe(model.RecipeLlamaCpp, ""),
			Source:      model.SourceExtraModelsDir,
		}
	}
	return out
}

func extraDirEntry(dirPath, dirName string) *model.Info {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil
	}
	var ggufs []string
	var mmproj string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".gguf") {
			continue
		}
		full := filepath.Join(dirPath, e.Name())
		if strings.Contains(strings.ToLower(e.Name()), "mmproj") {
			mmproj = full
			continue
		}
		ggufs = append(ggufs, full)
	}
	if len(ggufs) == 0 {
		return nil
	}
	sort.Strings(ggufs)

	checkpoints := map[string]string{}
	labels := map[model.Label]bool{}
	if len(ggufs) > 0 {
		checkpoints[model.RoleMain] = ggufs[0]
	}
	if mmproj != "" {
		checkpoints[model.RoleMMProj] = mmproj
		labels[model.LabelVision] = true
	}

	name := "extra." + dirName
	return &model.Info{
		ModelName:   name,
		Checkpoints: checkpoints,
		Recipe:      model.RecipeLlamaCpp,
		Labels:      labels,
		Type:        model.DeriveType(model.RecipeLlamaCpp, labels),
		Device:      model.DeviceForRecipe(model.RecipeLlamaCpp, ""),
		Source:      model.SourceExtraModelsDir,
	}
}

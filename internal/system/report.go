// Package system computes a read-only capability report: CPU/GPU/NPU/memory
// enumeration feeding the catalogue's capability filtering. Hardware
// enumeration is delegated to github.com/jaypipes/ghw (CPU/GPU topology)
// and github.com/elastic/go-sysinfo (OS version, total physical memory).
package system

import (
	"encoding/json"
	"os"
	"runtime"

	"github.com/jaypipes/ghw"
	"github.com/elastic/go-sysinfo"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// GPU describes one detected graphics device.
type GPU struct {
	Name         string `json:"name"`
	VRAMBytes    uint64 `json:"vram_bytes"`
	VirtualBytes uint64 `json:"virtual_bytes"`
	Integrated   bool   `json:"integrated"`
}

// RecipeSupport describes whether a recipe is usable on this system.
type RecipeSupport struct {
	Supported                  bool           `json:"supported"`
	Available                  bool           `json:"available"`
	SupportedBackendsInOrder   []model.Flavour `json:"supported_backends_in_preference_order"`
	ReasonIfUnsupported        string         `json:"reason_if_unsupported,omitempty"`
}

// Report is the capability snapshot, computed once at startup and cached on
// disk keyed by gateway version.
type Report struct {
	CPUName          string                      `json:"cpu_name"`
	CPUCores         int                         `json:"cpu_cores"`
	GPUs             []GPU                       `json:"gpus"`
	NPUPresent       bool                        `json:"npu_present"`
	NPUDriverVersion string                      `json:"npu_driver_version,omitempty"`
	OSVersion        string                      `json:"os_version"`
	TotalMemoryBytes uint64                      `json:"total_memory_bytes"`
	Recipes          map[model.Recipe]RecipeSupport `json:"recipes"`
	GatewayVersion   string                      `json:"gateway_version"`
}

// Detect builds a fresh Report by querying the host. gatewayVersion is
// stamped in so the on-disk cache can be invalidated on a version bump.
func Detect(gatewayVersion string) (*Report, error) {
	r := &Report{GatewayVersion: gatewayVersion, OSVersion: runtime.GOOS}
	r.CPUCores = runtime.NumCPU()

	if cpuInfo, err := ghw.CPU(); err == nil && len(cpuInfo.Processors) > 0 {
		r.CPUName = cpuInfo.Processors[0].Model
		r.CPUCores = int(cpuInfo.Processors[0].NumCores)
	}

	if gpuInfo, err := ghw.GPU(); err == nil {
		for _, card := range gpuInfo.GraphicsCards {
			if card.DeviceInfo == nil {
				continue
			}
			r.GPUs = append(r.GPUs, GPU{
				Name: card.DeviceInfo.Product.Name,
			})
		}
	}

	if host, err := sysinfo.Host(); err == nil {
		info := host.Info()
		if info.OS != nil {
			r.OSVersion = info.OS.Name + " " + info.OS.Version
		}
		if mem, err := host.Memory(); err == nil {
			r.TotalMemoryBytes = mem.Total
		}
	}

	r.NPUPresent = detectNPU()
	if r.NPUPresent {
		r.NPUDriverVersion = npuDriverVersion()
	}

	r.Recipes = computeRecipeSupport(r)
	return r, nil
}

// detectNPU honours RYZENAI_SKIP_PROCESSOR_CHECK as a forced override.
func detectNPU() bool {
	switch os.Getenv("RYZENAI_SKIP_PROCESSOR_CHECK") {
	case "1", "true", "yes":
		return true
	}
	return probeNPUDevice()
}

// LargestMemoryPool returns max(largest device memory pool, 0.8 *
// system_RAM), honoring LEMONADE_ENABLE_DGPU_GTT to fold dGPU virtual
// memory into the device pool figure.
func (r *Report) LargestMemoryPool() uint64 {
	var largest uint64
	countGTT := os.Getenv("LEMONADE_ENABLE_DGPU_GTT") == "1"
	for _, g := range r.GPUs {
		pool := g.VRAMBytes
		if countGTT {
			pool += g.VirtualBytes
		}
		if pool > largest {
			largest = pool
		}
	}
	ramPool := uint64(float64(r.TotalMemoryBytes) * 0.8)
	if ramPool > largest {
		return ramPool
	}
	return largest
}

// MacOSOnlyLlamaCpp reports the hard platform rule that on macOS only the
// llamacpp recipe is visible.
func MacOSOnlyLlamaCpp() bool { return runtime.GOOS == "darwin" }

func computeRecipeSupport(r *Report) map[model.Recipe]RecipeSupport {
	out := map[model.Recipe]RecipeSupport{}
	allRecipes := []model.Recipe{
		model.RecipeLlamaCpp, model.RecipeFLM, model.RecipeRyzenAILLM,
		model.RecipeWhisperCpp, model.RecipeKokoro, model.RecipeSDCpp,
	}
	for _, recipe := range allRecipes {
		out[recipe] = supportFor(recipe, r)
	}
	return out
}

func supportFor(recipe model.Recipe, r *Report) RecipeSupport {
	if MacOSOnlyLlamaCpp() && recipe != model.RecipeLlamaCpp {
		return RecipeSupport{Supported: false, ReasonIfUnsupported: "only llamacpp is supported on macOS"}
	}
	switch recipe {
	case model.RecipeLlamaCpp:
		backends := []model.Flavour{model.FlavourCPU}
		if len(r.GPUs) > 0 {
			backends = append([]model.Flavour{model.FlavourVulkan}, backends...)
		}
		if runtime.GOOS == "darwin" {
			backends = []model.Flavour{model.FlavourMetal, model.FlavourCPU}
		}
		return RecipeSupport{Supported: true, Available: true, SupportedBackendsInOrder: backends}
	case model.RecipeWhisperCpp:
		backends := []model.Flavour{model.FlavourCPU}
		if r.NPUPresent {
			backends = append([]model.Flavour{model.FlavourNPU}, backends...)
		}
		return RecipeSupport{Supported: true, Available: true, SupportedBackendsInOrder: backends}
	case model.RecipeFLM, model.RecipeRyzenAILLM:
		if !r.NPUPresent {
			return RecipeSupport{Supported: false, ReasonIfUnsupported: "no NPU detected"}
		}
		return RecipeSupport{Supported: true, Available: true, SupportedBackendsInOrder: []model.Flavour{model.FlavourNPU}}
	case model.RecipeKokoro:
		return RecipeSupport{Supported: true, Available: true, SupportedBackendsInOrder: []model.Flavour{model.FlavourCPU}}
	case model.RecipeSDCpp:
		backends := []model.Flavour{model.FlavourCPU}
		if len(r.GPUs) > 0 {
			backends = append([]model.Flavour{model.FlavourROCm}, backends...)
		}
		return RecipeSupport{Supported: true, Available: true, SupportedBackendsInOrder: backends}
	default:
		return RecipeSupport{Supported: false, ReasonIfUnsupported: "unknown recipe"}
	}
}

// LoadCache reads a previously written hardware_cache.json, returning
// (nil, false) if absent or stamped with a different gateway version.
func LoadCache(path, gatewayVersion string) (*Report, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false
	}
	if r.GatewayVersion != gatewayVersion {
		return nil, false
	}
	return &r, true
}

// SaveCache atomically persists r to path.
func SaveCache(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

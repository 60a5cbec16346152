// Package config assembles the gateway's runtime configuration from CLI
// flags layered over environment variable defaults, the same
// flag-default-reads-env-var-directly pattern the node agent uses for its
// own DMRLET_LOG_LEVEL fallback.
package config

import (
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// ServeFlags holds every flag shared by "serve" and "run", plus the
// recipe-option passthroughs that feed a model.Options at load time.
type ServeFlags struct {
	Host             string
	Port             int
	LogLevel         string
	ExtraModelsDir   string
	NoBroadcast      bool
	MaxLoadedModels  int
	SaveOptions      bool // only meaningful for "run"

	CtxSize         int
	LlamaCppBackend string
	LlamaCppArgs    string
	SDCppBackend    string
	WhisperCppBackend string
	Steps           int
	CFGScale        float64
	Width           int
	Height          int
}

// RegisterServeFlags binds ServeFlags onto fs, with every default read from
// the corresponding LEMONADE_* environment variable so a flag left
// unspecified still picks up an operator's exported defaults.
func RegisterServeFlags(fs *pflag.FlagSet, includeSaveOptions bool) *ServeFlags {
	f := &ServeFlags{}

	fs.StringVar(&f.Host, "host", envOr("LEMONADE_HOST", "localhost"), "host interface to bind")
	fs.IntVar(&f.Port, "port", envOrInt("LEMONADE_PORT", 8000), "port to listen on")
	fs.StringVar(&f.LogLevel, "log-level", envOr("LEMONADE_LOG_LEVEL", "info"),
		"log level: critical, error, warning, info, debug, trace")
	fs.StringVar(&f.ExtraModelsDir, "extra-models-dir", envOr("LEMONADE_EXTRA_MODELS_DIR", ""),
		"directory scanned for ad hoc checkpoints")
	fs.BoolVar(&f.NoBroadcast, "no-broadcast", envOrBool("LEMONADE_NO_BROADCAST", false),
		"disable LAN service broadcast")
	fs.IntVar(&f.MaxLoadedModels, "max-loaded-models", envOrInt("LEMONADE_MAX_LOADED_MODELS", -1),
		"maximum models of the same type held loaded at once, or -1 for unbounded")

	fs.IntVar(&f.CtxSize, "ctx-size", 0, "context size override")
	fs.StringVar(&f.LlamaCppBackend, "llamacpp", "", "llamacpp backend flavour override")
	fs.StringVar(&f.LlamaCppArgs, "llamacpp-args", "", "extra llama-server CLI arguments")
	fs.StringVar(&f.SDCppBackend, "sdcpp", "", "sd-cpp backend flavour override")
	fs.StringVar(&f.WhisperCppBackend, "whispercpp", "", "whispercpp backend flavour override")
	fs.IntVar(&f.Steps, "steps", 0, "diffusion step count override")
	fs.Float64Var(&f.CFGScale, "cfg-scale", 0, "diffusion classifier-free guidance scale override")
	fs.IntVar(&f.Width, "width", 0, "diffusion output width override")
	fs.IntVar(&f.Height, "height", 0, "diffusion output height override")

	if includeSaveOptions {
		fs.BoolVar(&f.SaveOptions, "save-options", false, "persist the given recipe options as this model's defaults")
	}

	return f
}

// RecipeOptions projects the passthrough flags into a model.Options bag.
// Every recipe variant is populated; LoadModel/Catalog.SaveOptions only
// look at the one matching the target's own recipe, so populating all of
// them unconditionally is harmless.
func (f *ServeFlags) RecipeOptions() model.Options {
	var o model.Options
	if f.CtxSize > 0 {
		o.LlamaCpp = &model.LlamaCppOptions{CtxSize: f.CtxSize}
		o.FLM = &model.CtxSizeOptions{CtxSize: f.CtxSize}
		o.RyzenAI = &model.CtxSizeOptions{CtxSize: f.CtxSize}
	}
	if f.LlamaCppBackend != "" || f.LlamaCppArgs != "" {
		if o.LlamaCpp == nil {
			o.LlamaCpp = &model.LlamaCppOptions{}
		}
		if f.LlamaCppBackend != "" {
			o.LlamaCpp.LlamaCppBackend = model.Flavour(f.LlamaCppBackend)
		}
		o.LlamaCpp.LlamaCppArgs = f.LlamaCppArgs
	}
	if f.WhisperCppBackend != "" {
		o.WhisperCpp = &model.WhisperCppOptions{WhisperCppBackend: model.Flavour(f.WhisperCppBackend)}
	}
	if f.SDCppBackend != "" || f.Steps > 0 || f.CFGScale > 0 || f.Width > 0 || f.Height > 0 {
		o.SDCpp = &model.SDCppOptions{
			SDCppBackend: model.Flavour(f.SDCppBackend),
			Steps:        f.Steps,
			CFGScale:     f.CFGScale,
			Width:        f.Width,
			Height:       f.Height,
		}
	}
	return o
}

// Core holds the process-wide settings that aren't exposed as serve/run
// flags: the ones read purely from the environment per §6.
type Core struct {
	APIKey                string
	Offline               bool
	DisableModelFiltering bool
	EnableDGPUGTT         bool
	HuggingFaceToken      string
	CacheRoot             string // HF_HUB_CACHE / HF_HOME fallback
	RyzenAISkipCheck      bool
}

// LoadCore reads the environment-only settings.
func LoadCore() Core {
	return Core{
		APIKey:                os.Getenv("LEMONADE_API_KEY"),
		Offline:               envOrBool("LEMONADE_OFFLINE", false),
		DisableModelFiltering: envOrBool("LEMONADE_DISABLE_MODEL_FILTERING", false),
		EnableDGPUGTT:         envOrBool("LEMONADE_ENABLE_DGPU_GTT", false),
		HuggingFaceToken:      os.Getenv("HF_TOKEN"),
		CacheRoot:             cacheRoot(),
		RyzenAISkipCheck:      envOrBool("RYZENAI_SKIP_PROCESSOR_CHECK", false),
	}
}

// BinOverride returns the operator-supplied entry-point binary override for
// a recipe+backend pair, e.g. LEMONADE_LLAMACPP_VULKAN_BIN, falling back to
// the bare-recipe form LEMONADE_LLAMACPP_BIN.
func BinOverride(recipe model.Recipe, backend model.Flavour) (string, bool) {
	key := "LEMONADE_" + envKey(string(recipe))
	if backend != "" {
		if v := os.Getenv(key + "_" + envKey(string(backend)) + "_BIN"); v != "" {
			return v, true
		}
	}
	if v := os.Getenv(key + "_BIN"); v != "" {
		return v, true
	}
	return "", false
}

func envKey(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '-' {
			c = '_'
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func cacheRoot() string {
	if v := os.Getenv("HF_HUB_CACHE"); v != "" {
		return v
	}
	if home := os.Getenv("HF_HOME"); home != "" {
		return home + "/hub"
	}
	return ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
